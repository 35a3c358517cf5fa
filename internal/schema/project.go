// Package schema provides the typed records that flow between the local
// store, the sync engine, and the remote gateway.
package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Project represents one tracked software project.
//
// ID is the server-assigned identifier and stays empty for records created
// while offline until their create has replayed. ClientRef is a local
// identifier minted for offline creates so that later queued operations can
// target the record before it has a real id.
type Project struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	ClientRef string `json:"client_ref,omitempty" yaml:"client_ref,omitempty"`
	UserID    string `json:"user_id" yaml:"user_id"`

	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Explanation string `json:"explanation,omitempty" yaml:"explanation,omitempty"`

	StartDate *time.Time `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty" yaml:"end_date,omitempty"`

	Features        []string `json:"features,omitempty" yaml:"features,omitempty"`
	Characteristics []string `json:"characteristics,omitempty" yaml:"characteristics,omitempty"`
	Technologies    []string `json:"technologies,omitempty" yaml:"technologies,omitempty"`
	BrandColors     []string `json:"brand_colors,omitempty" yaml:"brand_colors,omitempty"`
	Wireframes      []string `json:"wireframes,omitempty" yaml:"wireframes,omitempty"`
	Diagrams        []string `json:"diagrams,omitempty" yaml:"diagrams,omitempty"`

	// Links holds external resource URLs keyed by kind (figma, github, ...).
	Links map[string]string `json:"links,omitempty" yaml:"links,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Validate checks the fields required before a project may be persisted
// or queued.
func (p *Project) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(p.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(p.Name))
	}
	if p.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		return fmt.Errorf("end_date precedes start_date")
	}
	return nil
}

// SetDefaults fills timestamps and nil collections so cached copies
// round-trip consistently.
func (p *Project) SetDefaults() {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	if p.Features == nil {
		p.Features = []string{}
	}
	if p.Technologies == nil {
		p.Technologies = []string{}
	}
}

// Touch sets UpdatedAt to the current time. Call on every mutation.
func (p *Project) Touch() {
	p.UpdatedAt = time.Now().UTC()
}

// Synced reports whether the project has a server-assigned id.
func (p *Project) Synced() bool {
	return p.ID != ""
}

// Ref returns the identifier operations should target: the server id when
// present, the client ref otherwise.
func (p *Project) Ref() string {
	if p.ID != "" {
		return p.ID
	}
	return p.ClientRef
}

// NewClientRef mints a local identifier for an offline-created project.
func NewClientRef() string {
	return "local-" + uuid.NewString()
}

// Clone returns a deep copy. The engine caches copies so callers cannot
// mutate cached state through shared slices.
func (p *Project) Clone() *Project {
	c := *p
	c.Features = append([]string(nil), p.Features...)
	c.Characteristics = append([]string(nil), p.Characteristics...)
	c.Technologies = append([]string(nil), p.Technologies...)
	c.BrandColors = append([]string(nil), p.BrandColors...)
	c.Wireframes = append([]string(nil), p.Wireframes...)
	c.Diagrams = append([]string(nil), p.Diagrams...)
	if p.Links != nil {
		c.Links = make(map[string]string, len(p.Links))
		for k, v := range p.Links {
			c.Links[k] = v
		}
	}
	if p.StartDate != nil {
		t := *p.StartDate
		c.StartDate = &t
	}
	if p.EndDate != nil {
		t := *p.EndDate
		c.EndDate = &t
	}
	return &c
}
