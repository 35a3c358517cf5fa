package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestNewRejectsBadDSN(t *testing.T) {
	if _, err := New(context.Background(), "postgres://localhost/db?sslmode=bogus"); err == nil {
		t.Error("expected error for malformed DSN")
	}
}

func TestNewSucceedsWithoutReachableDatabase(t *testing.T) {
	// The pool is lazy: creation must not contact the server.
	g, err := New(context.Background(), "postgres://user:pw@localhost:1/monpro")
	if err != nil {
		t.Fatalf("lazy pool creation failed: %v", err)
	}
	g.Close()
}

func TestMarshalLinks(t *testing.T) {
	data, err := marshalLinks(map[string]string{"github": "https://github.com/x/y"})
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]string
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out["github"] != "https://github.com/x/y" {
		t.Errorf("links round trip lost data: %v", out)
	}

	// Nil map marshals to an empty object so the jsonb column never
	// receives SQL NULL.
	data, err = marshalLinks(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{}" {
		t.Errorf("nil links = %s, want {}", data)
	}
}

func TestEmptyIfNil(t *testing.T) {
	if got := emptyIfNil(nil); got == nil || len(got) != 0 {
		t.Errorf("nil slice = %v, want empty", got)
	}
	in := []string{"a"}
	if got := emptyIfNil(in); len(got) != 1 || got[0] != "a" {
		t.Errorf("non-nil slice changed: %v", got)
	}
}

func TestOrNow(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if got := orNow(fixed); !got.Equal(fixed) {
		t.Errorf("set time replaced: %v", got)
	}
	if got := orNow(time.Time{}); got.IsZero() {
		t.Error("zero time not defaulted")
	}
}
