package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/monpro/monpro/internal/config"
	"github.com/monpro/monpro/internal/gateway"
	"github.com/monpro/monpro/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "advanced",
	Short:   "Configure the backend connection",
	Long: `Store the backend credentials and verify them.

The database URL is a Postgres DSN and usually embeds credentials, so when
prompted it is read without echo. The connection is verified and the remote
schema initialized before anything is saved.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		userID, _ := cmd.Flags().GetString("user")
		dsn, _ := cmd.Flags().GetString("database-url")

		if userID == "" {
			fmt.Print("User ID: ")
			if _, err := fmt.Scanln(&userID); err != nil {
				return fmt.Errorf("failed to read user id: %w", err)
			}
		}

		if dsn == "" {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("database-url is required when stdin is not a terminal")
			}
			fmt.Print("Database URL (hidden): ")
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("failed to read database url: %w", err)
			}
			dsn = strings.TrimSpace(string(raw))
		}

		if userID == "" || dsn == "" {
			return fmt.Errorf("both user id and database url are required")
		}

		fmt.Printf("Verifying connection...\n")
		verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		gw, err := gateway.Connect(verifyCtx, dsn)
		if err != nil {
			return fmt.Errorf("connection check failed: %w", err)
		}
		defer gw.Close()

		if err := gw.InitSchema(verifyCtx); err != nil {
			return fmt.Errorf("failed to initialize remote schema: %w", err)
		}

		cfg.UserID = userID
		cfg.DatabaseURL = dsn
		if err := config.Save(cfg); err != nil {
			return err
		}

		fmt.Printf("%s Logged in as %s\n", ui.RenderPass("✓"), ui.RenderBold(userID))
		fmt.Printf("   Config: %s\n", cfg.StateDir)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "advanced",
	Short:   "Clear the stored backend credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		cfg.UserID = ""
		cfg.DatabaseURL = ""
		if err := config.Save(cfg); err != nil {
			return err
		}

		fmt.Printf("%s Logged out (local cache kept)\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	loginCmd.Flags().StringP("user", "u", "", "User ID")
	loginCmd.Flags().String("database-url", "", "Postgres DSN for the backend")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
