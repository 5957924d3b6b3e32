package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/storeaudit/internal/config"
	"github.com/soaringjerry/storeaudit/internal/middleware"
	"github.com/soaringjerry/storeaudit/internal/services"
)

func seedCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <catalog.yaml>",
		Short: "Load a starting catalog from YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read seed: %w", err)
			}
			seed, err := services.ParseCatalogSeed(data)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := services.NewCatalogService(a.store, a.logger).SeedCatalog(cmd.Context(), seed, "cli")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d questions\n", n)
			return nil
		},
	}
}

func scoreCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "score <audit-id>",
		Short: "Print the score breakdown of an audit as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()
			svc := services.NewAuditService(a.store, services.WithLogger(a.logger))
			sum, err := svc.Score(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		},
	}
}

// tokenCmd signs a development token with the configured secret.
func tokenCmd(g *globalFlags) *cobra.Command {
	var (
		email string
		role  string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <auditor-id>",
		Short: "Issue a bearer token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			tok, err := signToken(cfg, args[0], email, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().StringVar(&role, "role", "auditor", "Role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

func signToken(cfg *config.Config, subject, email, role string, ttl time.Duration) (string, error) {
	return middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Sign(subject, email, role, ttl)
}
