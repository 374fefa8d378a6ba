package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/alecgard/tally/internal/account"
	"github.com/alecgard/tally/internal/catalog"
	"github.com/alecgard/tally/internal/config"
	"github.com/alecgard/tally/internal/identity"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed demo membership plans and an admin account",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func demoPlans() []catalog.CreatePlanInput {
	return []catalog.CreatePlanInput{
		{
			Name:         "Bronze",
			Description:  "One week of access. A cheap way to try things out.",
			DurationDays: 7,
			Cost:         50,
		},
		{
			Name:         "Silver",
			Description:  "Two weeks of access for regular visitors.",
			DurationDays: 14,
			Cost:         90,
		},
		{
			Name:         "Gold",
			Description:  "A full month of access at the best rate per day.",
			DurationDays: 30,
			Cost:         150,
		},
	}
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Identity.CompanyID == "" {
		return fmt.Errorf("identity.company_id must be configured")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	planStore := catalog.NewStore(pool)
	accountStore := account.NewStore(pool)

	// Check if seed has already run.
	existing, err := planStore.List(ctx, cfg.Identity.CompanyID)
	if err != nil {
		return fmt.Errorf("checking existing plans: %w", err)
	}
	if len(existing) > 0 {
		slog.Info("demo data already exists, skipping seed")
		return nil
	}

	for _, in := range demoPlans() {
		p, err := planStore.Create(ctx, cfg.Identity.CompanyID, in)
		if err != nil {
			return fmt.Errorf("creating plan %q: %w", in.Name, err)
		}
		slog.Info("created plan", "name", p.Name, "id", p.ID, "cost", p.Cost)
	}

	// Create the admin account and a static token for it.
	adminKey := account.Key{UserID: "admin", CompanyID: cfg.Identity.CompanyID}
	admin, _, err := accountStore.GetOrCreate(ctx, adminKey, account.Profile{
		Username: "admin",
		Name:     "Administrator",
		Roles:    []string{"admin"},
	})
	if err != nil {
		return fmt.Errorf("creating admin account: %w", err)
	}
	slog.Info("created admin account", "id", admin.ID)

	plaintext := uuid.NewString()
	hash, err := identity.HashToken(plaintext)
	if err != nil {
		return fmt.Errorf("hashing admin token: %w", err)
	}

	fmt.Printf("\n=== Demo Data Seeded ===\n")
	fmt.Printf("Plans:       %d created\n", len(demoPlans()))
	fmt.Printf("Admin:       %s (%s)\n", admin.Username, admin.UserID)
	fmt.Printf("Admin token: %s\n", plaintext)
	fmt.Printf("\nAdd to the identity.static_tokens section of your config:\n")
	fmt.Printf("  - token_hash: \"%s\"\n", hash)
	fmt.Printf("    user_id: admin\n")
	fmt.Printf("    username: admin\n")
	fmt.Printf("    roles: [admin]\n")
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl http://localhost:8080/api/v1/memberships\n")
	fmt.Printf("  curl -H 'Authorization: Bearer %s' http://localhost:8080/api/v1/admin/users\n", plaintext)

	return nil
}
