package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/congo-pay/gatekeeper/internal/identity"
	"github.com/congo-pay/gatekeeper/internal/infra"
	"github.com/congo-pay/gatekeeper/internal/logging"
)

type seedOptions struct {
	admin  identity.SeedInput
	region string
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	opts := &seedOptions{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Provision default roles and an optional administrator",
		Long: `Insert the default roles. When --email is given, also create an active
administrator with both contact points verified and the given PIN.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.admin.Email, "email", "", "administrator email")
	f.StringVar(&opts.admin.Phone, "phone", "", "administrator phone")
	f.StringVar(&opts.admin.FirstName, "first-name", "Admin", "administrator first name")
	f.StringVar(&opts.admin.LastName, "last-name", "User", "administrator last name")
	f.StringVar(&opts.admin.PIN, "pin", os.Getenv("SEED_ADMIN_PIN"), "administrator PIN (defaults to SEED_ADMIN_PIN)")
	f.StringVar(&opts.region, "region", identity.DefaultPhoneRegion, "default phone region")
	return cmd
}

func runSeed(cmd *cobra.Command, opts *seedOptions) error {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}
	ctx := cmd.Context()
	db, err := infra.NewPostgresPool(ctx, databaseURL, infra.PoolOptions{MaxConns: 2})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()

	in := opts.admin
	if in.Email == "" {
		in = identity.SeedInput{}
	}
	svc := identity.NewService(identity.NewPostgresRepository(db), nil, nil, nil, logging.New("info"), identity.Config{PhoneRegion: opts.region})
	user, err := svc.Seed(ctx, in)
	if err != nil {
		return oops.Code("SEED_FAILED").Wrap(err)
	}
	cmd.Println("Default roles provisioned")
	if user.ID != "" {
		cmd.Printf("Administrator %s ready (%s)\n", user.Email, user.ID)
	}
	return nil
}
