package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/facucarcelero/comandero/internal/config"
	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/printer"
	"github.com/facucarcelero/comandero/internal/service"
	"github.com/facucarcelero/comandero/internal/store"
	pgstore "github.com/facucarcelero/comandero/internal/store/postgres"
	"github.com/facucarcelero/comandero/internal/store/sqlite"
)

// RootOptions holds the flags shared by every command.
type RootOptions struct {
	Database    string
	DatabaseURL string
	Format      string // "text" | "json"
}

var ValidFormats = []string{"text", "json"}

const operator = "posctl"

// NewRootCommand creates the posctl command tree.
func NewRootCommand() *cobra.Command {
	cfg := config.Load()
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "posctl",
		Short: "Operator tool for a comandero database",
		Long: `posctl works directly on a comandero database: it exports and restores
backups, shows the open cash session and prints sales reports.

It opens the sqlite file given by --db, or the postgres database given by
--database-url when set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	dbDefault := cfg.DBPath
	if dbDefault == "" {
		dbDefault = "comandero.db"
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", dbDefault, "path to the sqlite database")
	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", cfg.DatabaseURL, "postgres connection string, overrides --db")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewSessionCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))

	return cmd
}

// runtime is an opened repository plus the service built on it.
type runtime struct {
	svc   *service.Service
	money printer.Money
	close func() error
}

func (o *RootOptions) open(ctx context.Context) (*runtime, error) {
	var (
		repo    store.Repository
		closeFn func() error
	)
	if o.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, o.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		repo, closeFn = pg, pg.Close
	} else {
		db, err := sqlite.Open(o.Database)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", o.Database, err)
		}
		repo, closeFn = db, db.Close
	}

	svc := service.New(repo, service.Options{Defaults: config.Load().Defaults})
	settings, err := svc.Settings.Current(ctx)
	if err != nil {
		_ = closeFn()
		return nil, err
	}
	return &runtime{
		svc:   svc,
		money: printer.NewMoney(settings.Locale, settings.CurrencySymbol, settings.CurrencyDecimals),
		close: closeFn,
	}, nil
}

// operatorContext runs commands as an administrator so audit entries name
// the tool rather than a person.
func operatorContext(ctx context.Context) context.Context {
	return service.WithActor(ctx, domain.Actor{Username: operator, Role: service.RoleAdmin})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
