package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"trackstore/internal/application"
	"trackstore/internal/bootstrap"
	"trackstore/internal/config"
	"trackstore/internal/domain"
	infraconfig "trackstore/internal/infrastructure/config"
	"trackstore/internal/infrastructure/logx"
	"trackstore/internal/infrastructure/pg"
	"trackstore/internal/infrastructure/sqlstore"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() { _ = godotenv.Load() }

type deps struct {
	stdout     io.Writer
	log        *zap.Logger
	loadConfig func() config.Config
	buildUoW   func(ctx context.Context, log *zap.Logger, cfg config.Config) (application.UnitOfWorkFactory, func(), error)
	migrate    func(ctx context.Context, log *zap.Logger, cfg config.Config) error
}

func main() {
	cmd := newRootCmd(deps{
		stdout:     os.Stdout,
		log:        logx.L(),
		loadConfig: config.Load,
		buildUoW:   bootstrap.BuildUnitOfWork,
		migrate:    migrate,
	})
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(d deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "trackctl",
		Short:         "Operate the trackstore database",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema to the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := d.loadConfig()
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := d.migrate(cmd.Context(), d.log, cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(d.stdout, "schema is up to date (%s)\n", cfg.Storage)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "exec <statement> [args...]",
		Short: "Run a raw statement through a unit of work and print the affected rows",
		Long:  "Integer-looking arguments are bound as int64, everything else as text.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := execRaw(cmd.Context(), d, args[0], bindArgs(args[1:]))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(d.stdout, "%d rows affected\n", n)
			return nil
		},
	})
	return root
}

func execRaw(ctx context.Context, d deps, statement string, args []any) (int64, error) {
	cfg := d.loadConfig()
	newUoW, cleanup, err := d.buildUoW(ctx, d.log, cfg)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	u := newUoW()
	defer u.Dispose()
	if err := u.Connect(ctx, domain.TargetDefault); err != nil {
		return 0, err
	}
	return u.ExecuteRaw(ctx, statement, domain.TargetDefault, args...)
}

func bindArgs(raw []string) []any {
	out := make([]any, len(raw))
	for i, s := range raw {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			out[i] = n
			continue
		}
		out[i] = s
	}
	return out
}

func migrate(ctx context.Context, log *zap.Logger, cfg config.Config) error {
	switch cfg.Storage {
	case config.StoragePG, config.StoragePostgresSQL:
		return pg.MigrateURL(ctx, cfg.DatabaseURL)
	case config.StorageMySQL:
		st, err := sqlstore.Open(ctx, sqlstore.Config{
			Driver:          "mysql",
			DSN:             cfg.MySQLDSN,
			MaxOpenConns:    infraconfig.DefaultSQLMaxOpenConns,
			MaxIdleConns:    infraconfig.DefaultSQLMaxIdleConns,
			ConnMaxLifetime: infraconfig.DefaultSQLConnLifetime,
		}, log)
		if err != nil {
			return err
		}
		defer st.Close()
		return sqlstore.MigrateMySQL(st.DB())
	default:
		return fmt.Errorf("storage %q has no schema to migrate", cfg.Storage)
	}
}
