package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/subaru-pfs/seqno/config"
	"github.com/subaru-pfs/seqno/counter"
	"github.com/subaru-pfs/seqno/service"
	"github.com/subaru-pfs/seqno/visit"
	"go.opentelemetry.io/otel/log"
)

// NewRootCommand returns the seqno command and its subcommands.
func NewRootCommand() *cobra.Command {
	var (
		envFile        string
		counterBackend string
		counterRoot    string
		recordBackend  string
		sqlitePath     string
		verbose        bool
	)

	root := &cobra.Command{
		Use:   "seqno",
		Short: "Allocate PFS visit identifiers",
		Long: `seqno issues unique, monotonically increasing PFS visit ` +
			`identifiers and records each one as it is issued. Settings are ` +
			`read from SEQNO_* environment variables, optionally seeded from ` +
			`a .env file, and may be overridden by flags.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&envFile, "env-file", ".env", "file to seed the environment from, ignored if it does not exist")
	flags.StringVar(&counterBackend, "counter-backend", "", "counter storage: file, postgres, dynamodb or memory")
	flags.StringVar(&counterRoot, "counter-root", "", "directory holding the file counters")
	flags.StringVar(&recordBackend, "record-backend", "", "record storage: postgres, sqlite, s3, journal or none")
	flags.StringVar(&sqlitePath, "sqlite-path", "", "path of the SQLite record database")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log every operation, not only warnings and errors")

	open := func(cmd *cobra.Command) (*App, error) {
		cfg, err := config.Load(envFile)
		if err != nil {
			return nil, err
		}

		if flags.Changed("counter-backend") {
			cfg.CounterBackend = config.CounterBackend(counterBackend)
		}
		if flags.Changed("counter-root") {
			cfg.CounterRoot = counterRoot
		}
		if flags.Changed("record-backend") {
			cfg.RecordBackend = config.RecordBackend(recordBackend)
		}
		if flags.Changed("sqlite-path") {
			cfg.SQLitePath = sqlitePath
		}

		level := log.SeverityWarn
		if verbose {
			level = log.SeverityDebug
		}

		return Build(
			cmd.Context(),
			cfg,
			WithLogOutput(cmd.ErrOrStderr()),
			WithLogLevel(level),
		)
	}

	root.AddCommand(
		newAllocateCommand(open),
		newPeekCommand(open),
		newSchemaCommand(open),
	)

	return root
}

type opener func(*cobra.Command) (*App, error)

func newAllocateCommand(open opener) *cobra.Command {
	var (
		caller   string
		designID int64
	)

	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Issue a new visit identifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(ctx context.Context, app *App) error {
				req := service.Request{Caller: caller}
				if cmd.Flags().Changed("design-id") {
					d := visit.DesignID(designID)
					req.DesignID = &d
				}

				res, err := app.Service.AllocateVisit(ctx, req)
				if err != nil {
					return err
				}

				_, err = fmt.Fprintf(cmd.OutOrStdout(), "visit=%d\n", uint32(res.Visit))
				return err
			})
		},
	}

	cmd.Flags().StringVar(&caller, "caller", "", "name of the requester, recorded with the visit")
	cmd.Flags().Int64Var(&designID, "design-id", 0, "design ID to record instead of resolving it from the upstream models")

	return cmd
}

func newPeekCommand(open opener) *cobra.Command {
	var epoch string

	cmd := &cobra.Command{
		Use:   "peek",
		Short: "Show the next identifier of an epoch without issuing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(ctx context.Context, app *App) error {
				p, ok := app.Counter.(counter.Peeker)
				if !ok {
					return errors.New("the configured counter does not support peeking")
				}

				e := visit.Epoch(epoch)
				if e == "" {
					e = app.Service.Epoch()
				}

				next, err := p.Peek(ctx, e)
				if err != nil {
					return err
				}

				_, err = fmt.Fprintf(cmd.OutOrStdout(), "epoch=%s next=%d\n", e, uint32(next))
				return err
			})
		},
	}

	cmd.Flags().StringVar(&epoch, "epoch", "", "epoch to inspect, defaults to the configured epoch")

	return cmd
}

func newSchemaCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the database schema used by the configured stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(ctx context.Context, app *App) error {
				return app.CreateSchema(ctx)
			})
		},
	}
}

func withApp(
	cmd *cobra.Command,
	open opener,
	fn func(context.Context, *App) error,
) (err error) {
	app, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, app.Close())
	}()

	return fn(cmd.Context(), app)
}
