// Package cli assembles the allocator from its configuration and exposes it as
// a set of cobra commands.
package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/subaru-pfs/seqno/allocator"
	"github.com/subaru-pfs/seqno/config"
	"github.com/subaru-pfs/seqno/counter"
	"github.com/subaru-pfs/seqno/driver/aws/dynamokv"
	"github.com/subaru-pfs/seqno/driver/aws/s3visit"
	"github.com/subaru-pfs/seqno/driver/memory/memoryjournal"
	"github.com/subaru-pfs/seqno/driver/memory/memorykv"
	"github.com/subaru-pfs/seqno/driver/sql/postgres/pgkv"
	"github.com/subaru-pfs/seqno/driver/sql/postgres/pgvisit"
	"github.com/subaru-pfs/seqno/driver/sql/sqlite/sqlitevisit"
	"github.com/subaru-pfs/seqno/internal/telemetry"
	"github.com/subaru-pfs/seqno/kv"
	"github.com/subaru-pfs/seqno/metadata"
	"github.com/subaru-pfs/seqno/registrar"
	"github.com/subaru-pfs/seqno/service"
	"github.com/subaru-pfs/seqno/source"
	"go.opentelemetry.io/otel/log"
)

// App is the allocator assembled from a [config.Config].
type App struct {
	// Service allocates visits.
	Service *service.Service

	// Counter is the persistent counter behind the service's only source.
	Counter counter.Counter

	// Records is the store that visit records are written to.
	Records registrar.RecordStore

	// Metadata is the store that upstream models publish design IDs to, or
	// nil if design IDs are not resolved.
	Metadata kv.BinaryStore

	cfg     config.Config
	logs    log.LoggerProvider
	db      *sql.DB
	aws     *aws.Config
	memory  *memorykv.BinaryStore
	closers []func() error
}

// Option is an option that changes the behavior of [Build].
type Option func(*options)

type options struct {
	logOutput io.Writer
	logLevel  log.Severity
}

// WithLogOutput is an [Option] that sets the writer that log records are
// written to. It defaults to [os.Stderr].
func WithLogOutput(w io.Writer) Option {
	return func(o *options) {
		o.logOutput = w
	}
}

// WithLogLevel is an [Option] that sets the minimum severity of the log
// records that are written. It defaults to [log.SeverityWarn].
func WithLogLevel(s log.Severity) Option {
	return func(o *options) {
		o.logLevel = s
	}
}

// Build assembles the allocator described by cfg.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		logOutput: os.Stderr,
		logLevel:  log.SeverityWarn,
	}

	for _, opt := range opts {
		opt(&o)
	}

	logs, err := telemetry.NewConsoleLoggerProvider(o.logOutput, o.logLevel)
	if err != nil {
		return nil, fmt.Errorf("cannot build logger: %w", err)
	}

	a := &App{cfg: cfg, logs: logs}
	a.closers = append(a.closers, func() error {
		return logs.Shutdown(context.Background())
	})

	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Counter, err = a.counter(ctx); err != nil {
		return nil, fmt.Errorf("cannot build counter: %w", err)
	}

	if a.Records, err = a.records(ctx); err != nil {
		return nil, fmt.Errorf("cannot build record store: %w", err)
	}

	var providers []metadata.Provider
	if a.Metadata, err = a.metadata(ctx); err != nil {
		return nil, fmt.Errorf("cannot build metadata store: %w", err)
	}
	if a.Metadata != nil {
		providers = metadata.NewKeyspaceProviders(a.Metadata, cfg.MetadataModels...)
	}

	a.Service = service.New(
		allocator.New(
			[]source.Source{
				source.NewCounter(string(cfg.CounterBackend)+" counter", a.Counter),
			},
			allocator.WithTimeout(cfg.CounterTimeout),
			allocator.WithTelemetry(nil, nil, logs),
		),
		metadata.NewResolver(
			providers,
			metadata.WithTimeout(cfg.MetadataTimeout),
			metadata.WithTelemetry(nil, nil, logs),
		),
		registrar.New(
			a.Records,
			registrar.WithTimeout(cfg.RecordTimeout),
			registrar.WithTelemetry(nil, nil, logs),
		),
		service.WithEpoch(cfg.Epoch),
		service.WithTelemetry(nil, nil, logs),
	)

	return a, nil
}

// CreateSchema creates the database schema required by the configured
// PostgreSQL stores. SQLite and DynamoDB schemas are created on first use.
func (a *App) CreateSchema(ctx context.Context) error {
	if a.db == nil {
		return nil
	}

	if a.cfg.CounterBackend == config.CounterPostgres ||
		a.cfg.MetadataBackend == config.MetadataPostgres {
		if err := pgkv.CreateSchema(ctx, a.db); err != nil {
			return err
		}
	}

	if a.cfg.RecordBackend == config.RecordPostgres {
		if err := pgvisit.CreateSchema(ctx, a.db); err != nil {
			return err
		}
	}

	return nil
}

// Close releases the resources held by the app.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) counter(ctx context.Context) (counter.Counter, error) {
	if a.cfg.CounterBackend == config.CounterFile {
		c, err := newFileCounter(a.cfg)
		if err != nil {
			return nil, err
		}
		return counter.WithTelemetry(c, nil, nil, a.logs), nil
	}

	store, err := a.kvStore(ctx, string(a.cfg.CounterBackend))
	if err != nil {
		return nil, err
	}

	c := counter.NewKeyspaceCounter(
		store,
		counter.WithBase(a.cfg.CounterBase),
		counter.WithKeyspace(a.cfg.CounterKeyspace),
	)
	a.closers = append(a.closers, c.Close)

	return counter.WithTelemetry(c, nil, nil, a.logs), nil
}

func (a *App) records(ctx context.Context) (registrar.RecordStore, error) {
	switch a.cfg.RecordBackend {
	case config.RecordPostgres:
		db, err := a.postgres()
		if err != nil {
			return nil, err
		}
		return &pgvisit.RecordStore{DB: db}, nil

	case config.RecordSQLite:
		s, err := sqlitevisit.Open(ctx, a.cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil

	case config.RecordS3:
		cfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		client := s3.NewFromConfig(
			*cfg,
			func(o *s3.Options) {
				if a.cfg.AWSEndpoint != "" {
					o.BaseEndpoint = aws.String(a.cfg.AWSEndpoint)
					o.UsePathStyle = true
				}
			},
		)
		return s3visit.NewRecordStore(client, a.cfg.S3Bucket), nil

	case config.RecordJournal:
		return registrar.NewJournalStore(&memoryjournal.BinaryStore{}), nil

	default:
		return registrar.Discard, nil
	}
}

func (a *App) metadata(ctx context.Context) (kv.BinaryStore, error) {
	if a.cfg.MetadataBackend == config.MetadataNone {
		return nil, nil
	}
	return a.kvStore(ctx, string(a.cfg.MetadataBackend))
}

// kvStore returns the key/value store for the named backend. Counters and
// metadata configured with the same backend share a store.
func (a *App) kvStore(ctx context.Context, backend string) (kv.BinaryStore, error) {
	s, err := a.openKVStore(ctx, backend)
	if err != nil {
		return nil, err
	}
	return kv.WithTelemetry(s, nil, nil, a.logs), nil
}

func (a *App) openKVStore(ctx context.Context, backend string) (kv.BinaryStore, error) {
	switch backend {
	case "postgres":
		db, err := a.postgres()
		if err != nil {
			return nil, err
		}
		return &pgkv.BinaryStore{DB: db}, nil

	case "dynamodb":
		cfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		client := dynamodb.NewFromConfig(
			*cfg,
			func(o *dynamodb.Options) {
				if a.cfg.AWSEndpoint != "" {
					o.BaseEndpoint = aws.String(a.cfg.AWSEndpoint)
				}
			},
		)
		return dynamokv.NewBinaryStore(client, a.cfg.DynamoDBTable), nil

	case "memory":
		if a.memory == nil {
			a.memory = &memorykv.BinaryStore{}
		}
		return a.memory, nil

	default:
		return nil, fmt.Errorf("unsupported key/value backend %q", backend)
	}
}

func (a *App) postgres() (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}

	db, err := sql.Open("pgx", a.cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("cannot open PostgreSQL database: %w", err)
	}

	a.db = db
	a.closers = append(a.closers, db.Close)

	return db, nil
}

func (a *App) awsConfig(ctx context.Context) (*aws.Config, error) {
	if a.aws != nil {
		return a.aws, nil
	}

	var options []func(*awsconfig.LoadOptions) error
	if a.cfg.AWSRegion != "" {
		options = append(options, awsconfig.WithRegion(a.cfg.AWSRegion))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("cannot load AWS configuration: %w", err)
	}

	a.aws = &cfg
	return a.aws, nil
}
