// Package config loads the settings of the visit ID allocator from the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/subaru-pfs/seqno/allocator"
	"github.com/subaru-pfs/seqno/counter"
	"github.com/subaru-pfs/seqno/metadata"
	"github.com/subaru-pfs/seqno/registrar"
	"github.com/subaru-pfs/seqno/visit"
)

// Prefix is the prefix of every environment variable read by [FromEnv].
const Prefix = "SEQNO_"

// CounterBackend selects the storage used by the persistent counter.
type CounterBackend string

const (
	// CounterFile stores each epoch's counter in a file guarded by flock(2).
	CounterFile CounterBackend = "file"

	// CounterPostgres stores counters in a PostgreSQL keyspace.
	CounterPostgres CounterBackend = "postgres"

	// CounterDynamoDB stores counters in a DynamoDB keyspace.
	CounterDynamoDB CounterBackend = "dynamodb"

	// CounterMemory keeps counters in memory. It is only useful for testing.
	CounterMemory CounterBackend = "memory"
)

// RecordBackend selects where visit records are written.
type RecordBackend string

const (
	RecordPostgres RecordBackend = "postgres"
	RecordSQLite   RecordBackend = "sqlite"
	RecordS3       RecordBackend = "s3"
	RecordJournal  RecordBackend = "journal"
	RecordNone     RecordBackend = "none"
)

// MetadataBackend selects the key/value store that upstream models publish
// their design IDs to.
type MetadataBackend string

const (
	MetadataPostgres MetadataBackend = "postgres"
	MetadataDynamoDB MetadataBackend = "dynamodb"
	MetadataMemory   MetadataBackend = "memory"
	MetadataNone     MetadataBackend = "none"
)

// Config is the configuration of the allocator.
type Config struct {
	CounterBackend  CounterBackend
	CounterRoot     string
	CounterBase     visit.ID
	CounterKeyspace string
	CounterTimeout  time.Duration

	RecordBackend RecordBackend
	RecordTimeout time.Duration

	MetadataBackend MetadataBackend
	MetadataModels  []string
	MetadataTimeout time.Duration

	PostgresDSN   string
	SQLitePath    string
	DynamoDBTable string
	S3Bucket      string
	AWSRegion     string
	AWSEndpoint   string

	Epoch visit.Epoch
}

// Default returns the configuration used when no environment variables are
// set.
func Default() Config {
	return Config{
		CounterBackend:  CounterFile,
		CounterRoot:     "/var/lib/seqno",
		CounterBase:     counter.DefaultBase,
		CounterKeyspace: counter.DefaultKeyspace,
		CounterTimeout:  allocator.DefaultTimeout,
		RecordBackend:   RecordNone,
		RecordTimeout:   registrar.DefaultTimeout,
		MetadataBackend: MetadataNone,
		MetadataModels:  metadata.DefaultModels,
		MetadataTimeout: metadata.DefaultTimeout,
		SQLitePath:      "/var/lib/seqno/pfs_visit.db",
		DynamoDBTable:   "seqno",
		Epoch:           visit.DefaultEpoch,
	}
}

// Load reads the given .env files into the process environment, without
// overriding variables that are already set, then returns [FromEnv] applied
// to the process environment.
//
// Files that do not exist are ignored.
func Load(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("cannot load %q: %w", f, err)
		}
	}

	return FromEnv(os.LookupEnv)
}

// FromEnv returns the configuration described by the environment variables
// visible through lookup, falling back to [Default] for any that are unset.
//
// The result is validated with [Config.Validate].
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	p.string("COUNTER_BACKEND", (*string)(&cfg.CounterBackend))
	p.string("COUNTER_ROOT", &cfg.CounterRoot)
	p.id("COUNTER_BASE", &cfg.CounterBase)
	p.string("COUNTER_KEYSPACE", &cfg.CounterKeyspace)
	p.duration("COUNTER_TIMEOUT", &cfg.CounterTimeout)

	p.string("RECORD_BACKEND", (*string)(&cfg.RecordBackend))
	p.duration("RECORD_TIMEOUT", &cfg.RecordTimeout)

	p.string("METADATA_BACKEND", (*string)(&cfg.MetadataBackend))
	p.list("METADATA_MODELS", &cfg.MetadataModels)
	p.duration("METADATA_TIMEOUT", &cfg.MetadataTimeout)

	p.string("POSTGRES_DSN", &cfg.PostgresDSN)
	p.string("SQLITE_PATH", &cfg.SQLitePath)
	p.string("DYNAMODB_TABLE", &cfg.DynamoDBTable)
	p.string("S3_BUCKET", &cfg.S3Bucket)
	p.string("AWS_REGION", &cfg.AWSRegion)
	p.string("AWS_ENDPOINT", &cfg.AWSEndpoint)

	p.string("EPOCH", (*string)(&cfg.Epoch))

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// Validate returns an error if the configuration is inconsistent.
func (c Config) Validate() error {
	var errs []error

	switch c.CounterBackend {
	case CounterFile:
		if c.CounterRoot == "" {
			errs = append(errs, errors.New("the file counter requires a root directory"))
		}
	case CounterPostgres, CounterDynamoDB, CounterMemory:
		if c.CounterKeyspace == "" {
			errs = append(errs, errors.New("the counter keyspace must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown counter backend %q", c.CounterBackend))
	}

	switch c.RecordBackend {
	case RecordSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("the sqlite record store requires a database path"))
		}
	case RecordS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("the s3 record store requires a bucket"))
		}
	case RecordPostgres, RecordJournal, RecordNone:
	default:
		errs = append(errs, fmt.Errorf("unknown record backend %q", c.RecordBackend))
	}

	switch c.MetadataBackend {
	case MetadataPostgres, MetadataDynamoDB, MetadataMemory:
		if len(c.MetadataModels) == 0 {
			errs = append(errs, errors.New("at least one metadata model is required"))
		}
	case MetadataNone:
	default:
		errs = append(errs, fmt.Errorf("unknown metadata backend %q", c.MetadataBackend))
	}

	if c.UsesPostgres() && c.PostgresDSN == "" {
		errs = append(errs, errors.New("a PostgreSQL DSN is required"))
	}

	if c.UsesDynamoDB() && c.DynamoDBTable == "" {
		errs = append(errs, errors.New("a DynamoDB table is required"))
	}

	if err := c.CounterBase.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid counter base: %w", err))
	}

	for name, d := range map[string]time.Duration{
		"counter":  c.CounterTimeout,
		"record":   c.RecordTimeout,
		"metadata": c.MetadataTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("the %s timeout must be positive", name))
		}
	}

	if err := c.Epoch.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// UsesPostgres returns true if any component is stored in PostgreSQL.
func (c Config) UsesPostgres() bool {
	return c.CounterBackend == CounterPostgres ||
		c.RecordBackend == RecordPostgres ||
		c.MetadataBackend == MetadataPostgres
}

// UsesDynamoDB returns true if any component is stored in DynamoDB.
func (c Config) UsesDynamoDB() bool {
	return c.CounterBackend == CounterDynamoDB ||
		c.MetadataBackend == MetadataDynamoDB
}

// UsesAWS returns true if any component requires an AWS client.
func (c Config) UsesAWS() bool {
	return c.UsesDynamoDB() || c.RecordBackend == RecordS3
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) get(k string) (string, bool) {
	v, ok := p.lookup(Prefix + k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) string(k string, v *string) {
	if s, ok := p.get(k); ok {
		*v = s
	}
}

func (p *parser) list(k string, v *[]string) {
	s, ok := p.get(k)
	if !ok {
		return
	}

	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*v = items
}

func (p *parser) duration(k string, v *time.Duration) {
	s, ok := p.get(k)
	if !ok {
		return
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s%s: %w", Prefix, k, err))
		return
	}
	*v = d
}

func (p *parser) id(k string, v *visit.ID) {
	s, ok := p.get(k)
	if !ok {
		return
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s%s: %w", Prefix, k, err))
		return
	}

	id, err := visit.ParseID(n)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s%s: %w", Prefix, k, err))
		return
	}
	*v = id
}
