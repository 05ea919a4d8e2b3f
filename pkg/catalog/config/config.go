package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/music-catalog/pkg/catalog"
	cloudeventsink "github.com/tendant/music-catalog/pkg/catalog/events/cloudevents"
	repomemory "github.com/tendant/music-catalog/pkg/catalog/repo/memory"
	repomongo "github.com/tendant/music-catalog/pkg/catalog/repo/mongo"
	repopg "github.com/tendant/music-catalog/pkg/catalog/repo/postgres"
	fsstorage "github.com/tendant/music-catalog/pkg/catalog/storage/fs"
	memorystorage "github.com/tendant/music-catalog/pkg/catalog/storage/memory"
	s3storage "github.com/tendant/music-catalog/pkg/catalog/storage/s3"
)

// Database types
const (
	DatabaseMemory   = "memory"
	DatabasePostgres = "postgres"
	DatabaseMongo    = "mongo"
)

// Storage backends
const (
	StorageMemory = "memory"
	StorageFS     = "fs"
	StorageS3     = "s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:            "8080",
		Environment:     "development",
		DatabaseType:    DatabaseMemory,
		DBSchema:        "catalog",
		MongoDatabase:   "music_catalog",
		StorageBackend:  StorageMemory,
		UploadTimeout:   catalog.DefaultUploadTimeout,
		MaxUploadMemory: 32 << 20,
		S3: s3storage.Config{
			Region: "us-east-1",
		},
	}
}

// ServerConfig represents server configuration for the catalog service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL   string
	DatabaseType  string // "memory", "postgres", "mongo"
	DBSchema      string // Postgres schema to use (default: catalog)
	MongoDatabase string // Mongo database name (default: music_catalog)

	// Storage configuration
	StorageBackend string // "memory", "fs", "s3"
	FS             fsstorage.Config
	S3             s3storage.Config

	// Upload limits
	UploadTimeout   time.Duration
	MaxUploadMemory int64

	// Admission
	JWTSecret     string
	AdminSubjects []string

	// Events
	EventAuditURL      string
	EnableEventLogging bool
}

// IsProduction reports whether error details must be withheld from clients
func (c *ServerConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case DatabaseMemory:
	case DatabasePostgres, DatabaseMongo:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required when using %s", c.DatabaseType)
		}
	default:
		return errors.New("database_type must be 'memory', 'postgres' or 'mongo'")
	}

	switch c.StorageBackend {
	case StorageMemory:
	case StorageFS:
		if c.FS.BaseDir == "" {
			return errors.New("fs base directory is required")
		}
		if c.FS.URLPrefix == "" {
			return errors.New("fs url prefix is required")
		}
		if err := requireHTTPS("fs url prefix", c.FS.URLPrefix); err != nil {
			return err
		}
	case StorageS3:
		var missing []string
		if c.S3.Bucket == "" {
			missing = append(missing, "bucket")
		}
		if c.S3.AccessKeyID == "" {
			missing = append(missing, "access key id")
		}
		if c.S3.SecretAccessKey == "" {
			missing = append(missing, "secret access key")
		}
		if len(missing) > 0 {
			return fmt.Errorf("s3 storage requires %s", strings.Join(missing, ", "))
		}
		// The public base URL wins over the endpoint when building object URLs.
		switch {
		case c.S3.PublicBaseURL != "":
			if err := requireHTTPS("s3 public base url", c.S3.PublicBaseURL); err != nil {
				return err
			}
		case c.S3.Endpoint != "":
			if err := requireHTTPS("s3 endpoint (set a public base url to serve objects elsewhere)", c.S3.Endpoint); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported storage backend '%s'", c.StorageBackend)
	}

	if c.UploadTimeout <= 0 {
		return errors.New("upload timeout must be positive")
	}
	if c.MaxUploadMemory <= 0 {
		return errors.New("max upload memory must be positive")
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return errors.New("jwt secret is required in production")
	}
	if c.IsProduction() {
		if c.DatabaseType == DatabaseMemory {
			return errors.New("memory database is not allowed in production, set DATABASE_URL")
		}
		if c.StorageBackend == StorageMemory {
			return errors.New("memory storage is not allowed in production, set STORAGE_BACKEND")
		}
	}

	return nil
}

// requireHTTPS rejects a URL base that would produce non-https object URLs
func requireHTTPS(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%s must be an https URL, got %q", name, raw)
	}
	return nil
}

// BuildService creates a Service from the server configuration. The returned
// cleanup releases database connections and must be called on shutdown.
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger, extra ...catalog.Option) (catalog.Service, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	repo, cleanup, err := c.buildRepository(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build repository: %w", err)
	}

	store, err := c.buildBlobStore()
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to build storage backend %s: %w", c.StorageBackend, err)
	}

	options := []catalog.Option{
		catalog.WithRepository(repo),
		catalog.WithBlobStore(store, catalog.WithUploadTimeout(c.UploadTimeout)),
		catalog.WithAuthorizer(catalog.NewAdminGate(c.AdminSubjects...)),
		catalog.WithLogger(logger),
	}

	switch {
	case c.EventAuditURL != "":
		sink, err := cloudeventsink.New(c.EventAuditURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to build event sink: %w", err)
		}
		options = append(options, catalog.WithEventSink(sink))
	case c.EnableEventLogging:
		options = append(options, catalog.WithEventSink(catalog.NewLoggingEventSink(logger)))
	}

	svc, err := catalog.New(append(options, extra...)...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

func (c *ServerConfig) buildRepository(ctx context.Context) (catalog.Repository, func(), error) {
	switch c.DatabaseType {
	case DatabaseMemory:
		return repomemory.New(), func() {}, nil

	case DatabasePostgres:
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid postgres url: %w", err)
		}
		// Optionally set search_path for the connection
		schema := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if schema == "" {
				return nil
			}
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		if err := repopg.EnsureSchema(ctx, pool, schema); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repopg.NewWithPool(pool), pool.Close, nil

	case DatabaseMongo:
		client, err := repomongo.Connect(ctx, c.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		repo := repomongo.New(client.Database(c.MongoDatabase))
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return repo, func() { _ = client.Disconnect(context.Background()) }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func (c *ServerConfig) buildBlobStore() (catalog.BlobStore, error) {
	switch c.StorageBackend {
	case StorageMemory:
		return memorystorage.New(), nil
	case StorageFS:
		store, err := fsstorage.New(c.FS)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StorageS3:
		store, err := s3storage.New(c.S3)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", c.StorageBackend)
	}
}
