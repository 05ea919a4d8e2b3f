package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// serverEnv mirrors the environment variables read by WithEnv. Fields left
// empty keep the value already in ServerConfig.
type serverEnv struct {
	Port        string `env:"PORT"`
	Environment string `env:"ENVIRONMENT"`

	DatabaseURL   string `env:"DATABASE_URL"`
	DBSchema      string `env:"DB_SCHEMA"`
	MongoDatabase string `env:"MONGO_DATABASE"`

	StorageBackend string `env:"STORAGE_BACKEND"`
	FSBaseDir      string `env:"FS_BASE_DIR"`
	FSURLPrefix    string `env:"FS_URL_PREFIX"`

	UploadTimeout   time.Duration `env:"UPLOAD_TIMEOUT"`
	MaxUploadMemory int64         `env:"MAX_UPLOAD_MEMORY"`

	JWTSecret     string   `env:"AUTH_JWT_SECRET"`
	AdminSubjects []string `env:"ADMIN_SUBJECTS" env-separator:","`

	EventAuditURL string `env:"EVENT_AUDIT_URL"`
}

// s3Env is read only when STORAGE_BACKEND=s3; the three secrets must be set.
type s3Env struct {
	Bucket          string `env:"STORAGE_BUCKET" env-required:"true"`
	AccessKeyID     string `env:"STORAGE_ACCESS_KEY_ID" env-required:"true"`
	SecretAccessKey string `env:"STORAGE_SECRET_ACCESS_KEY" env-required:"true"`
	Region          string `env:"STORAGE_REGION"`
	Endpoint        string `env:"STORAGE_ENDPOINT"`
	PublicBaseURL   string `env:"STORAGE_PUBLIC_BASE_URL"`
	UsePathStyle    bool   `env:"STORAGE_USE_PATH_STYLE"`
}

// WithEnv applies environment variable overrides.
//
// Server:
//
//	PORT - Server port (default: "8080")
//	ENVIRONMENT - Runtime environment (default: "development")
//
// Database:
//
//	DATABASE_URL - "memory" (default), "postgres://...", "postgresql://...",
//	               "mongodb://..." or "mongodb+srv://..."
//	DB_SCHEMA - Postgres schema (default: "catalog")
//	MONGO_DATABASE - Mongo database name (default: "music_catalog")
//
// Storage:
//
//	STORAGE_BACKEND - "memory" (default), "fs" or "s3"
//	FS_BASE_DIR, FS_URL_PREFIX - filesystem backend
//	STORAGE_BUCKET, STORAGE_ACCESS_KEY_ID, STORAGE_SECRET_ACCESS_KEY - required for s3
//	STORAGE_REGION, STORAGE_ENDPOINT, STORAGE_PUBLIC_BASE_URL, STORAGE_USE_PATH_STYLE
//	UPLOAD_TIMEOUT - per-payload upload timeout (default: "120s")
//	MAX_UPLOAD_MEMORY - multipart bytes kept in memory (default: 32 MiB)
//
// Admission and events:
//
//	AUTH_JWT_SECRET - HS256 secret for bearer tokens
//	ADMIN_SUBJECTS - comma separated admin subjects or emails
//	EVENT_AUDIT_URL - CloudEvents collector; when empty events are logged
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var env serverEnv
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}

		setString(&c.Port, env.Port)
		setString(&c.Environment, env.Environment)

		if err := applyDatabaseURL(c, env.DatabaseURL); err != nil {
			return err
		}
		setString(&c.DBSchema, env.DBSchema)
		setString(&c.MongoDatabase, env.MongoDatabase)

		setString(&c.StorageBackend, strings.ToLower(env.StorageBackend))
		setString(&c.FS.BaseDir, env.FSBaseDir)
		setString(&c.FS.URLPrefix, env.FSURLPrefix)
		if c.StorageBackend == StorageS3 {
			if err := applyS3Env(c); err != nil {
				return err
			}
		}

		if env.UploadTimeout > 0 {
			c.UploadTimeout = env.UploadTimeout
		}
		if env.MaxUploadMemory > 0 {
			c.MaxUploadMemory = env.MaxUploadMemory
		}

		setString(&c.JWTSecret, env.JWTSecret)
		if subjects := trimAll(env.AdminSubjects); len(subjects) > 0 {
			c.AdminSubjects = subjects
		}

		if env.EventAuditURL != "" {
			c.EventAuditURL = env.EventAuditURL
		} else {
			c.EnableEventLogging = true
		}

		return nil
	}
}

// applyDatabaseURL auto-detects the database type from the URL scheme
func applyDatabaseURL(c *ServerConfig, dbURL string) error {
	switch {
	case dbURL == "":
		return nil
	case dbURL == "memory":
		c.DatabaseType = DatabaseMemory
		c.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = DatabasePostgres
		c.DatabaseURL = dbURL
	case strings.HasPrefix(dbURL, "mongodb://"), strings.HasPrefix(dbURL, "mongodb+srv://"):
		c.DatabaseType = DatabaseMongo
		c.DatabaseURL = dbURL
	default:
		return fmt.Errorf("unsupported DATABASE_URL format (use 'memory', 'postgres://...' or 'mongodb://...')")
	}
	return nil
}

func applyS3Env(c *ServerConfig) error {
	// cleanenv leaves fields alone when their variable is unset, so seeding
	// from c keeps values set by earlier options.
	env := s3Env{UsePathStyle: c.S3.UsePathStyle}
	readErr := cleanenv.ReadEnv(&env)
	if missing := blankEnv("STORAGE_BUCKET", "STORAGE_ACCESS_KEY_ID", "STORAGE_SECRET_ACCESS_KEY"); len(missing) > 0 {
		return fmt.Errorf("s3 storage requires %s", strings.Join(missing, ", "))
	}
	if readErr != nil {
		return fmt.Errorf("s3 storage configuration: %w", readErr)
	}

	c.S3.Bucket = env.Bucket
	c.S3.AccessKeyID = env.AccessKeyID
	c.S3.SecretAccessKey = env.SecretAccessKey
	setString(&c.S3.Region, env.Region)
	setString(&c.S3.Endpoint, env.Endpoint)
	setString(&c.S3.PublicBaseURL, env.PublicBaseURL)
	c.S3.UsePathStyle = env.UsePathStyle
	return nil
}

// blankEnv lists keys that are unset or set to whitespace. env-required only
// catches unset variables; "STORAGE_BUCKET=" would otherwise pass.
func blankEnv(keys ...string) []string {
	var missing []string
	for _, key := range keys {
		if strings.TrimSpace(os.Getenv(key)) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
