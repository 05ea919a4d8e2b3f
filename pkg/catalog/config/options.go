package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		switch dbType {
		case DatabaseMemory:
		case DatabasePostgres, DatabaseMongo:
			if url == "" {
				return fmt.Errorf("database URL is required for %s", dbType)
			}
		default:
			return fmt.Errorf("database type must be 'memory', 'postgres' or 'mongo', got: %s", dbType)
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithMongoDatabase sets the Mongo database name
func WithMongoDatabase(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			return fmt.Errorf("mongo database name cannot be empty")
		}
		c.MongoDatabase = name
		return nil
	}
}

// WithMemoryStorage selects the in-memory blob store
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.StorageBackend = StorageMemory
		return nil
	}
}

// WithFilesystemStorage selects the filesystem blob store. urlPrefix is the
// public origin baseDir is served from.
func WithFilesystemStorage(baseDir, urlPrefix string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.StorageBackend = StorageFS
		c.FS.BaseDir = baseDir
		c.FS.URLPrefix = urlPrefix
		return nil
	}
}

// WithS3Storage selects the S3 blob store
func WithS3Storage(bucket, region string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		c.StorageBackend = StorageS3
		c.S3.Bucket = bucket
		if region != "" {
			c.S3.Region = region
		}
		return nil
	}
}

// WithS3Credentials sets static S3 credentials
func WithS3Credentials(accessKeyID, secretAccessKey string) Option {
	return func(c *ServerConfig) error {
		c.S3.AccessKeyID = accessKeyID
		c.S3.SecretAccessKey = secretAccessKey
		return nil
	}
}

// WithS3Endpoint configures an S3-compatible endpoint such as MinIO
func WithS3Endpoint(endpoint string, usePathStyle bool) Option {
	return func(c *ServerConfig) error {
		c.S3.Endpoint = endpoint
		c.S3.UsePathStyle = usePathStyle
		return nil
	}
}

// WithS3PublicBaseURL sets the origin public object URLs are built on
func WithS3PublicBaseURL(baseURL string) Option {
	return func(c *ServerConfig) error {
		c.S3.PublicBaseURL = baseURL
		return nil
	}
}

// WithS3Encryption enables server-side encryption (AES256 or aws:kms)
func WithS3Encryption(algorithm, kmsKeyID string) Option {
	return func(c *ServerConfig) error {
		if algorithm != "AES256" && algorithm != "aws:kms" {
			return fmt.Errorf("unsupported SSE algorithm: %s", algorithm)
		}
		c.S3.EnableSSE = true
		c.S3.SSEAlgorithm = algorithm
		c.S3.SSEKMSKeyID = kmsKeyID
		return nil
	}
}

// WithS3CreateBucket creates the bucket on startup when it is missing
func WithS3CreateBucket(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.S3.CreateBucketIfNotExist = enabled
		return nil
	}
}

// WithUploadTimeout bounds each payload upload
func WithUploadTimeout(d time.Duration) Option {
	return func(c *ServerConfig) error {
		if d <= 0 {
			return fmt.Errorf("upload timeout must be positive")
		}
		c.UploadTimeout = d
		return nil
	}
}

// WithMaxUploadMemory sets how many multipart bytes are buffered in memory
func WithMaxUploadMemory(n int64) Option {
	return func(c *ServerConfig) error {
		c.MaxUploadMemory = n
		return nil
	}
}

// WithJWTSecret sets the HS256 secret used to verify bearer tokens
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithAdminSubjects sets the subjects or emails admitted as admins
func WithAdminSubjects(subjects ...string) Option {
	return func(c *ServerConfig) error {
		c.AdminSubjects = append([]string(nil), subjects...)
		return nil
	}
}

// WithEventAuditURL sends lifecycle events as CloudEvents to url
func WithEventAuditURL(url string) Option {
	return func(c *ServerConfig) error {
		c.EventAuditURL = url
		return nil
	}
}

// WithEventLogging enables or disables event logging
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}
