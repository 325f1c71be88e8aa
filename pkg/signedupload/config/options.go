package config

import (
	"fmt"
	"time"

	s3storage "github.com/tendant/signed-upload/pkg/signedupload/storage/s3"
)

// WithCredentials sets the access id and its secret key
func WithCredentials(accessID, accessKey string) Option {
	return func(c *Config) error {
		if accessID == "" || accessKey == "" {
			return fmt.Errorf("access id and access key cannot be empty")
		}
		c.AccessID = accessID
		c.AccessKey = accessKey
		return nil
	}
}

// WithHost sets the upload endpoint
func WithHost(host string) Option {
	return func(c *Config) error {
		if host == "" {
			return fmt.Errorf("host cannot be empty")
		}
		c.Host = host
		return nil
	}
}

// WithPolicyText uses a fixed policy document
func WithPolicyText(text string) Option {
	return func(c *Config) error {
		c.PolicyText = text
		return nil
	}
}

// WithPolicyFile reads a fixed policy document from path
func WithPolicyFile(path string) Option {
	return func(c *Config) error {
		text, err := readPolicyFile(path)
		if err != nil {
			return err
		}
		c.PolicyText = text
		return nil
	}
}

// WithPolicyTTL sets the lifetime of generated policy documents
func WithPolicyTTL(ttl time.Duration) Option {
	return func(c *Config) error {
		if ttl <= 0 {
			return fmt.Errorf("policy ttl must be positive, got: %s", ttl)
		}
		c.PolicyTTL = ttl
		return nil
	}
}

// WithMaxSize sets the largest file generated policies allow
func WithMaxSize(n int64) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("max size must be positive, got: %d", n)
		}
		c.MaxSize = n
		return nil
	}
}

// WithKeyPrefix sets the object key prefix
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) error {
		c.KeyPrefix = prefix
		return nil
	}
}

// WithAccept restricts uploads to an accept list such as "image/*,.pdf"
func WithAccept(accept string) Option {
	return func(c *Config) error {
		c.Accept = accept
		return nil
	}
}

// WithStrictKeys rejects unsafe object keys before signing
func WithStrictKeys(strict bool) Option {
	return func(c *Config) error {
		c.StrictKeys = strict
		return nil
	}
}

// WithUploadTimeout bounds a single upload request
func WithUploadTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("upload timeout must be positive, got: %s", d)
		}
		c.UploadTimeout = d
		return nil
	}
}

// WithBucket sets the bucket name used in policy conditions
func WithBucket(bucket string) Option {
	return func(c *Config) error {
		c.Bucket = bucket
		return nil
	}
}

// WithDatabase configures the ledger database
func WithDatabase(dbType, url string) Option {
	return func(c *Config) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the Postgres schema
func WithDatabaseSchema(schema string) Option {
	return func(c *Config) error {
		c.DBSchema = schema
		return nil
	}
}

// WithMemoryStorage keeps uploaded objects in memory
func WithMemoryStorage() Option {
	return func(c *Config) error {
		c.Storage = StorageConfig{Type: "memory"}
		return nil
	}
}

// WithFilesystemStorage stores uploaded objects under baseDir
func WithFilesystemStorage(baseDir string) Option {
	return func(c *Config) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.Storage = StorageConfig{Type: "fs", BaseDir: baseDir}
		return nil
	}
}

// WithS3Storage stores uploaded objects in an S3-compatible bucket
func WithS3Storage(cfg s3storage.Config) Option {
	return func(c *Config) error {
		if cfg.Bucket == "" {
			return fmt.Errorf("s3 bucket cannot be empty")
		}
		c.Storage = StorageConfig{Type: "s3", S3: cfg}
		return nil
	}
}
