package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	s3storage "github.com/tendant/signed-upload/pkg/signedupload/storage/s3"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Signing:
//
//	ACCESS_ID, ACCESS_KEY - credential pair
//	HOST                  - upload endpoint, e.g. "https://bucket.oss-cn-hangzhou.aliyuncs.com"
//	POLICY / POLICY_FILE  - fixed policy document (JSON text or path)
//	POLICY_TTL            - lifetime of generated documents (default: "1h")
//	MAX_SIZE              - content-length-range upper bound of generated documents
//	KEY_PREFIX            - object key prefix (default: "test/")
//	ACCEPT                - accept list, e.g. "image/*,.pdf"
//	STRICT_KEYS           - reject unsafe object keys
//	UPLOAD_TIMEOUT        - per-request timeout (default: "30m")
//
// Receiver:
//
//	BUCKET       - bucket name matched by bucket conditions
//	DATABASE_URL - "memory" (default) or "postgresql://..."
//	DB_SCHEMA    - Postgres schema
//	STORAGE_URL  - "memory://" (default), "file:///path/to/data" or
//	               "s3://bucket?region=us-east-1&endpoint=http://localhost:9000&path_style=true"
func WithEnv(prefix string) Option {
	return func(c *Config) error {
		if err := applySigningEnv(prefix, c); err != nil {
			return err
		}
		if v, ok := lookupEnv(prefix, "BUCKET"); ok {
			c.Bucket = v
		}
		if v, ok := lookupEnv(prefix, "DB_SCHEMA"); ok {
			c.DBSchema = v
		}
		if err := applyDatabaseEnv(prefix, c); err != nil {
			return err
		}
		return applyStorageEnv(prefix, c)
	}
}

func applySigningEnv(prefix string, c *Config) error {
	if v, ok := lookupEnv(prefix, "ACCESS_ID"); ok && v != "" {
		c.AccessID = v
	}
	if v, ok := lookupEnv(prefix, "ACCESS_KEY"); ok && v != "" {
		c.AccessKey = v
	}
	if v, ok := lookupEnv(prefix, "HOST"); ok && v != "" {
		c.Host = v
	}
	if v, ok := lookupEnv(prefix, "POLICY"); ok && v != "" {
		c.PolicyText = v
	}
	if v, ok := lookupEnv(prefix, "POLICY_FILE"); ok && v != "" {
		text, err := readPolicyFile(v)
		if err != nil {
			return err
		}
		c.PolicyText = text
	}
	if v, ok := lookupEnv(prefix, "KEY_PREFIX"); ok {
		c.KeyPrefix = v
	}
	if v, ok := lookupEnv(prefix, "ACCEPT"); ok {
		c.Accept = v
	}

	if d, ok, err := parseDurationEnv(prefix, "POLICY_TTL"); err != nil {
		return err
	} else if ok {
		c.PolicyTTL = d
	}
	if d, ok, err := parseDurationEnv(prefix, "UPLOAD_TIMEOUT"); err != nil {
		return err
	} else if ok {
		c.UploadTimeout = d
	}
	if n, ok, err := parseInt64Env(prefix, "MAX_SIZE"); err != nil {
		return err
	} else if ok {
		c.MaxSize = n
	}
	if b, ok, err := parseBoolEnv(prefix, "STRICT_KEYS"); err != nil {
		return err
	} else if ok {
		c.StrictKeys = b
	}
	return nil
}

// applyDatabaseEnv applies database configuration from environment
func applyDatabaseEnv(prefix string, c *Config) error {
	dbURL, hasURL := lookupEnv(prefix, "DATABASE_URL")

	if !hasURL || dbURL == "" || dbURL == "memory" {
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
		return nil
	}

	if strings.HasPrefix(dbURL, "postgresql://") || strings.HasPrefix(dbURL, "postgres://") {
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
		return nil
	}

	return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
}

// applyStorageEnv applies storage configuration from environment
func applyStorageEnv(prefix string, c *Config) error {
	storageURL, hasURL := lookupEnv(prefix, "STORAGE_URL")

	if !hasURL || storageURL == "" || storageURL == "memory" || storageURL == "memory://" {
		c.Storage = StorageConfig{Type: "memory"}
		return nil
	}

	u, err := url.Parse(storageURL)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}

	switch u.Scheme {
	case "file":
		if u.Path == "" {
			return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		c.Storage = StorageConfig{Type: "fs", BaseDir: u.Path}
		return nil

	case "s3":
		if u.Host == "" {
			return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
		}
		q := u.Query()
		cfg := s3storage.Config{
			Bucket:       u.Host,
			Region:       q.Get("region"),
			Endpoint:     q.Get("endpoint"),
			SSEAlgorithm: q.Get("sse"),
		}
		cfg.UsePathStyle, _ = strconv.ParseBool(q.Get("path_style"))
		cfg.CreateBucketIfNotExist, _ = strconv.ParseBool(q.Get("create_bucket"))
		cfg.EnableSSE = cfg.SSEAlgorithm != ""
		cfg.SSEKMSKeyID = q.Get("kms_key_id")

		if v, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok && v != "" {
			cfg.AccessKeyID = v
		}
		if v, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok && v != "" {
			cfg.SecretAccessKey = v
		}
		if v, ok := os.LookupEnv("AWS_REGION"); ok && v != "" && cfg.Region == "" {
			cfg.Region = v
		}
		c.Storage = StorageConfig{Type: "s3", S3: cfg}
		return nil
	}

	return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", storageURL)
}

func lookupEnv(prefix, key string) (string, bool) {
	return os.LookupEnv(prefix + key)
}

func parseBoolEnv(prefix, key string) (bool, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("invalid boolean for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func parseInt64Env(prefix, key string) (int64, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid integer for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func parseDurationEnv(prefix, key string) (time.Duration, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid duration for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}
