package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/tendant/signed-upload/pkg/signedupload"
	"github.com/tendant/signed-upload/pkg/signedupload/ledger"
	ledgermemory "github.com/tendant/signed-upload/pkg/signedupload/ledger/memory"
	ledgerpg "github.com/tendant/signed-upload/pkg/signedupload/ledger/postgres"
	"github.com/tendant/signed-upload/pkg/signedupload/postpolicy"
	"github.com/tendant/signed-upload/pkg/signedupload/storage"
	fsstorage "github.com/tendant/signed-upload/pkg/signedupload/storage/fs"
	memorystorage "github.com/tendant/signed-upload/pkg/signedupload/storage/memory"
	s3storage "github.com/tendant/signed-upload/pkg/signedupload/storage/s3"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Load constructs a Config by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*Config, error) {
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

func defaults() Config {
	return Config{
		KeyPrefix:     signedupload.DefaultKeyPrefix,
		PolicyTTL:     time.Hour,
		MaxSize:       1048576000,
		UploadTimeout: 30 * time.Minute,
		DatabaseType:  "memory",
		Storage:       StorageConfig{Type: "memory"},
	}
}

// Config holds everything needed to sign uploads and run the receiver
type Config struct {
	// Signing
	AccessID   string
	AccessKey  string
	Host       string // upload endpoint and base of object URLs
	PolicyText string // fixed policy document; generated when empty
	PolicyTTL  time.Duration
	MaxSize    int64 // content-length-range upper bound of generated documents
	KeyPrefix  string
	Accept     string
	StrictKeys bool

	UploadTimeout time.Duration

	// Receiver
	Bucket       string
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string
	Storage      StorageConfig
}

// StorageConfig selects and configures the blob store
type StorageConfig struct {
	Type    string // "memory", "fs", "s3"
	BaseDir string
	S3      s3storage.Config
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.AccessID == "" {
		return errors.New("access id is required")
	}
	if c.AccessKey == "" {
		return errors.New("access key is required")
	}
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.PolicyText != "" && !json.Valid([]byte(c.PolicyText)) {
		return errors.New("policy text is not valid JSON")
	}
	if c.PolicyText == "" && c.PolicyTTL <= 0 {
		return errors.New("policy ttl must be positive")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.Storage.Type {
	case "memory":
	case "fs":
		if c.Storage.BaseDir == "" {
			return errors.New("filesystem base directory is required")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return errors.New("s3 bucket is required")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	return nil
}

// Document returns the policy document to sign. A fixed PolicyText is used
// as is; otherwise a document expiring PolicyTTL after now is generated.
func (c *Config) Document(now time.Time) (any, error) {
	if c.PolicyText != "" {
		return json.RawMessage(c.PolicyText), nil
	}

	doc := signedupload.PolicyDocument{
		Expiration: now.Add(c.PolicyTTL).UTC(),
		Conditions: []signedupload.Condition{
			signedupload.ContentLengthRange(0, c.MaxSize),
		},
	}
	if c.KeyPrefix != "" {
		doc.Conditions = append(doc.Conditions, signedupload.StartsWith("key", c.KeyPrefix))
	}
	if c.Bucket != "" {
		doc.Conditions = append(doc.Conditions, signedupload.Bucket(c.Bucket))
	}
	return doc, nil
}

// BuildPolicy creates an upload policy from the configuration
func (c *Config) BuildPolicy() (*signedupload.UploadPolicy, error) {
	doc, err := c.Document(time.Now())
	if err != nil {
		return nil, err
	}
	return signedupload.NewUploadPolicy(c.AccessID, c.AccessKey, doc, c.Host)
}

// BuildBuilder creates a Builder with a freshly built policy. opts are
// applied after the configured ones.
func (c *Config) BuildBuilder(opts ...signedupload.Option) (*signedupload.Builder, error) {
	policy, err := c.BuildPolicy()
	if err != nil {
		return nil, fmt.Errorf("failed to build policy: %w", err)
	}

	options := []signedupload.Option{
		signedupload.WithKeyPrefix(c.KeyPrefix),
		signedupload.WithHTTPClient(&http.Client{Timeout: c.UploadTimeout}),
	}
	if c.Accept != "" {
		options = append(options, signedupload.WithAccept(c.Accept))
	}
	if c.StrictKeys {
		options = append(options, signedupload.WithStrictKeys())
	}
	return signedupload.New(policy, append(options, opts...)...)
}

// BuildVerifier creates the receiver's verifier for the configured credential
func (c *Config) BuildVerifier(opts ...postpolicy.VerifierOption) *postpolicy.Verifier {
	if c.Bucket != "" {
		opts = append([]postpolicy.VerifierOption{postpolicy.WithBucket(c.Bucket)}, opts...)
	}
	return postpolicy.NewVerifier(postpolicy.Credentials{c.AccessID: c.AccessKey}, opts...)
}

// BuildStore creates the configured blob store
func (c *Config) BuildStore(ctx context.Context) (storage.BlobStore, error) {
	switch c.Storage.Type {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: c.Storage.BaseDir})
	case "s3":
		return s3storage.New(ctx, c.Storage.S3)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
}

// BuildLedger creates the configured ledger. The returned close function
// releases its connections.
func (c *Config) BuildLedger(ctx context.Context) (ledger.Ledger, func(), error) {
	switch c.DatabaseType {
	case "memory":
		return ledgermemory.New(), func() {}, nil
	case "postgres":
		pool, err := ledgerpg.Connect(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, nil, err
		}
		return ledgerpg.NewWithPool(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func readPolicyFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read policy file: %w", err)
	}
	if !json.Valid(data) {
		return "", fmt.Errorf("policy file %s is not valid JSON", path)
	}
	return string(data), nil
}
