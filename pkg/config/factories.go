package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/depotfs/internal/logger"
	"github.com/marmos91/depotfs/pkg/auth"
	authbadger "github.com/marmos91/depotfs/pkg/auth/badger"
	authmemory "github.com/marmos91/depotfs/pkg/auth/memory"
	"github.com/marmos91/depotfs/pkg/authority"
	authoritybadger "github.com/marmos91/depotfs/pkg/authority/badger"
	authoritymemory "github.com/marmos91/depotfs/pkg/authority/memory"
	"github.com/marmos91/depotfs/pkg/cas"
	casbadger "github.com/marmos91/depotfs/pkg/cas/badger"
	casmemory "github.com/marmos91/depotfs/pkg/cas/memory"
	cass3 "github.com/marmos91/depotfs/pkg/cas/s3"
	"github.com/marmos91/depotfs/pkg/depot"
	depotbadger "github.com/marmos91/depotfs/pkg/depot/badger"
	depotmemory "github.com/marmos91/depotfs/pkg/depot/memory"
	"github.com/marmos91/depotfs/pkg/ownership"
	ownershipbadger "github.com/marmos91/depotfs/pkg/ownership/badger"
	ownershipmemory "github.com/marmos91/depotfs/pkg/ownership/memory"
)

// Stores holds every live backend the engine operates on. Close releases
// them in reverse creation order.
type Stores struct {
	Blobs   cas.BlobStore
	Dag     cas.DagStore
	Ledger  ownership.Ledger
	Tokens  authority.TokenStore
	Depots  depot.Store
	Roles   auth.RoleStore
	PubKeys auth.PubKeyStore

	closers []func() error
}

// Close closes every backend that needs closing.
func (s *Stores) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BuildStores creates every configured backend.
//
// When the blob and dag stores are both badger on the same db_path they
// share one database handle; the CAS key prefixes keep their records
// disjoint.
func BuildStores(ctx context.Context, cfg *Config) (*Stores, error) {
	stores := &Stores{
		// The pubkey store is in-memory only: keys are registered
		// through the running process, not persisted configuration.
		PubKeys: authmemory.NewPubKeyStore(),
	}

	if err := buildCasStores(ctx, cfg, stores); err != nil {
		return nil, err
	}

	ledger, err := buildOwnershipLedger(ctx, &cfg.Ownership, stores)
	if err != nil {
		stores.Close()
		return nil, err
	}
	stores.Ledger = ledger

	tokens, err := buildTokenStore(ctx, &cfg.Tokens, stores)
	if err != nil {
		stores.Close()
		return nil, err
	}
	stores.Tokens = tokens

	depots, err := buildDepotStore(ctx, &cfg.Depots, stores)
	if err != nil {
		stores.Close()
		return nil, err
	}
	stores.Depots = depots

	roles, err := buildRoleStore(ctx, &cfg.Roles, stores)
	if err != nil {
		stores.Close()
		return nil, err
	}
	stores.Roles = roles

	return stores, nil
}

// badgerOptions is the shape shared by every badger-backed store section.
type badgerOptions struct {
	DBPath           string `mapstructure:"db_path"`
	BlockCacheSizeMB int64  `mapstructure:"block_cache_size_mb"`
	IndexCacheSizeMB int64  `mapstructure:"index_cache_size_mb"`
}

func decodeBadgerOptions(name string, options map[string]any) (*badgerOptions, error) {
	var decoded badgerOptions
	if err := mapstructure.Decode(options, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode %s badger config: %w", name, err)
	}
	if decoded.DBPath == "" {
		return nil, fmt.Errorf("%s badger store: db_path is required", name)
	}
	return &decoded, nil
}

// buildCasStores wires the blob and dag backends, sharing one badger
// database when both point at the same path.
func buildCasStores(ctx context.Context, cfg *Config, stores *Stores) error {
	var shared *casbadger.Store

	switch cfg.Blob.Type {
	case "memory":
		stores.Blobs = casmemory.NewBlobStore()
	case "badger":
		opts, err := decodeBadgerOptions("blob", cfg.Blob.Badger)
		if err != nil {
			return err
		}
		store, err := casbadger.NewStore(ctx, casbadger.StoreConfig{
			DBPath:           opts.DBPath,
			BlockCacheSizeMB: opts.BlockCacheSizeMB,
			IndexCacheSizeMB: opts.IndexCacheSizeMB,
		})
		if err != nil {
			return err
		}
		stores.Blobs = store
		stores.closers = append(stores.closers, store.Close)
		shared = store
	case "s3":
		store, err := createS3BlobStore(ctx, cfg.Blob.S3)
		if err != nil {
			return err
		}
		stores.Blobs = store
	default:
		return fmt.Errorf("unknown blob store type: %q", cfg.Blob.Type)
	}

	switch cfg.Dag.Type {
	case "memory":
		stores.Dag = casmemory.NewDagStore()
	case "badger":
		opts, err := decodeBadgerOptions("dag", cfg.Dag.Badger)
		if err != nil {
			stores.Close()
			return err
		}
		if shared != nil && samePath(cfg.Blob.Badger, cfg.Dag.Badger) {
			stores.Dag = shared
			break
		}
		store, err := casbadger.NewStore(ctx, casbadger.StoreConfig{
			DBPath:           opts.DBPath,
			BlockCacheSizeMB: opts.BlockCacheSizeMB,
			IndexCacheSizeMB: opts.IndexCacheSizeMB,
		})
		if err != nil {
			stores.Close()
			return err
		}
		stores.Dag = store
		stores.closers = append(stores.closers, store.Close)
	default:
		stores.Close()
		return fmt.Errorf("unknown dag store type: %q", cfg.Dag.Type)
	}

	return nil
}

func samePath(a map[string]any, b map[string]any) bool {
	pathA, _ := a["db_path"].(string)
	pathB, _ := b["db_path"].(string)
	return pathA != "" && pathA == pathB
}

func buildOwnershipLedger(ctx context.Context, cfg *StoreSelection, stores *Stores) (ownership.Ledger, error) {
	switch cfg.Type {
	case "memory":
		return ownershipmemory.NewLedger(), nil
	case "badger":
		opts, err := decodeBadgerOptions("ownership", cfg.Badger)
		if err != nil {
			return nil, err
		}
		ledger, err := ownershipbadger.NewLedger(ctx, ownershipbadger.LedgerConfig{DBPath: opts.DBPath})
		if err != nil {
			return nil, err
		}
		stores.closers = append(stores.closers, ledger.Close)
		return ledger, nil
	default:
		return nil, fmt.Errorf("unknown ownership store type: %q", cfg.Type)
	}
}

func buildTokenStore(ctx context.Context, cfg *StoreSelection, stores *Stores) (authority.TokenStore, error) {
	switch cfg.Type {
	case "memory":
		return authoritymemory.NewTokenStore(), nil
	case "badger":
		opts, err := decodeBadgerOptions("tokens", cfg.Badger)
		if err != nil {
			return nil, err
		}
		store, err := authoritybadger.NewTokenStore(ctx, authoritybadger.TokenStoreConfig{DBPath: opts.DBPath})
		if err != nil {
			return nil, err
		}
		stores.closers = append(stores.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown token store type: %q", cfg.Type)
	}
}

func buildDepotStore(ctx context.Context, cfg *StoreSelection, stores *Stores) (depot.Store, error) {
	switch cfg.Type {
	case "memory":
		return depotmemory.NewStore(), nil
	case "badger":
		opts, err := decodeBadgerOptions("depots", cfg.Badger)
		if err != nil {
			return nil, err
		}
		store, err := depotbadger.NewStore(ctx, depotbadger.StoreConfig{DBPath: opts.DBPath})
		if err != nil {
			return nil, err
		}
		stores.closers = append(stores.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown depot store type: %q", cfg.Type)
	}
}

func buildRoleStore(ctx context.Context, cfg *StoreSelection, stores *Stores) (auth.RoleStore, error) {
	switch cfg.Type {
	case "memory":
		return authmemory.NewRoleStore(), nil
	case "badger":
		opts, err := decodeBadgerOptions("roles", cfg.Badger)
		if err != nil {
			return nil, err
		}
		store, err := authbadger.NewRoleStore(ctx, authbadger.RoleStoreConfig{DBPath: opts.DBPath})
		if err != nil {
			return nil, err
		}
		stores.closers = append(stores.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown role store type: %q", cfg.Type)
	}
}

// createS3BlobStore builds an AWS client and the S3 blob store from the
// untyped options map.
func createS3BlobStore(ctx context.Context, options map[string]any) (cas.BlobStore, error) {
	type s3Options struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var storeCfg s3Options
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 blob store config: %w", err)
	}
	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 blob store: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 blob store: region is required")
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(storeCfg.Region))

	// Custom endpoint support for MinIO, Localstack, and other
	// S3-compatible services.
	if storeCfg.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               storeCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if storeCfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	store, err := cass3.NewBlobStore(ctx, cass3.BlobStoreConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 blob store: %w", err)
	}

	logger.Info("S3 blob store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}
