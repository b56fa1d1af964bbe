// Package store opens the configured ban list document store.
package store

import (
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/rbxmod/banlist/internal/config"
	"github.com/rbxmod/banlist/pkg/database"
	"github.com/rbxmod/banlist/pkg/docstore"
	dbadapter "github.com/rbxmod/banlist/pkg/docstore/adapters/database"
	"github.com/rbxmod/banlist/pkg/docstore/adapters/github"
	"github.com/rbxmod/banlist/pkg/docstore/adapters/local"
	"github.com/rbxmod/banlist/pkg/docstore/adapters/s3"
)

// Store is an open document store.
type Store struct {
	docstore.Store

	close func() error
}

// Close releases backend resources.
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open creates the store selected by cfg.Store.Backend.
func Open(cfg *config.Config, logger hclog.Logger) (*Store, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	switch cfg.Store.Backend {
	case config.BackendGitHub:
		adapter, err := github.NewAdapter(&github.Config{
			BaseURL:        cfg.GitHub.APIURL,
			Token:          cfg.GitHub.Token,
			Owner:          cfg.GitHub.Owner,
			Repo:           cfg.GitHub.Repo,
			Path:           cfg.Store.Path,
			Branch:         cfg.GitHub.Branch,
			CommitterName:  cfg.GitHub.CommitterName,
			CommitterEmail: cfg.GitHub.CommitterEmail,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("error initializing github store: %w", err)
		}
		return &Store{Store: adapter}, nil

	case config.BackendS3:
		adapter, err := s3.NewAdapter(&s3.Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			Key:       cfg.Store.Path,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("error initializing s3 store: %w", err)
		}
		return &Store{Store: adapter}, nil

	case config.BackendLocal:
		adapter, err := local.NewAdapter(&local.Config{
			Path:    cfg.Store.Path,
			History: cfg.Local.History,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("error initializing local store: %w", err)
		}
		return &Store{Store: adapter}, nil

	case config.BackendDatabase:
		db, err := database.Connect(database.Config{
			Driver:   cfg.Database.Driver,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			Path:     cfg.Database.Path,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("error connecting to database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("error getting database handle: %w", err)
		}

		adapter, err := dbadapter.NewAdapter(db, cfg.Store.Path, logger)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("error initializing database store: %w", err)
		}
		return &Store{Store: adapter, close: sqlDB.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
}
