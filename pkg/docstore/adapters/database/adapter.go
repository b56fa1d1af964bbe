// Package database stores the ban document as a row in a SQL table through
// GORM. The revision is a monotonically increasing version number and every
// write appends an audit row to the history table.
package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/rbxmod/banlist/pkg/docstore"
)

var (
	_ docstore.Store         = (*Adapter)(nil)
	_ docstore.HistoryReader = (*Adapter)(nil)
)

// Document is the stored ban document.
type Document struct {
	Path      string `gorm:"primaryKey;size:512"`
	Content   []byte `gorm:"not null"`
	Version   int64  `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName sets the table name.
func (Document) TableName() string {
	return "ban_documents"
}

// DocumentHistory records one write to a Document.
type DocumentHistory struct {
	ID        uint   `gorm:"primaryKey"`
	Path      string `gorm:"size:512;index"`
	Version   int64  `gorm:"not null"`
	Message   string `gorm:"type:text"`
	CreatedAt time.Time
}

// TableName sets the table name.
func (DocumentHistory) TableName() string {
	return "ban_document_history"
}

// Adapter implements docstore.Store on a GORM database.
type Adapter struct {
	db     *gorm.DB
	path   string
	logger hclog.Logger
}

// NewAdapter creates the adapter and migrates its tables.
func NewAdapter(db *gorm.DB, path string, logger hclog.Logger) (*Adapter, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if path == "" {
		return nil, fmt.Errorf("document path is required")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if err := db.AutoMigrate(&Document{}, &DocumentHistory{}); err != nil {
		return nil, fmt.Errorf("failed to migrate document tables: %w", err)
	}

	return &Adapter{
		db:     db,
		path:   path,
		logger: logger.Named("database-store"),
	}, nil
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	return "database"
}

// Get loads the document row.
func (a *Adapter) Get(ctx context.Context) (*docstore.Object, error) {
	var doc Document
	err := a.db.WithContext(ctx).
		Where("path = ?", a.path).
		First(&doc).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", a.path, err)
	}

	return &docstore.Object{
		Content:  doc.Content,
		Revision: strconv.FormatInt(doc.Version, 10),
	}, nil
}

// Put inserts or conditionally updates the document row.
func (a *Adapter) Put(ctx context.Context, content []byte, revision, message string) (string, error) {
	var newVersion int64

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if revision == "" {
			newVersion = 1
			err := tx.Create(&Document{Path: a.path, Content: content, Version: newVersion}).Error
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("document %s already exists: %w", a.path, docstore.ErrConflict)
			}
			if err != nil {
				return fmt.Errorf("failed to create document %s: %w", a.path, err)
			}
		} else {
			current, err := strconv.ParseInt(revision, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid revision %q: %w", revision, docstore.ErrConflict)
			}
			newVersion = current + 1

			result := tx.Model(&Document{}).
				Where("path = ? AND version = ?", a.path, current).
				Updates(map[string]any{
					"content":    content,
					"version":    newVersion,
					"updated_at": time.Now(),
				})
			if result.Error != nil {
				return fmt.Errorf("failed to update document %s: %w", a.path, result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("document %s is no longer at version %d: %w", a.path, current, docstore.ErrConflict)
			}
		}

		return tx.Create(&DocumentHistory{
			Path:    a.path,
			Version: newVersion,
			Message: message,
		}).Error
	})
	if err != nil {
		return "", err
	}

	a.logger.Debug("wrote document", "path", a.path, "version", newVersion)
	return strconv.FormatInt(newVersion, 10), nil
}

// History implements docstore.HistoryReader.
func (a *Adapter) History(ctx context.Context, limit int) ([]docstore.Change, error) {
	var entries []DocumentHistory
	err := a.db.WithContext(ctx).
		Where("path = ?", a.path).
		Order("version DESC").
		Limit(limit).
		Find(&entries).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", a.path, err)
	}

	changes := make([]docstore.Change, 0, len(entries))
	for _, e := range entries {
		changes = append(changes, docstore.Change{
			Revision: strconv.FormatInt(e.Version, 10),
			Message:  e.Message,
			Time:     e.CreatedAt,
		})
	}
	return changes, nil
}
