// Package indexstore is the persistence layer for the document index.
// It mirrors the dual-backend (SQLite/PostgreSQL) GORM pattern used
// elsewhere in this codebase's storage layers, generalized to a single
// wide table keyed by (doc_type, relative_path).
package indexstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/docassistant/docassistant/pkg/apperrors"
)

// DatabaseType selects the backend IndexStore talks to.
type DatabaseType string

const (
	DatabaseTypeSQLite   DatabaseType = "sqlite"
	DatabaseTypePostgres DatabaseType = "postgres"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}
	return dsn
}

// Config selects and configures the IndexStore backend.
type Config struct {
	Type     DatabaseType
	SQLitePath string
	Postgres PostgresConfig

	// Truncate, when true, drops and recreates the indexed_files table
	// before migration. Used for IndexPersist=rescan.
	Truncate bool
}

// Store is the GORM-backed IndexedFile persistence layer.
type Store struct {
	db *gorm.DB
}

// New opens (and migrates) the index store.
func New(cfg Config) (*Store, error) {
	var dialector gorm.Dialector

	switch cfg.Type {
	case DatabaseTypePostgres:
		dialector = postgres.Open(cfg.Postgres.DSN())
	case DatabaseTypeSQLite, "":
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create index store directory: %w", err)
		}
		dsn := cfg.SQLitePath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported index store type: %s", cfg.Type)
	}

	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}

	if cfg.Type == DatabaseTypePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
	}

	if cfg.Truncate {
		if err := db.Migrator().DropTable(&Row{}); err != nil {
			return nil, fmt.Errorf("failed to drop index table for rescan: %w", err)
		}
	}

	if err := db.AutoMigrate(&Row{}); err != nil {
		return nil, fmt.Errorf("failed to migrate index store: %w", err)
	}

	return &Store{db: db}, nil
}

// Row is the GORM model for a single IndexedFile.
type Row struct {
	DocType      string `gorm:"primaryKey;column:doc_type"`
	RelativePath string `gorm:"primaryKey;column:relative_path"`
	FileName     string `gorm:"column:file_name;index"`
	Ext          string `gorm:"column:ext;index"`
	Size         int64  `gorm:"column:size"`
	ModifiedTime int64  `gorm:"column:modified_time"`
	ContentHash  string `gorm:"column:content_hash"`
	LastScanned  int64  `gorm:"column:last_scanned"`

	// Project metadata
	Year        string `gorm:"column:year;index"`
	ProjectName string `gorm:"column:project_name;index"`
	Status      string `gorm:"column:status"`

	// Spec / management metadata
	Category    string `gorm:"column:category;index"`
	SubCategory string `gorm:"column:sub_category"`
	DocName     string `gorm:"column:doc_name"`
}

func (Row) TableName() string { return "indexed_files" }

// Upsert replaces any existing row sharing (doc_type, relative_path).
func (s *Store) Upsert(ctx context.Context, row Row) error {
	return s.db.WithContext(ctx).Save(&row).Error
}

// DeleteByPath removes the row for an exact (docType, relativePath).
func (s *Store) DeleteByPath(ctx context.Context, docType, relativePath string) error {
	return s.db.WithContext(ctx).
		Where("doc_type = ? AND relative_path = ?", docType, relativePath).
		Delete(&Row{}).Error
}

// DeleteUnderDirectory removes every row whose relative_path starts
// with dirRelPath + the path separator, scoped to docType.
func (s *Store) DeleteUnderDirectory(ctx context.Context, docType, dirRelPath string) error {
	prefix := strings.TrimSuffix(dirRelPath, "/") + "/"
	return s.db.WithContext(ctx).
		Where("doc_type = ? AND relative_path LIKE ?", docType, prefix+"%").
		Delete(&Row{}).Error
}

// Get returns the row for an exact key, or apperrors.ErrNotFound.
func (s *Store) Get(ctx context.Context, docType, relativePath string) (*Row, error) {
	var row Row
	err := s.db.WithContext(ctx).
		Where("doc_type = ? AND relative_path = ?", docType, relativePath).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFoundf("indexed file %s/%s", docType, relativePath)
		}
		return nil, err
	}
	return &row, nil
}

// Query is a typed filter set over the indexed_files columns and
// typed-metadata fields. Every non-nil field is AND-ed into the
// WHERE clause. String fields containing '%' use LIKE, others use
// exact equality, matching the canonical filter contract.
type Query struct {
	DocType      *string
	RelativePath *string
	FileName     *string
	Ext          *string
	ContentHash  *string
	Year         *string
	ProjectName  *string
	Status       *string
	Category     *string
	SubCategory  *string
	DocName      *string
}

// Find runs a Query and returns every matching row.
func (s *Store) Find(ctx context.Context, q Query) ([]Row, error) {
	tx := s.db.WithContext(ctx).Model(&Row{})
	tx = applyStringFilter(tx, "doc_type", q.DocType)
	tx = applyStringFilter(tx, "relative_path", q.RelativePath)
	tx = applyStringFilter(tx, "file_name", q.FileName)
	tx = applyStringFilter(tx, "ext", q.Ext)
	tx = applyStringFilter(tx, "content_hash", q.ContentHash)
	tx = applyStringFilter(tx, "year", q.Year)
	tx = applyStringFilter(tx, "project_name", q.ProjectName)
	tx = applyStringFilter(tx, "status", q.Status)
	tx = applyStringFilter(tx, "category", q.Category)
	tx = applyStringFilter(tx, "sub_category", q.SubCategory)
	tx = applyStringFilter(tx, "doc_name", q.DocName)

	var rows []Row
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func applyStringFilter(tx *gorm.DB, column string, value *string) *gorm.DB {
	if value == nil {
		return tx
	}
	if strings.Contains(*value, "%") {
		return tx.Where(column+" LIKE ?", *value)
	}
	return tx.Where(column+" = ?", *value)
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
