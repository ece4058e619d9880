package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// stateRow is the singleton row holding the state document.
type stateRow struct {
	ID        uint      `gorm:"primaryKey;check:id = 1"`
	Document  string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (stateRow) TableName() string {
	return "migration_state"
}

// SQLiteBackend keeps the document in a SQLite database, one row replaced
// in a single statement per save.
type SQLiteBackend struct {
	db   *gorm.DB
	path string
}

// OpenSQLite opens (creating if needed) the state database at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(fmt.Errorf("create state directory: %w", err)).
				Component("state").
				Category(errors.CategoryFileIO).
				Build()
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(GetLogger().Module("sqlite"), slowQueryThreshold),
	})
	if err != nil {
		return nil, errors.New(fmt.Errorf("open state database: %w", err)).
			Component("state").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}
	if err := db.AutoMigrate(&stateRow{}); err != nil {
		return nil, errors.New(fmt.Errorf("migrate state schema: %w", err)).
			Component("state").
			Category(errors.CategoryDatabase).
			Build()
	}
	return &SQLiteBackend{db: db, path: path}, nil
}

func (b *SQLiteBackend) Read(ctx context.Context) ([]byte, error) {
	var row stateRow
	err := b.db.WithContext(ctx).First(&row, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, err
	}
	return []byte(row.Document), nil
}

func (b *SQLiteBackend) Write(ctx context.Context, data []byte) error {
	row := stateRow{ID: 1, Document: string(data)}
	return b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"document", "updated_at"}),
	}).Create(&row).Error
}

func (b *SQLiteBackend) Remove(ctx context.Context) error {
	return b.db.WithContext(ctx).Delete(&stateRow{}, 1).Error
}

func (b *SQLiteBackend) Location() string { return "sqlite:" + b.path }

func (b *SQLiteBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
