package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/config"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/observability"
)

// KVEntry is a single durable-tier record.
type KVEntry struct {
	Key       string     `gorm:"primaryKey;size:128"`
	Value     string     `gorm:"not null"`
	ExpiresAt *time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// GormStore is the durable tier, backed by sqlite in development and
// postgres in production.
type GormStore struct {
	db *gorm.DB
}

// OpenDatabase opens the configured database and migrates the KV schema.
func OpenDatabase(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseDSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("open database: unsupported driver %q", cfg.DatabaseDriver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&KVEntry{}); err != nil {
		return nil, fmt.Errorf("migrate kv schema: %w", err)
	}
	return db, nil
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Name() string { return "durable" }

func (s *GormStore) Get(ctx context.Context, key string) ([]byte, error) {
	var entry KVEntry
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordStorageOperation(ctx, s.Name(), "get", "not_found")
			return nil, ErrNotFound
		}
		observability.RecordStorageOperation(ctx, s.Name(), "get", "error")
		return nil, err
	}
	if entry.ExpiresAt != nil && entry.ExpiresAt.Before(time.Now()) {
		// Lazy expiry: purge on read, report absent.
		_ = s.db.WithContext(ctx).Where("key = ?", key).Delete(&KVEntry{}).Error
		observability.RecordStorageOperation(ctx, s.Name(), "get", "expired")
		return nil, ErrNotFound
	}
	observability.RecordStorageOperation(ctx, s.Name(), "get", "success")
	return []byte(entry.Value), nil
}

func (s *GormStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := KVEntry{Key: key, Value: string(value)}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		entry.ExpiresAt = &exp
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		observability.RecordStorageOperation(ctx, s.Name(), "set", "error")
		return err
	}
	observability.RecordStorageOperation(ctx, s.Name(), "set", "success")
	return nil
}

func (s *GormStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&KVEntry{}).Error
	if err != nil {
		observability.RecordStorageOperation(ctx, s.Name(), "delete", "error")
		return err
	}
	observability.RecordStorageOperation(ctx, s.Name(), "delete", "success")
	return nil
}

// Ping verifies the underlying database connection, for readiness probes.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CleanupExpired removes entries whose expiry has passed. Run periodically;
// reads already treat expired rows as absent.
func (s *GormStore) CleanupExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at < ?", time.Now()).Delete(&KVEntry{})
	return res.RowsAffected, res.Error
}
