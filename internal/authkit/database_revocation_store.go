package authkit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("database.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("database.empty_database_url")
	errSQLiteEmptyPath     = errors.New("database.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("database.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("database.unsupported_no_scheme")
)

// DatabaseRevocationStore persists revocation entries using GORM.
type DatabaseRevocationStore struct {
	db          *gorm.DB
	driverLabel string
	clock       Clock
}

// Driver exposes the selected database driver label.
func (store *DatabaseRevocationStore) Driver() string {
	return store.driverLabel
}

type revocationRecord struct {
	KeyID            string `gorm:"column:key_id;primaryKey"`
	Value            string `gorm:"column:value;not null;default:''"`
	ExpiresUnixMilli int64  `gorm:"column:expires_unix_milli;index;not null"`
}

func (revocationRecord) TableName() string {
	return "revocation_entries"
}

// OpenDatabase opens a GORM connection for a postgres:// or sqlite:// URL.
func OpenDatabase(databaseURL string) (*gorm.DB, string, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, "", fmt.Errorf("database.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := ResolveDialector(databaseURL)
	if err != nil {
		return nil, "", err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if openErr != nil {
		return nil, "", fmt.Errorf("database.open.%s: %w", driverLabel, openErr)
	}
	return gormDB, driverLabel, nil
}

// NewDatabaseRevocationStore constructs a GORM-backed store. A nil clock uses the system clock.
func NewDatabaseRevocationStore(ctx context.Context, databaseURL string, clock Clock) (*DatabaseRevocationStore, error) {
	gormDB, driverLabel, err := OpenDatabase(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("revocation_store.open: %w", err)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&revocationRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("revocation_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &DatabaseRevocationStore{
		db:          gormDB,
		driverLabel: driverLabel,
		clock:       clock,
	}, nil
}

// Put upserts the record for key.
func (store *DatabaseRevocationStore) Put(ctx context.Context, key string, value string, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("revocation_store.put.%s: %w", store.driverLabel, ErrRevocationKeyEmpty)
	}
	if ttl <= 0 {
		return fmt.Errorf("revocation_store.put.%s: %w", store.driverLabel, ErrRevocationTTLInvalid)
	}
	record := revocationRecord{
		KeyID:            key,
		Value:            value,
		ExpiresUnixMilli: store.clock.Now().Add(ttl).UnixMilli(),
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_unix_milli"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("revocation_store.put.%s: %w", store.driverLabel, err)
	}
	return nil
}

// Get locates a live record by key.
func (store *DatabaseRevocationStore) Get(ctx context.Context, key string) (string, error) {
	var record revocationRecord
	err := store.db.WithContext(ctx).
		Where("key_id = ? AND expires_unix_milli > ?", key, store.clock.Now().UnixMilli()).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("revocation_store.get.%s: %w", store.driverLabel, ErrRevocationKeyNotFound)
		}
		return "", fmt.Errorf("revocation_store.get.%s: %w", store.driverLabel, err)
	}
	return record.Value, nil
}

// Delete removes a live record. Only one concurrent caller observes success.
func (store *DatabaseRevocationStore) Delete(ctx context.Context, key string) error {
	result := store.db.WithContext(ctx).
		Where("key_id = ? AND expires_unix_milli > ?", key, store.clock.Now().UnixMilli()).
		Delete(&revocationRecord{})
	if result.Error != nil {
		return fmt.Errorf("revocation_store.delete.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("revocation_store.delete.%s: %w", store.driverLabel, ErrRevocationKeyNotFound)
	}
	return nil
}

// PurgeExpired removes records past their expiry and reports how many were deleted.
func (store *DatabaseRevocationStore) PurgeExpired(ctx context.Context) (int64, error) {
	result := store.db.WithContext(ctx).
		Where("expires_unix_milli <= ?", store.clock.Now().UnixMilli()).
		Delete(&revocationRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("revocation_store.purge.%s: %w", store.driverLabel, result.Error)
	}
	return result.RowsAffected, nil
}

// Close releases the underlying connection pool.
func (store *DatabaseRevocationStore) Close() error {
	sqlDB, err := store.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ResolveDialector maps a database URL onto a GORM dialector and driver label.
func ResolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("database.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("database.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("database.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("database.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
