package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/tyemirov/bookly/internal/authkit"
	"gorm.io/gorm"
)

// Store is the GORM-backed credential store.
type Store struct {
	db          *gorm.DB
	driverLabel string
}

// Open connects to databaseURL and migrates the catalog schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	gormDB, driverLabel, err := authkit.OpenDatabase(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("catalog.open: %w", err)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&User{}, &Book{}, &Review{}, &Tag{}); migrateErr != nil {
		return nil, fmt.Errorf("catalog.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &Store{db: gormDB, driverLabel: driverLabel}, nil
}

// Driver exposes the selected database driver label.
func (store *Store) Driver() string {
	return store.driverLabel
}

// DB exposes the connection for callers that manage books, reviews, and tags.
func (store *Store) DB() *gorm.DB {
	return store.db
}

// CreateUser inserts a new unverified user with the default role.
func (store *Store) CreateUser(ctx context.Context, newUser authkit.NewUser) (authkit.UserRecord, error) {
	user := User{
		Username:     newUser.Username,
		Email:        newUser.Email,
		FirstName:    newUser.FirstName,
		LastName:     newUser.LastName,
		Role:         "user",
		PasswordHash: newUser.PasswordHash,
	}
	if err := store.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return authkit.UserRecord{}, authkit.ErrUserAlreadyExists
		}
		return authkit.UserRecord{}, fmt.Errorf("catalog.create_user.%s: %w", store.driverLabel, err)
	}
	return toRecord(user), nil
}

// UserExists reports whether email is registered.
func (store *Store) UserExists(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := store.db.WithContext(ctx).Model(&User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, fmt.Errorf("catalog.user_exists.%s: %w", store.driverLabel, err)
	}
	return count > 0, nil
}

// GetUserByEmail returns authkit.ErrUserNotFound for unknown emails.
func (store *Store) GetUserByEmail(ctx context.Context, email string) (authkit.UserRecord, error) {
	var user User
	if err := store.findByEmail(ctx, email, &user); err != nil {
		return authkit.UserRecord{}, err
	}
	return toRecord(user), nil
}

// GetProfile loads a user together with their books and reviews.
func (store *Store) GetProfile(ctx context.Context, email string) (User, error) {
	var user User
	if err := store.findByEmail(ctx, email, &user, "Books", "Reviews"); err != nil {
		return User{}, err
	}
	return user, nil
}

// MarkVerified flags the account as verified.
func (store *Store) MarkVerified(ctx context.Context, email string) error {
	return store.updateByEmail(ctx, email, "is_verified", true)
}

// UpdatePasswordHash replaces the stored password hash.
func (store *Store) UpdatePasswordHash(ctx context.Context, email string, passwordHash string) error {
	return store.updateByEmail(ctx, email, "password_hash", passwordHash)
}

// Close releases the underlying connection pool.
func (store *Store) Close() error {
	sqlDB, err := store.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (store *Store) findByEmail(ctx context.Context, email string, user *User, preloads ...string) error {
	query := store.db.WithContext(ctx)
	for _, association := range preloads {
		query = query.Preload(association)
	}
	err := query.Where("email = ?", email).Take(user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return authkit.ErrUserNotFound
		}
		return fmt.Errorf("catalog.find_user.%s: %w", store.driverLabel, err)
	}
	return nil
}

func (store *Store) updateByEmail(ctx context.Context, email string, column string, value interface{}) error {
	result := store.db.WithContext(ctx).Model(&User{}).Where("email = ?", email).Update(column, value)
	if result.Error != nil {
		return fmt.Errorf("catalog.update_user.%s.%s: %w", column, store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return authkit.ErrUserNotFound
	}
	return nil
}

func toRecord(user User) authkit.UserRecord {
	return authkit.UserRecord{
		UserID:       user.UID,
		Username:     user.Username,
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Role:         user.Role,
		IsVerified:   user.IsVerified,
		PasswordHash: user.PasswordHash,
	}
}
