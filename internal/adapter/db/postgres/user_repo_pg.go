package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"bookbridge/internal/domain/user"
	apperrors "bookbridge/pkg/errors"
)

// UserRepoPG implements the Repository interface using GORM.
// The same code runs against Postgres and SQLite dialectors.
type UserRepoPG struct {
	db  *gorm.DB    // GORM database connection
	log *zap.Logger // Structured logger for database operations
}

// NewUserRepoPG creates a new instance of UserRepoPG.
func NewUserRepoPG(db *gorm.DB, log *zap.Logger) *UserRepoPG {
	return &UserRepoPG{db: db, log: log}
}

// UserSchema represents the database schema for the User table.
type UserSchema struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`      // Unique identifier with auto-increment
	Email     string    `gorm:"not null;uniqueIndex;size:254"` // Unique email address
	Name      string    `gorm:"not null;size:100"`             // Display name
	Age       *int      // Optional age
	CreatedAt time.Time `gorm:"not null"`
}

// TableName keeps the table name of the existing BookBridge schema.
func (UserSchema) TableName() string {
	return "User"
}

// Migrate creates or updates the User table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&UserSchema{}); err != nil {
		return fmt.Errorf("failed to migrate user schema: %w", err)
	}
	return nil
}

// Create inserts a new user and returns the stored row.
func (r *UserRepoPG) Create(ctx context.Context, u *user.User) (*user.User, error) {
	if u == nil {
		return nil, errors.New("user cannot be nil")
	}

	model := UserSchema{
		Email: u.Email,
		Name:  u.Name,
		Age:   u.Age,
	}

	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isDuplicateKey(err) {
			r.log.Debug("duplicate email in db", zap.String("email", u.Email))
			return nil, fmt.Errorf("failed to create user: %w", apperrors.ErrDuplicate)
		}
		r.log.Error("failed to create user in db", zap.Error(err))
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	r.log.Info("user created in db", zap.Int64("id", model.ID))
	return toDomain(&model), nil
}

// List returns all users ordered by insertion.
func (r *UserRepoPG) List(ctx context.Context) ([]user.User, error) {
	var models []UserSchema
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		r.log.Error("failed to list users from db", zap.Error(err))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]user.User, len(models))
	for i := range models {
		users[i] = *toDomain(&models[i])
	}

	return users, nil
}

func toDomain(m *UserSchema) *user.User {
	return &user.User{
		ID:        m.ID,
		Email:     m.Email,
		Name:      m.Name,
		Age:       m.Age,
		CreatedAt: m.CreatedAt,
	}
}

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// isDuplicateKey reports a unique constraint violation. TranslateError covers
// dialectors that implement it; the driver checks cover the rest.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
