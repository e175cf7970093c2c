package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	domain "bookbridge/internal/domain/user"
	apperrors "bookbridge/pkg/errors"

	"github.com/go-playground/validator/v10"
)

// Repository defines the interface for user data access operations.
// Implementations own email uniqueness and must report a violation
// with an error wrapping apperrors.ErrDuplicate.
type Repository interface {
	Create(ctx context.Context, u *domain.User) (*domain.User, error) // Persist a new user and return the stored record
	List(ctx context.Context) ([]domain.User, error)                  // All users in insertion order
}

// Registry implements the user registration business logic.
type Registry struct {
	repo     Repository          // Repository for data access
	log      *zap.Logger         // Logger for structured logging
	validate *validator.Validate // Validator for request shape checks
}

// New creates a new Registry backed by the given repository.
func New(r Repository, log *zap.Logger) *Registry {
	return &Registry{repo: r, log: log, validate: validator.New()}
}

// formatValidationError converts validator.ValidationErrors into a ValidationError.
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "email":
			messages = append(messages, fmt.Sprintf("%s must be a valid email", field))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters", field, e.Param()))
		case "gte":
			messages = append(messages, fmt.Sprintf("%s must be greater than or equal to %s", field, e.Param()))
		case "lte":
			messages = append(messages, fmt.Sprintf("%s must be less than or equal to %s", field, e.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid", field))
		}
	}

	if len(validationErrors) == 1 {
		return apperrors.NewValidationError(strings.ToLower(validationErrors[0].Field()), messages[0])
	}
	return apperrors.NewValidationError("", strings.Join(messages, ", "))
}

// CreateUser validates the request and persists a new user.
// The persisted record, including store-assigned fields, is returned.
func (r *Registry) CreateUser(ctx context.Context, in CreateUserRequest) (*User, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)

	r.log.Debug("creating user", zap.String("email", in.Email))

	if err := r.validate.Struct(in); err != nil {
		r.log.Warn("validate failed", zap.Error(err))
		return nil, formatValidationError(err)
	}

	stored, err := r.repo.Create(ctx, &domain.User{
		Email: in.Email,
		Name:  in.Name,
		Age:   in.Age,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			r.log.Info("email already registered")
		} else {
			r.log.Error("failed to create user", zap.Error(err))
		}
		return nil, apperrors.NewStorageError("create", err)
	}

	out := fromDomain(stored)
	return &out, nil
}

// ListUsers returns every registered user in insertion order.
func (r *Registry) ListUsers(ctx context.Context) (*ListUsersResponse, error) {
	domainUsers, err := r.repo.List(ctx)
	if err != nil {
		r.log.Error("failed to list users", zap.Error(err))
		return nil, apperrors.NewStorageError("list", err)
	}

	users := make([]User, len(domainUsers))
	for i := range domainUsers {
		users[i] = fromDomain(&domainUsers[i])
	}

	r.log.Debug("listed users", zap.Int("count", len(users)))
	return &ListUsersResponse{Users: users}, nil
}
