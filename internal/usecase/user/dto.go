package user

import (
	"time"

	domain "bookbridge/internal/domain/user"
)

// CreateUserRequest represents the request payload for registering a user.
type CreateUserRequest struct {
	Email string `validate:"required,email,max=254"`
	Name  string `validate:"required,max=100"`
	Age   *int   `validate:"omitempty,gte=0,lte=2147483647"`
}

// ListUsersResponse represents the response payload for user listing.
type ListUsersResponse struct {
	Users []User
}

// User represents a user DTO (Data Transfer Object) for API responses.
type User struct {
	ID        int64
	Email     string
	Name      string
	Age       *int
	CreatedAt time.Time
}

func fromDomain(u *domain.User) User {
	out := User{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}
	if u.Age != nil {
		age := *u.Age
		out.Age = &age
	}
	return out
}
