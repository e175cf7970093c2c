package user

import "context"

// Usecase defines the user registry operations exposed to transports.
type Usecase interface {
	CreateUser(ctx context.Context, in CreateUserRequest) (*User, error)
	ListUsers(ctx context.Context) (*ListUsersResponse, error)
}
