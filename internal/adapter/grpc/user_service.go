package grpc

import (
	"context"
	"errors"
	"math"
	"time"

	"bookbridge/internal/usecase/user"
	apperrors "bookbridge/pkg/errors"
	"bookbridge/pkg/logger"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// UserService implements UserServiceServer on top of the user usecase.
type UserService struct {
	uc  user.Usecase
	log *zap.Logger
}

// NewUserService creates a new gRPC user service
func NewUserService(uc user.Usecase, log *zap.Logger) *UserService {
	return &UserService{uc: uc, log: log}
}

// CreateUser handles gRPC CreateUser request
func (s *UserService) CreateUser(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := createRequestFromStruct(in)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	created, err := s.uc.CreateUser(ctx, req)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	out, err := userToStruct(*created)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return out, nil
}

// ListUsers handles gRPC ListUsers request
func (s *UserService) ListUsers(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	resp, err := s.uc.ListUsers(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	values := make([]*structpb.Value, 0, len(resp.Users))
	for _, u := range resp.Users {
		st, err := userToStruct(u)
		if err != nil {
			return nil, s.toStatus(ctx, err)
		}
		values = append(values, structpb.NewStructValue(st))
	}
	return &structpb.ListValue{Values: values}, nil
}

// toStatus maps usecase errors to gRPC status errors. Anything without a
// status of its own is reported as Internal without details.
func (s *UserService) toStatus(ctx context.Context, err error) error {
	var gs apperrors.GRPCStatuser
	if errors.As(err, &gs) {
		return gs.GRPCStatus().Err()
	}
	logger.WithContext(ctx, s.log).Error("unexpected gRPC handler error", zap.Error(err))
	return status.Error(codes.Internal, "internal server error")
}

func createRequestFromStruct(in *structpb.Struct) (user.CreateUserRequest, error) {
	var (
		req    user.CreateUserRequest
		err    error
		fields = in.GetFields()
	)

	if req.Email, err = stringField(fields, "email"); err != nil {
		return req, err
	}
	if req.Name, err = stringField(fields, "name"); err != nil {
		return req, err
	}

	v, ok := fields["age"]
	if !ok {
		return req, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		// range is checked by the usecase; only integers int can hold exactly get through
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return req, apperrors.NewValidationError("age", "age must be an integer")
		}
		age := int(n)
		req.Age = &age
	default:
		return req, apperrors.NewValidationError("age", "age must be an integer")
	}
	return req, nil
}

// stringField reads an optional string; absent and null both read as "".
func stringField(fields map[string]*structpb.Value, name string) (string, error) {
	v, ok := fields[name]
	if !ok {
		return "", nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	case *structpb.Value_NullValue:
		return "", nil
	}
	return "", apperrors.NewValidationError(name, name+" must be a string")
}

func userToStruct(u user.User) (*structpb.Struct, error) {
	m := map[string]any{
		"id":         u.ID,
		"email":      u.Email,
		"name":       u.Name,
		"created_at": u.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if u.Age != nil {
		m["age"] = *u.Age
	}
	return structpb.NewStruct(m)
}
