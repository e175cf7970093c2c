// Package gateway exposes the gRPC user service as JSON over HTTP using the
// grpc-gateway runtime.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	grpcadapter "bookbridge/internal/adapter/grpc"
	"bookbridge/pkg/logger"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// UsersPath is the collection route served by the gateway.
const UsersPath = "/v1/users"

// errorBody matches the REST surface's error shape.
type errorBody struct {
	Error string `json:"error"`
}

// NewServeMux returns a gateway mux whose routes call the user service
// through cc.
func NewServeMux(cc grpc.ClientConnInterface, log *zap.Logger) (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux(
		runtime.WithMarshalerOption(runtime.MIMEWildcard, &runtime.JSONPb{
			MarshalOptions:   protojson.MarshalOptions{UseProtoNames: true},
			UnmarshalOptions: protojson.UnmarshalOptions{DiscardUnknown: true},
		}),
		runtime.WithIncomingHeaderMatcher(headerMatcher),
		runtime.WithErrorHandler(errorHandler(log)),
	)

	client := grpcadapter.NewUserServiceClient(cc)

	if err := mux.HandlePath(http.MethodPost, UsersPath, createUser(mux, client)); err != nil {
		return nil, fmt.Errorf("failed to register POST %s: %w", UsersPath, err)
	}
	if err := mux.HandlePath(http.MethodGet, UsersPath, listUsers(mux, client)); err != nil {
		return nil, fmt.Errorf("failed to register GET %s: %w", UsersPath, err)
	}

	return mux, nil
}

// headerMatcher forwards the request ID in addition to the default headers.
func headerMatcher(key string) (string, bool) {
	if strings.EqualFold(key, logger.RequestIDHeader) {
		return strings.ToLower(key), true
	}
	return runtime.DefaultHeaderMatcher(key)
}

func createUser(mux *runtime.ServeMux, client *grpcadapter.UserServiceClient) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		inbound, outbound := runtime.MarshalerForRequest(mux, r)

		ctx, err := runtime.AnnotateContext(r.Context(), mux, r, grpcadapter.CreateUserMethod, runtime.WithHTTPPathPattern(UsersPath))
		if err != nil {
			runtime.HTTPError(r.Context(), mux, outbound, w, r, err)
			return
		}

		var in structpb.Struct
		if err := inbound.NewDecoder(r.Body).Decode(&in); err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, status.Error(codes.InvalidArgument, "request body must be a JSON object"))
			return
		}

		var md runtime.ServerMetadata
		resp, err := client.CreateUser(ctx, &in, grpc.Header(&md.HeaderMD), grpc.Trailer(&md.TrailerMD))
		ctx = runtime.NewServerMetadataContext(ctx, md)
		if err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, err)
			return
		}

		writeMessage(ctx, mux, outbound, w, r, http.StatusCreated, resp)
	}
}

func listUsers(mux *runtime.ServeMux, client *grpcadapter.UserServiceClient) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		_, outbound := runtime.MarshalerForRequest(mux, r)

		ctx, err := runtime.AnnotateContext(r.Context(), mux, r, grpcadapter.ListUsersMethod, runtime.WithHTTPPathPattern(UsersPath))
		if err != nil {
			runtime.HTTPError(r.Context(), mux, outbound, w, r, err)
			return
		}

		var md runtime.ServerMetadata
		resp, err := client.ListUsers(ctx, &emptypb.Empty{}, grpc.Header(&md.HeaderMD), grpc.Trailer(&md.TrailerMD))
		ctx = runtime.NewServerMetadataContext(ctx, md)
		if err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, err)
			return
		}

		writeMessage(ctx, mux, outbound, w, r, http.StatusOK, resp)
	}
}

// writeMessage renders msg with the given status. runtime.ForwardResponseMessage
// always answers 200, which is wrong for creation.
func writeMessage(ctx context.Context, mux *runtime.ServeMux, m runtime.Marshaler, w http.ResponseWriter, r *http.Request, code int, msg proto.Message) {
	buf, err := m.Marshal(msg)
	if err != nil {
		runtime.HTTPError(ctx, mux, m, w, r, err)
		return
	}
	echoRequestID(ctx, w)
	w.Header().Set("Content-Type", m.ContentType(msg))
	w.WriteHeader(code)
	_, _ = w.Write(buf)
}

// errorHandler renders gRPC errors as {"error": message} with the HTTP status
// the gateway runtime assigns to the code.
func errorHandler(log *zap.Logger) runtime.ErrorHandlerFunc {
	return func(ctx context.Context, _ *runtime.ServeMux, m runtime.Marshaler, w http.ResponseWriter, r *http.Request, err error) {
		st := status.Convert(err)
		code := runtime.HTTPStatusFromCode(st.Code())
		if code >= http.StatusInternalServerError {
			log.Error("gateway request failed", zap.String("path", r.URL.Path), zap.Error(err))
		}

		echoRequestID(ctx, w)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)

		buf, merr := m.Marshal(errorBody{Error: st.Message()})
		if merr != nil {
			buf = []byte(`{"error":"internal server error"}`)
		}
		_, _ = w.Write(buf)
	}
}

// echoRequestID copies the request ID the service reported back to the client.
func echoRequestID(ctx context.Context, w http.ResponseWriter) {
	md, ok := runtime.ServerMetadataFromContext(ctx)
	if !ok {
		return
	}
	if ids := md.HeaderMD.Get("x-request-id"); len(ids) > 0 {
		w.Header().Set(logger.RequestIDHeader, ids[0])
	}
}
