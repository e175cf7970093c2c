package server

import (
	"fmt"
	"net/http"
	"time"

	"bookbridge/internal/adapter/gateway"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// SetupHTTPGateway creates the JSON gateway server and the client connection
// it uses to reach the gRPC server. The caller owns the connection.
func SetupHTTPGateway(grpcAddr string, httpAddr string, l *zap.Logger) (*http.Server, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gateway client: %w", err)
	}

	mux, err := gateway.NewServeMux(conn, l)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to register gateway: %w", err)
	}

	l.Info("REST gateway configured", zap.String("address", httpAddr), zap.String("upstream", grpcAddr))

	return &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}, conn, nil
}
