package server

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"bookbridge/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
)

func newTestServer(t *testing.T, ginAddr string) *Server {
	return &Server{
		Config:  &config.Config{App: config.AppConfig{GRPCPort: "0"}},
		Logger:  zaptest.NewLogger(t),
		GRPC:    grpc.NewServer(),
		Gin:     &http.Server{Addr: ginAddr, Handler: http.NotFoundHandler(), ReadHeaderTimeout: time.Second},
		Gateway: &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler(), ReadHeaderTimeout: time.Second},
	}
}

func startAsync(ctx context.Context, s *Server) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()
	return errCh
}

func TestStart_FailingServerStopsTheOthers(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	s := newTestServer(t, taken.Addr().String())
	errCh := startAsync(context.Background(), s)

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "REST API")
	case <-time.After(5 * time.Second):
		t.Fatal("Start kept running after the REST server failed to bind")
	}
}

func TestStart_ReturnsAfterShutdown(t *testing.T) {
	s := newTestServer(t, "127.0.0.1:0")
	errCh := startAsync(context.Background(), s)

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	require.NoError(t, s.Shutdown(shutdownCtx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after shutdown")
	}
}
