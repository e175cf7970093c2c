package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"bookbridge/cmd/api/di"
	"bookbridge/internal/config"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// Server struct holds all server dependencies
type Server struct {
	Config  *config.Config
	Logger  *zap.Logger
	GRPC    *grpc.Server
	Gin     *http.Server // REST surface
	Gateway *http.Server // JSON gateway over gRPC

	gatewayConn *grpc.ClientConn
}

// New creates a new server instance from the container's dependencies
func New(cfg *config.Config, l *zap.Logger, c *di.Container) (*Server, error) {
	s := &Server{
		Config: cfg,
		Logger: l,
		GRPC:   SetupGRPC(c.UserUC, l, c.RateLimiter),

		Gin: SetupGinServer(c.GinHandler, c.RateLimiter, cfg.Logger.ServiceName, cfg.App.Env,
			":"+cfg.App.HTTPPort, l, c.ReadinessChecks()...),
	}

	gw, conn, err := SetupHTTPGateway("localhost:"+cfg.App.GRPCPort, ":"+cfg.App.GatewayPort, l)
	if err != nil {
		return nil, err
	}
	s.Gateway = gw
	s.gatewayConn = conn

	return s, nil
}

// Start runs the gRPC server, the REST API and the gateway. It returns once
// all of them have been shut down, or as soon as one fails, after stopping the
// others.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	lis, err := lc.Listen(ctx, "tcp", ":"+s.Config.App.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	var serving sync.WaitGroup
	serve := func(fn func() error) {
		serving.Add(1)
		g.Go(func() error {
			defer serving.Done()
			return fn()
		})
	}

	serve(func() error {
		s.Logger.Info("gRPC server running", zap.String("address", lis.Addr().String()))
		if err := s.GRPC.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC server: %w", err)
		}
		return nil
	})
	serve(func() error {
		return serveHTTP(s.Logger, "REST API", s.Gin)
	})
	serve(func() error {
		return serveHTTP(s.Logger, "REST gateway", s.Gateway)
	})

	finished := make(chan struct{})
	go func() {
		serving.Wait()
		close(finished)
	}()

	g.Go(func() error {
		select {
		case <-finished:
		case <-gctx.Done():
			// a canceled ctx is a graceful shutdown driven by the caller
			if ctx.Err() == nil {
				s.Logger.Error("server failed, stopping the remaining servers")
				s.stop()
			}
		}
		return nil
	})

	return g.Wait()
}

// stop closes every server immediately.
func (s *Server) stop() {
	s.GRPC.Stop()
	if err := s.Gin.Close(); err != nil {
		s.Logger.Warn("failed to close REST API", zap.Error(err))
	}
	if err := s.Gateway.Close(); err != nil {
		s.Logger.Warn("failed to close REST gateway", zap.Error(err))
	}
}

func serveHTTP(l *zap.Logger, name string, srv *http.Server) error {
	l.Info(name+" running", zap.String("address", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Shutdown stops the HTTP servers, then drains the gRPC server.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if s.Gin != nil {
		s.Logger.Info("shutting down REST API...")
		if err := s.Gin.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("REST API shutdown: %w", err))
		}
	}

	if s.Gateway != nil {
		s.Logger.Info("shutting down REST gateway...")
		if err := s.Gateway.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("gateway shutdown: %w", err))
		}
	}

	if s.gatewayConn != nil {
		if err := s.gatewayConn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gateway client close: %w", err))
		}
	}

	if s.GRPC != nil {
		s.Logger.Info("shutting down gRPC server...")
		stopped := make(chan struct{})
		go func() {
			s.GRPC.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			s.GRPC.Stop()
			errs = append(errs, fmt.Errorf("gRPC graceful stop: %w", ctx.Err()))
		}
	}

	return errors.Join(errs...)
}
