package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/workbook/internal/api"
	"github.com/matheus3301/workbook/internal/config"
	"go.uber.org/zap"
)

// HTTPServer serves the content API and the relay on a TCP listener.
type HTTPServer struct {
	srv      *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// NewHTTPServer binds the configured listen address.
func NewHTTPServer(cfg *config.Config, apiSrv *api.Server, logger *zap.Logger) (*HTTPServer, error) {
	gin.SetMode(gin.ReleaseMode)

	listener, err := net.Listen("tcp", cfg.Daemon.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Daemon.Listen, err)
	}
	return &HTTPServer{
		srv: &http.Server{
			Handler:           apiSrv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: listener,
		logger:   logger,
	}, nil
}

// Addr returns the bound address.
func (s *HTTPServer) Addr() string {
	return s.listener.Addr().String()
}

// Start serves until Stop. Blocks.
func (s *HTTPServer) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.Addr()))
	if err := s.srv.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests. Hijacked relay sockets are closed by the hub.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("http server stopping")
	return s.srv.Shutdown(ctx)
}
