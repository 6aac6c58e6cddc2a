// Package httpapi はUI層から呼ばれるJSON APIを提供する
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Server はHTTP APIサーバ
type Server struct {
	handler *Handler
	logger  *slog.Logger
}

// NewServer は新しいServerを作成する
func NewServer(handler *Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{handler: handler, logger: logger}
}

// Routes は全エンドポイントを登録したServeMuxを返す
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handler.Health)
	mux.HandleFunc("POST /api/index", s.handler.Index)
	mux.HandleFunc("POST /api/chat", s.handler.Chat)
	mux.HandleFunc("GET /api/sources", s.handler.Sources)
	mux.HandleFunc("POST /api/createCollection", s.handler.CreateCollection)
	mux.HandleFunc("POST /api/clearIndex", s.handler.ClearIndex)
	mux.HandleFunc("POST /api/dropCollection", s.handler.DropCollection)
	return mux
}

// ListenAndServe はサーバを起動し、ctxのキャンセルでグレースフルに停止する
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.logRequests(s.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// logRequests はリクエストごとにメソッド・パス・所要時間を記録する
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
