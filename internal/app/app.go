package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gowvp/tams/internal/conf"
)

// Run 装配依赖并启动 HTTP 服务，阻塞到 ctx 取消后优雅退出
func Run(ctx context.Context, bc *conf.Bootstrap, log *slog.Logger) error {
	handler, cleanup, err := wireApp(bc, log)
	if err != nil {
		return fmt.Errorf("wire app: %w", err)
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", bc.Server.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr, "version", bc.BuildVersion)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("http server stopped")
	return nil
}
