package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"

	"github.com/webitel/im-messaging-service/config"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewMux),
	fx.Invoke(StartServer),
)

// StartServer binds the listener during fx start, so a busy port fails the
// boot instead of a background goroutine.
func StartServer(lc fx.Lifecycle, cfg *config.Config, mux *chi.Mux, logger *slog.Logger) {
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", cfg.Server.Addr)
			if err != nil {
				return err
			}

			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP_SERVER_STOPPED", "err", err)
				}
			}()

			logger.Info("HTTP_LISTENING", "addr", cfg.Server.Addr, "ws_path", cfg.Server.WSPath)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
