package cmds

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omnisupport/chatkit/pkg/config"
	"github.com/omnisupport/chatkit/pkg/devserver"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the in-memory development backend",
		Long: `serve starts a self-contained widget backend for local development:
the full REST and websocket contract against an in-memory store, with a bot
that answers every visitor message.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Serve.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides serve.addr)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := devserver.NewServer(devserver.Config{
		Tenant:         cfg.Backend.Tenant,
		AutoReply:      cfg.Serve.AutoReply,
		ReplyDelay:     cfg.Serve.ReplyDelay(),
		WelcomeMessage: cfg.Serve.Welcome,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("component", "devserver").Str("addr", cfg.Serve.Addr).Str("tenant", cfg.Backend.Tenant).Msg("listening")
		errCh <- srv.Start(cfg.Serve.Addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "dev server")
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Str("component", "devserver").Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
