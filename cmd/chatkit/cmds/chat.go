package cmds

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omnisupport/chatkit/pkg/api"
	"github.com/omnisupport/chatkit/pkg/config"
	"github.com/omnisupport/chatkit/pkg/store"
	"github.com/omnisupport/chatkit/pkg/transport"
	"github.com/omnisupport/chatkit/pkg/widget"
)

func newChatCmd() *cobra.Command {
	var name, email string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run an interactive terminal session against a widget backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), cfg, name, email)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "identify the visitor by name")
	cmd.Flags().StringVar(&email, "email", "", "identify the visitor by email")
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logLevel == "" && cfg.Log.Level != "" {
		if lvl, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
			zerolog.SetGlobalLevel(lvl)
		}
	}
	return cfg, nil
}

func buildWidget(cfg *config.Config) (*widget.Widget, error) {
	client, err := api.New(api.Config{BaseURL: cfg.Backend.BaseURL, Tenant: cfg.Backend.Tenant})
	if err != nil {
		return nil, err
	}

	var kv store.KV
	if cfg.Store.Path != "" {
		kv, err = store.NewSQLiteKV(cfg.Store.Path)
		if err != nil {
			return nil, errors.Wrap(err, "open session database")
		}
	}

	var tr transport.Transport
	switch cfg.Transport.Mode {
	case "polling":
		tr, err = transport.NewPoller(transport.PollerConfig{
			Lister:   client,
			Interval: cfg.Transport.PollInterval(),
		})
	default:
		tr, err = transport.NewManager(transport.ManagerConfig{
			Endpoint:          client.WSEndpoint,
			HeartbeatInterval: cfg.Transport.Heartbeat(),
			MaxAttempts:       cfg.Transport.MaxAttempts,
		})
	}
	if err != nil {
		return nil, err
	}

	return widget.NewWidget(widget.Config{
		Backend:   client,
		Transport: tr,
		Store:     store.NewSessionStore(kv),
	})
}

func runChat(ctx context.Context, cfg *config.Config, name, email string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := buildWidget(cfg)
	if err != nil {
		return err
	}
	defer w.Shutdown()

	w.On(widget.EventMessageReceived, func(payload []byte) {
		var p widget.MessagePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return
		}
		fmt.Printf("\r<%s> %s\n> ", p.Message.SenderType, p.Message.Content.Text)
	})
	w.On(widget.EventAgentTyping, func(payload []byte) {
		var p widget.TypingPayload
		if err := json.Unmarshal(payload, &p); err != nil || !p.IsTyping {
			return
		}
		fmt.Print("\r(agent is typing...)\n> ")
	})
	w.On(widget.EventSendFailed, func([]byte) {
		fmt.Print("\r(message failed to send, try again)\n> ")
	})
	w.On(widget.EventConnection, func(payload []byte) {
		var p widget.ConnectionPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return
		}
		log.Debug().Str("state", p.State).Int("attempt", p.Attempt).Bool("terminal", p.Terminal).Msg("connection state")
	})
	w.On(widget.EventReconnectFailed, func([]byte) {
		fmt.Print("\r(connection lost, messages will not arrive live)\n> ")
	})

	if err := w.Init(ctx); err != nil {
		return err
	}
	if name != "" || email != "" {
		w.Identify(widget.IdentifyData{Name: name, Email: email})
	}
	w.Open()

	snap := w.Snapshot()
	if snap.ConfigLoaded && snap.Config.WelcomeMessage != "" {
		fmt.Printf("<%s> %s\n", snap.Config.TenantName, snap.Config.WelcomeMessage)
	}
	for _, m := range snap.Messages {
		fmt.Printf("<%s> %s\n", m.SenderType, m.Content.Text)
	}
	fmt.Println(`Type a message and press enter. "/quit" exits.`)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Print("> ")
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				fmt.Print("> ")
				continue
			}
			if err := w.Send(ctx, line); err != nil {
				log.Warn().Err(err).Msg("send failed")
			}
			fmt.Print("> ")
		}
	}
}
