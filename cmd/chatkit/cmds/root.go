package cmds

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chatkit",
		Short: "Embeddable support-chat session engine",
		Long: `chatkit drives the conversation session engine behind an embeddable
support-chat widget: durable visitor sessions, optimistic message delivery
and an automatically recovering duplex channel.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging(logLevel)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a chatkit.toml config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (trace, debug, info, warn, error)")

	root.AddCommand(newChatCmd())
	root.AddCommand(newServeCmd())
	return root
}

func setupLogging(override string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if override == "" {
		return
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(override))
	if err != nil {
		log.Warn().Str("level", override).Msg("unknown log level, keeping current")
		return
	}
	zerolog.SetGlobalLevel(lvl)
}
