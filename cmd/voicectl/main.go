package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "voicectl",
	Short: "Command line client for voice rooms",
	Long: `voicectl joins a voice room over the signaling server, keeps a peer
connection to every other member and lets you chat, mute and talk from the terminal.`,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		setupLogging(viper.GetString("log-level"))
	},
}

func init() {
	viper.SetEnvPrefix("VOICECTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	pf := rootCmd.PersistentFlags()
	pf.String("server", "http://localhost:8080", "signaling server base URL")
	pf.String("token", "", "session token")
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = viper.BindPFlags(pf)

	rootCmd.AddCommand(joinCmd, roomsCmd, statusCmd, tokenCmd)
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func main() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("voicectl")
		os.Exit(1)
	}
}
