package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "voicectl",
	Short: "Terminal client for voicelink voice sessions",
	Long: `voicectl - run voicelink voice sessions from a terminal.

Configuration is read from ~/.config/voicelink/config.yaml unless
--config or VOICELINK_CONFIG points elsewhere. Environment variables
override file values.

Examples:
  # Talk to the default agent
  voicectl connect

  # Use a different voice and preset
  voicectl connect --voice nova --preset tutor

  # Check whether the backend offers voice
  voicectl probe`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			if err := os.Setenv("VOICELINK_CONFIG", configFile); err != nil {
				return err
			}
		}
		if logLevel != "" {
			if err := os.Setenv("LOG_LEVEL", logLevel); err != nil {
				return err
			}
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}
