package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"voicelink/internal/config"
	"voicelink/internal/domain"
	"voicelink/internal/observability/logging"
	"voicelink/internal/observability/metrics"
	"voicelink/internal/providers/tokenexchange"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check whether the token backend offers voice",
	Long: `Ask the token backend whether voice sessions are available and
which models, voices and features it supports.

Examples:
  voicectl probe
  voicectl probe --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, err := cmd.Flags().GetBool("json")
		if err != nil {
			return fmt.Errorf("failed to read 'json' flag: %w", err)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		initLogging(cfg)

		client := tokenexchange.NewClient(tokenexchange.Config{
			URL:         cfg.Token.URL,
			AuthToken:   cfg.Token.AuthToken,
			TokenPrefix: cfg.Token.Prefix,
			Timeout:     cfg.Token.Timeout,
		}, metrics.Default())

		availability, err := client.Probe(cmd.Context())
		if err != nil {
			return fmt.Errorf("probe failed: %s", domain.UserMessage(err))
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(availability)
		}
		renderAvailability(cmd.OutOrStdout(), availability)
		return nil
	},
}

func renderAvailability(out io.Writer, a domain.Availability) {
	if a.Available {
		fmt.Fprintln(out, styles.Title.Render("voice available"))
	} else {
		fmt.Fprintln(out, styles.Error.Render("voice unavailable"))
	}
	if len(a.Models) > 0 {
		fmt.Fprintf(out, "  models    %s\n", strings.Join(a.Models, ", "))
	}
	if len(a.Voices) > 0 {
		fmt.Fprintf(out, "  voices    %s\n", strings.Join(a.Voices, ", "))
	}

	features := make([]string, 0, len(a.Features))
	for name, on := range a.Features {
		if on {
			features = append(features, name)
		}
	}
	slices.Sort(features)
	if len(features) > 0 {
		fmt.Fprintf(out, "  features  %s\n", strings.Join(features, ", "))
	}
}

// initLogging configures the global logger. Logs go to stderr.
func initLogging(cfg config.Config) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	logging.Init(logCfg)
}

func init() {
	probeCmd.Flags().Bool("json", false, "print the raw availability as JSON")

	rootCmd.AddCommand(probeCmd)
}
