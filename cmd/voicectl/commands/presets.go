package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"voicelink/internal/domain"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List voices and agent presets",
	Long: `List the voices and agent presets accepted by connect.

Use --instructions to print the full instruction text of each preset.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		full, err := cmd.Flags().GetBool("instructions")
		if err != nil {
			return fmt.Errorf("failed to read 'instructions' flag: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, styles.Title.Render("Voices"))
		for _, voice := range domain.Voices {
			fmt.Fprintf(out, "  %s\n", voice)
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, styles.Title.Render("Presets"))
		for _, preset := range domain.AgentPresets {
			if !full {
				first, _, _ := strings.Cut(preset.Instructions(), "\n")
				fmt.Fprintf(out, "  %-10s %s\n", preset, styles.Help.Render(first))
				continue
			}
			fmt.Fprintf(out, "  %s\n", preset)
			for _, line := range strings.Split(preset.Instructions(), "\n") {
				fmt.Fprintf(out, "    %s\n", line)
			}
		}
		return nil
	},
}

func init() {
	presetsCmd.Flags().Bool("instructions", false, "print full preset instructions")

	rootCmd.AddCommand(presetsCmd)
}
