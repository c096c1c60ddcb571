package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"voicelink/internal/bootstrap"
	"voicelink/internal/domain"
	"voicelink/internal/timer"
)

// voiceSession is the part of the controller the interactive loop drives.
type voiceSession interface {
	Connect(ctx context.Context, opts domain.ConnectOptions) error
	Disconnect()
	ToggleMute() (bool, error)
	SendMessage(text string) error
	ClearTranscript()
	Transcript() []domain.TranscriptEntry
	ChangeVoice(ctx context.Context, voice domain.Voice) error
	SetAgentPreset(ctx context.Context, preset domain.AgentPreset) error
	Status() domain.Status
}

const sessionHelp = "type to send a message  /mute  /voice <name>  /preset <name>  /clear  /transcript  /status  /quit"

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Start a voice session",
	Long: `Start a voice session with the speech agent.

Microphone audio streams to the agent and the transcript prints as
turns complete. Lines typed on stdin are sent as user messages;
lines starting with / are commands:

  /mute            toggle the microphone
  /voice <name>    switch voice (reconnects)
  /preset <name>   switch agent preset (reconnects)
  /clear           clear the transcript
  /transcript      reprint the transcript so far
  /status          print session status
  /quit            disconnect and exit

Examples:
  voicectl connect
  voicectl connect --voice shimmer --preset creative
  voicectl connect --duration 5m`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := connectOptions(cmd)
		if err != nil {
			return err
		}
		duration, err := cmd.Flags().GetDuration("duration")
		if err != nil {
			return fmt.Errorf("failed to read 'duration' flag: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, duration)
			defer cancel()
		}

		out := cmd.OutOrStdout()
		services, err := bootstrap.Build(newConsoleSink(out))
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = services.Close(closeCtx)
		}()

		return runSession(ctx, services.Controller, opts, cmd.InOrStdin(), out)
	},
}

func connectOptions(cmd *cobra.Command) (domain.ConnectOptions, error) {
	flags := cmd.Flags()
	var opts domain.ConnectOptions

	model, err := flags.GetString("model")
	if err != nil {
		return opts, fmt.Errorf("failed to read 'model' flag: %w", err)
	}
	voice, err := flags.GetString("voice")
	if err != nil {
		return opts, fmt.Errorf("failed to read 'voice' flag: %w", err)
	}
	preset, err := flags.GetString("preset")
	if err != nil {
		return opts, fmt.Errorf("failed to read 'preset' flag: %w", err)
	}
	instructions, err := flags.GetString("instructions")
	if err != nil {
		return opts, fmt.Errorf("failed to read 'instructions' flag: %w", err)
	}
	chatID, err := flags.GetString("chat-id")
	if err != nil {
		return opts, fmt.Errorf("failed to read 'chat-id' flag: %w", err)
	}

	opts = domain.ConnectOptions{
		ChatID:       chatID,
		Model:        model,
		Voice:        domain.Voice(voice),
		Instructions: instructions,
		AgentPreset:  domain.AgentPreset(preset),
	}
	if flags.Changed("temperature") {
		temp, err := flags.GetFloat64("temperature")
		if err != nil {
			return opts, fmt.Errorf("failed to read 'temperature' flag: %w", err)
		}
		opts.Temperature = &temp
	}
	return opts, nil
}

// runSession connects and then serves stdin until it closes, /quit is
// typed or ctx ends. The session is always disconnected on return.
func runSession(ctx context.Context, session voiceSession, opts domain.ConnectOptions, in io.Reader, out io.Writer) error {
	if err := session.Connect(ctx, opts); err != nil {
		return fmt.Errorf("connect failed: %s", domain.UserMessage(err))
	}
	defer session.Disconnect()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintln(out, styles.Help.Render(sessionHelp))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, session, line, out); quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, session voiceSession, line string, out io.Writer) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		report(out, session.SendMessage(line))
		return false
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "quit", "exit":
		return true
	case "mute":
		muted, err := session.ToggleMute()
		if err != nil {
			report(out, err)
			return false
		}
		if muted {
			fmt.Fprintln(out, styles.Help.Render("microphone muted"))
		} else {
			fmt.Fprintln(out, styles.Help.Render("microphone live"))
		}
	case "voice":
		report(out, session.ChangeVoice(ctx, domain.Voice(arg)))
	case "preset":
		report(out, session.SetAgentPreset(ctx, domain.AgentPreset(arg)))
	case "clear":
		session.ClearTranscript()
	case "transcript":
		entries := session.Transcript()
		if len(entries) == 0 {
			fmt.Fprintln(out, styles.Help.Render("transcript is empty"))
		}
		for _, entry := range entries {
			fmt.Fprintln(out, entryLine(styles, entry))
		}
	case "status":
		status := session.Status()
		fmt.Fprintln(out, statusBox(styles, status, timer.Format(status.Duration)))
	default:
		fmt.Fprintln(out, styles.Error.Render("unknown command /"+name)+" "+styles.Help.Render(sessionHelp))
	}
	return false
}

func report(out io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(out, styles.Error.Render("error")+" "+domain.UserMessage(err))
}

func init() {
	connectCmd.Flags().String("model", "", "realtime model (default from config)")
	connectCmd.Flags().String("voice", "", "agent voice (see 'voicectl presets')")
	connectCmd.Flags().String("preset", "", "agent preset (see 'voicectl presets')")
	connectCmd.Flags().String("instructions", "", "custom instructions, overrides the preset")
	connectCmd.Flags().Float64("temperature", domain.DefaultTemperature, "sampling temperature in [0, 2]")
	connectCmd.Flags().String("chat-id", "", "chat to attach the session to")
	connectCmd.Flags().Duration("duration", 0, "end the session after this long (0 runs until interrupted)")

	rootCmd.AddCommand(connectCmd)
}
