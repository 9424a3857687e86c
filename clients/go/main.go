// WorldMorse CLI - command line client for the WorldMorse relay
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eldtechnologies/worldmorse/clients/go/worldmorse"
	"github.com/eldtechnologies/worldmorse/internal/models"
	"github.com/eldtechnologies/worldmorse/internal/morse"
)

type app struct {
	cfg     worldmorse.Config
	verbose bool
	logger  zerolog.Logger
}

func (a *app) client() *worldmorse.Client {
	return worldmorse.NewClient(a.cfg.URL, a.cfg.RequestTimeout)
}

func (a *app) syncer(opts worldmorse.SyncOptions) *worldmorse.Syncer {
	opts.Logger = &a.logger
	return worldmorse.NewSyncer(a.client(), a.cfg.Callsign, a.cfg.Channel, opts)
}

func (a *app) requireCallsign() error {
	if strings.TrimSpace(a.cfg.Callsign) == "" {
		return errors.New("a callsign is required (--callsign or WORLDMORSE_CALLSIGN)")
	}
	return nil
}

func newRootCommand() *cobra.Command {
	a := &app{}
	cfg, err := worldmorse.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
	}
	a.cfg = cfg

	cmd := &cobra.Command{
		Use:           "worldmorse",
		Short:         "WorldMorse - CW over the internet",
		Example:       "worldmorse --callsign JA1ABC chat",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfg.URL, "url", a.cfg.URL, "relay base URL")
	flags.StringVarP(&a.cfg.Callsign, "callsign", "c", a.cfg.Callsign, "your call-sign")
	flags.StringVar(&a.cfg.Channel, "channel", a.cfg.Channel, "channel name")
	flags.Float64("freq", 0, "frequency in MHz; overrides --channel")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging to stderr")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		a.logger = zerolog.Nop()
		if a.verbose {
			a.logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
				With().Timestamp().Logger().Level(zerolog.DebugLevel)
		}
		if f := cmd.Flags().Lookup("freq"); f != nil && f.Changed {
			mhz, err := cmd.Flags().GetFloat64("freq")
			if err != nil {
				return err
			}
			a.cfg.Channel = worldmorse.ChannelForFrequency(mhz)
		}
		return nil
	}

	cmd.AddCommand(
		newHealthCommand(a),
		newRegisterCommand(a),
		newSendCommand(a),
		newKeyCommand(a),
		newReadCommand(a),
		newStationsCommand(a),
		newListenCommand(a),
		newChatCommand(a),
	)
	return cmd
}

func newHealthCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check relay health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := a.client().Health(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}
}

func newRegisterCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "register [callsign]",
		Short: "Register a station",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				a.cfg.Callsign = args[0]
			}
			if err := a.requireCallsign(); err != nil {
				return err
			}
			st, err := a.client().Register(cmd.Context(), a.cfg.Callsign)
			if err != nil {
				return err
			}
			fmt.Printf("Registered as: %s\n", st.Callsign)
			return nil
		},
	}
}

func newSendCommand(a *app) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "send <text>...",
		Short: "Encode text as Morse and transmit it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireCallsign(); err != nil {
				return err
			}
			msg, err := a.syncer(a.cfg.SyncOptions()).TransmitText(cmd.Context(), strings.Join(args, " "), to)
			if err != nil {
				return err
			}
			fmt.Printf("Sent: %s\n", msg.ID)
			printMessage(*msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "address a single station")
	return cmd
}

func newKeyCommand(a *app) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:     "key <code>...",
		Short:   "Play dots and dashes through the keyer in real time",
		Example: "worldmorse -c JA1ABC key -- -.-. --.- / -.. .",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireCallsign(); err != nil {
				return err
			}
			s := a.syncer(a.cfg.SyncOptions())
			return playCode(cmd.Context(), a, s, strings.Join(args, " "), to)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "address a single station")
	return cmd
}

func newReadCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Show recent messages on the channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			msgs, err := a.client().RecentMessages(cmd.Context(), a.cfg.Channel, limit)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				printMessage(m)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of messages")
	return cmd
}

func newStationsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stations",
		Short: "List stations online on the channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stations, err := a.client().OnlineStations(cmd.Context(), a.cfg.Channel)
			if err != nil {
				return err
			}
			printStations(stations)
			return nil
		},
	}
}

func newListenCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Follow the channel until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := a.cfg.SyncOptions()
			opts.OnMessage = printMessage
			s := a.syncer(opts)
			fmt.Printf("Listening on %s (Ctrl+C to exit)\n", s.Channel())
			return s.Run(ctx)
		},
	}
}

func newChatCommand(a *app) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive session: type text to transmit it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireCallsign(); err != nil {
				return err
			}
			return chat(cmd.Context(), a, to)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "address a single station")
	return cmd
}

func chat(ctx context.Context, a *app, to string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          promptFor(a.cfg.Callsign, to),
		HistoryFile:     filepath.Join(os.TempDir(), ".worldmorse_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := a.cfg.SyncOptions()
	opts.OnMessage = func(m models.Message) {
		fmt.Fprintln(rl.Stdout(), formatMessage(m))
	}
	s := a.syncer(opts)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	fmt.Fprintf(rl.Stdout(), "On %s as %s. /help for commands, Ctrl+C to exit\n", s.Channel(), s.Callsign())

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				break
			}
			fmt.Fprintf(rl.Stderr(), "Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if !strings.HasPrefix(input, "/") {
			if _, err := s.TransmitText(ctx, input, to); err != nil {
				fmt.Fprintf(rl.Stderr(), "Error: %v\n", err)
			}
			continue
		}

		cmd, arg, _ := strings.Cut(input, " ")
		switch cmd {
		case "/quit", "/exit":
			cancel()
			return <-done
		case "/to":
			to = strings.TrimSpace(arg)
			rl.SetPrompt(promptFor(s.Callsign(), to))
		case "/key":
			if err := playCode(ctx, a, s, arg, to); err != nil {
				fmt.Fprintf(rl.Stderr(), "Error: %v\n", err)
			}
		case "/stations":
			printStations(s.View().Stations())
		case "/status":
			st := s.Status()
			fmt.Fprintf(rl.Stdout(), "push=%t pull=%t last poll %s\n", st.Push, st.Pull, st.LastPoll.Format(time.TimeOnly))
		case "/help":
			fmt.Fprintln(rl.Stdout(), "/to CALL   address a station (empty for all)")
			fmt.Fprintln(rl.Stdout(), "/key CODE  play dots and dashes through the keyer")
			fmt.Fprintln(rl.Stdout(), "/stations  stations on the channel")
			fmt.Fprintln(rl.Stdout(), "/status    connectivity")
			fmt.Fprintln(rl.Stdout(), "/quit      leave")
		default:
			fmt.Fprintf(rl.Stderr(), "Unknown command %s\n", cmd)
		}
	}

	cancel()
	return <-done
}

func promptFor(callsign, to string) string {
	callsign = models.NormalizeCallsign(callsign)
	if to = models.NormalizeCallsign(to); to != "" {
		return fmt.Sprintf("%s>%s: ", callsign, to)
	}
	return callsign + ": "
}

// playCode keys code through a KeyTransmitter with real timing: a press of
// one dot or three, one dot between symbols, three between letters and "/"
// as a word gap. Each completed word is transmitted as it finishes.
func playCode(ctx context.Context, a *app, s *worldmorse.Syncer, code, to string) error {
	timing := morse.Timing{Dot: a.cfg.Dot}
	if timing.Dot <= 0 {
		timing = morse.DefaultTiming()
	}

	// Words are submitted concurrently; keep the first failure.
	var (
		mu      sync.Mutex
		sendErr error
	)
	tx := worldmorse.NewKeyTransmitter(ctx, s, timing,
		worldmorse.WithRecipient(to),
		worldmorse.OnSent(func(m *models.Message, err error) {
			if err == nil {
				printMessage(*m)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if sendErr == nil {
				sendErr = err
			}
		}),
	)

	sleep := func(d time.Duration) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
			return nil
		}
	}

	for _, token := range strings.Fields(code) {
		if token == morse.WordSep {
			if err := sleep(timing.WordGap()); err != nil {
				tx.Stop()
				return err
			}
			continue
		}
		if strings.Trim(token, ".-") != "" {
			tx.Stop()
			return fmt.Errorf("not morse: %q", token)
		}
		for _, sym := range token {
			press := timing.Dot
			if morse.Symbol(sym) == morse.Dash {
				press = 3 * timing.Dot
			}
			tx.Press()
			err := sleep(press)
			tx.Release()
			if err == nil {
				err = sleep(timing.Dot)
			}
			if err != nil {
				tx.Stop()
				return err
			}
		}
		if err := sleep(timing.LetterGap()); err != nil {
			tx.Stop()
			return err
		}
	}
	if err := sleep(timing.WordGap() + timing.Dot); err != nil {
		tx.Stop()
		return err
	}
	tx.Stop()
	return sendErr
}

func formatMessage(m models.Message) string {
	ts := m.Timestamp.Local().Format("2006-01-02 15:04:05")
	text := m.Payload.TextPreview()
	if text == "" {
		text = morse.Decode(m.Payload.Morse())
	}
	from := m.FromCallsign
	if m.ToCallsign != nil {
		from += ">" + *m.ToCallsign
	}
	return fmt.Sprintf("[%s] %s: %s  (%s)", ts, from, text, m.Payload.Morse())
}

func printMessage(m models.Message) {
	fmt.Println(formatMessage(m))
}

func printStations(stations []models.Station) {
	if len(stations) == 0 {
		fmt.Println("No stations online")
		return
	}
	for _, st := range stations {
		fmt.Printf("  %-10s last seen %s\n", st.Callsign, st.LastSeenAt.Local().Format(time.TimeOnly))
	}
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
