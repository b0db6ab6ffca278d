package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/narrative-forge/backend/internal/config"
	"github.com/zhouzirui/narrative-forge/backend/internal/logger"
	"github.com/zhouzirui/narrative-forge/backend/internal/model/catalog"
	model "github.com/zhouzirui/narrative-forge/backend/internal/model/story"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/ai"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/narrative"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/session"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/story"
)

type options struct {
	genre      string
	difficulty string
	choices    string
	provider   string
	timeout    time.Duration
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "storytester",
		Short: "Play a story against the configured model from the terminal",
		Long: `storytester opens a story session through the service layer and plays it.
Without --choices it reads a choice number per turn from stdin; "q" quits.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.genre, "genre", "fantasy", "story genre (fantasy, scifi, mystery)")
	flags.StringVar(&opts.difficulty, "difficulty", "medium", "difficulty (easy, medium, hard)")
	flags.StringVar(&opts.choices, "choices", "", "scripted comma separated choice indexes, e.g. 0,1,0")
	flags.StringVar(&opts.provider, "provider", "", "override MODEL_PROVIDER (ark, openai, ollama, offline)")
	flags.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "overall time limit")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log engine activity to stderr")
	return cmd
}

func run(ctx context.Context, opts *options, in io.Reader, out io.Writer) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if opts.provider != "" {
		cfg.AI.Provider = strings.ToLower(opts.provider)
	}

	zlog := zap.NewNop()
	if opts.verbose {
		if zlog, err = logger.New(logger.Config{Level: "debug", Encoding: "console"}); err != nil {
			return err
		}
	}

	scripted, err := parseChoices(opts.choices)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	genres := catalog.NewDefaultStore()
	backend, err := cfg.AI.NewBackend(ctx, genres)
	if err != nil {
		return fmt.Errorf("create model backend: %w", err)
	}
	gateway := ai.NewGateway(backend, cfg.Gateway.Limits(), zlog)
	engine := narrative.NewEngine(gateway, genres, cfg.Narrative(), zlog)
	svc := story.NewService(session.NewStore(zlog), engine, genres, zlog)

	sess, err := svc.Create(ctx, opts.genre, opts.difficulty)
	if err != nil {
		return fmt.Errorf("create story: %w", err)
	}
	fmt.Fprintf(out, "story %s (%s/%s) via %s\n\n", sess.ID, sess.Genre, sess.Difficulty, gateway.Provider())
	printSegment(out, *sess.CurrentSegment)

	next := scriptedPicker(scripted)
	if scripted == nil {
		next = interactivePicker(bufio.NewScanner(in), out)
	}

	for {
		idx, ok := next()
		if !ok {
			break
		}
		seg, err := svc.Resolve(ctx, sess.ID, idx)
		if err != nil {
			fmt.Fprintf(out, "! %v\n", err)
			if scripted != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(out, "\n> choice %d\n\n", idx)
		printSegment(out, seg)
	}

	history, err := svc.History(ctx, sess.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d segments played\n", len(history)+1)
	return svc.End(ctx, sess.ID)
}

func printSegment(out io.Writer, seg model.Segment) {
	fmt.Fprintf(out, "[%s]", seg.ID)
	if seg.Location != "" {
		fmt.Fprintf(out, " %s", seg.Location)
	}
	if seg.Mood != "" {
		fmt.Fprintf(out, " (%s)", seg.Mood)
	}
	fmt.Fprintf(out, "\n%s\n", seg.Text)
	for i, c := range seg.Choices {
		fmt.Fprintf(out, "  %d. %s [%s]", i, c.Text, c.Action)
		if c.Description != "" {
			fmt.Fprintf(out, " - %s", c.Description)
		}
		fmt.Fprintln(out)
	}
}

func parseChoices(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid choice %q: %w", p, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func scriptedPicker(choices []int) func() (int, bool) {
	i := 0
	return func() (int, bool) {
		if i >= len(choices) {
			return 0, false
		}
		i++
		return choices[i-1], true
	}
}

func interactivePicker(scanner *bufio.Scanner, out io.Writer) func() (int, bool) {
	return func() (int, bool) {
		for {
			fmt.Fprint(out, "choice> ")
			if !scanner.Scan() {
				return 0, false
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "q" || line == "quit" {
				return 0, false
			}
			n, err := strconv.Atoi(line)
			if err != nil {
				fmt.Fprintln(out, "enter a choice number or q")
				continue
			}
			return n, true
		}
	}
}
