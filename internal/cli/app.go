// Package cli wires the pipeline stages into the pathway-pipeline command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/analyzer"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/condenser"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/config"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/console"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/ledger"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/llm"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/pathway"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/telemetry"
)

// Model is everything the stages ask of the LLM client.
type Model interface {
	analyzer.Model
	condenser.Model
}

type globalFlags struct {
	workdir        string
	configPath     string
	ledgerPath     string
	logLevel       string
	logFormat      string
	noColor        bool
	nonInteractive bool
}

// App holds the I/O streams and the state shared by every command of one
// invocation.
type App struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// NewModel builds the LLM client for a loaded config.
	NewModel func(cfg config.Config) Model

	flags    globalFlags
	log      zerolog.Logger
	prompter *console.Prompter
	ledger   *ledger.Ledger
}

func NewApp() *App {
	return &App{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		NewModel: func(cfg config.Config) Model {
			return llm.NewClient(cfg)
		},
	}
}

func (a *App) layout() pathway.Layout {
	return pathway.NewLayout(a.flags.workdir)
}

func (a *App) configPath() string {
	if a.flags.configPath != "" {
		return a.flags.configPath
	}
	return filepath.Join(a.layout().Root, config.DefaultFile)
}

// recorder returns the open ledger, or a no-op recorder when disabled.
func (a *App) recorder() pathway.Recorder {
	if a.ledger == nil {
		return pathway.NopRecorder
	}
	return a.ledger
}

func (a *App) setup(cmd *cobra.Command) error {
	if a.flags.noColor {
		console.DisableColor()
	}
	a.log = console.NewLogger(console.LogOptions{
		Level:   a.flags.logLevel,
		Format:  a.flags.logFormat,
		Out:     a.Stderr,
		NoColor: a.flags.noColor,
	})
	a.prompter = console.NewPrompter(a.Stdin, a.Stdout)
	a.prompter.NonInteractive = a.flags.nonInteractive

	if a.flags.ledgerPath == "" || cmd.Name() == "setup" {
		return nil
	}
	path := a.flags.ledgerPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.layout().Root, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	l, err := ledger.Open(path)
	if err != nil {
		return fmt.Errorf("open run ledger: %w", err)
	}
	a.ledger = l
	return nil
}

func (a *App) close() {
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close run ledger")
		}
		a.ledger = nil
	}
}

// NewRootCommand builds the command tree bound to a.
func (a *App) NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pathway-pipeline",
		Short: "Convert clinical pathway PDFs into patient-matching summaries",
		Long: `pathway-pipeline runs a four-stage batch pipeline over a working directory:
rasterize PDFs into page images, extract each page with a vision model,
synthesize a complete summary per pathway and condense it into a short
patient-matching paragraph.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.flags.workdir, "workdir", "w", ".", "working directory holding the pipeline folders")
	pf.StringVarP(&a.flags.configPath, "config", "c", "", "config file path (default <workdir>/config.ini)")
	pf.StringVar(&a.flags.ledgerPath, "ledger", "pipeline.db", "run ledger database, relative to the workdir; empty disables")
	pf.StringVar(&a.flags.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&a.flags.logFormat, "log-format", "console", "log format: console or json")
	pf.BoolVar(&a.flags.noColor, "no-color", false, "disable colored output")
	pf.BoolVarP(&a.flags.nonInteractive, "non-interactive", "y", false, "accept every prompt default without asking")

	root.AddCommand(
		a.newSetupCommand(),
		a.newRasterizeCommand(),
		a.newExtractCommand(),
		a.newCompleteCommand(),
		a.newMatchCommand(),
		a.newRenderCommand(),
		a.newStatusCommand(),
		a.newRunCommand(),
	)
	return root
}

// Run executes the command line and returns the process exit code. An
// interrupt stops the current stage and exits cleanly.
func (a *App) Run(ctx context.Context, args []string, version string) int {
	shutdown, err := telemetry.Setup(ctx, version)
	if err != nil {
		fmt.Fprintf(a.Stderr, "Error: telemetry: %v\n", err)
		return 1
	}
	defer shutdown(context.Background())
	defer a.close()

	root := a.NewRootCommand()
	root.Version = version
	root.SetArgs(args)
	root.SetIn(a.Stdin)
	root.SetOut(a.Stdout)
	root.SetErr(a.Stderr)

	err = root.ExecuteContext(ctx)
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		fmt.Fprintln(a.Stdout, "\nExiting application...")
		return 0
	}
	if errors.Is(err, io.EOF) {
		fmt.Fprintf(a.Stderr, "Error: input closed before every prompt was answered (%v); pass -y to accept the defaults\n", err)
		return 1
	}
	if err != nil {
		fmt.Fprintf(a.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// systemPrompt resolves a stage's system instruction: the flag when set,
// otherwise the interactive answer, otherwise the stage default.
func (a *App) systemPrompt(flagValue, defaultPrompt string) (string, error) {
	if s := strings.TrimSpace(flagValue); s != "" {
		return s, nil
	}
	s, err := a.prompter.Prompt("Enter your system prompt (or press Enter for default)")
	if err != nil {
		return "", err
	}
	if s = strings.TrimSpace(s); s != "" {
		return s, nil
	}
	a.log.Info().Str("system_prompt", defaultPrompt).Msg("using default system prompt")
	return defaultPrompt, nil
}
