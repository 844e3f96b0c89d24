package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/analyzer"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/condenser"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/config"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/console"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/rasterizer"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/report"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/synthesizer"
)

type rasterizeFlags struct {
	width  int
	height int
	dpi    float64
}

func (f *rasterizeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.width, "width", rasterizer.DefaultWidth, "target page image width in pixels")
	cmd.Flags().IntVar(&f.height, "height", rasterizer.DefaultHeight, "target page image height in pixels")
	cmd.Flags().Float64Var(&f.dpi, "dpi", rasterizer.DefaultDPI, "render resolution")
}

type extractFlags struct {
	systemPrompt string
	images       string
}

func (f *extractFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.systemPrompt, "system-prompt", "", "system prompt for page analysis (prompted when unset)")
	cmd.Flags().StringVar(&f.images, "images", "", "folder of per-document page images (prompted when unset)")
}

func (a *App) newSetupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Write config.ini with the API key and default parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath()
			_, created, err := config.LoadOrCreate(path, a.askKey)
			if err != nil {
				return err
			}
			if created {
				console.FormatNote(a.Stdout, "Configuration saved to "+path)
			} else {
				console.FormatNote(a.Stdout, "Configuration already present at "+path)
			}
			return nil
		},
	}
}

func (a *App) askKey() (string, error) {
	return a.prompter.Prompt("Enter your Claude API key")
}

func (a *App) newRasterizeCommand() *cobra.Command {
	var f rasterizeFlags
	cmd := &cobra.Command{
		Use:   "rasterize",
		Short: "Render every PDF page to a fixed-size PNG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.rasterize(cmd, f)
		},
	}
	f.bind(cmd)
	return cmd
}

func (a *App) rasterize(cmd *cobra.Command, f rasterizeFlags) error {
	l := a.layout()
	console.FormatBanner(a.Stdout, "rasterize")
	r := rasterizer.New(rasterizer.Options{
		PDFDir:       l.PDFs(),
		OutputDir:    l.Images(),
		TargetWidth:  f.width,
		TargetHeight: f.height,
		DPI:          f.dpi,
	}, a.log, a.Stderr, a.recorder())
	res, err := r.Run(cmd.Context())
	console.FormatTally(a.Stdout, "Rasterize", []console.Row{
		{Label: "PDFs processed", Count: res.Processed, Kind: console.KindSuccess},
		{Label: "Pages written", Count: res.Pages},
		{Label: "Failed", Count: res.Failed, Kind: console.KindFailure},
	})
	return err
}

func (a *App) newExtractCommand() *cobra.Command {
	var f extractFlags
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Analyze each page image with the vision model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.extract(cmd, f)
		},
	}
	f.bind(cmd)
	return cmd
}

func (a *App) extract(cmd *cobra.Command, f extractFlags) error {
	cfg, created, err := config.LoadOrCreate(a.configPath(), a.askKey)
	if err != nil {
		return err
	}
	if created {
		a.log.Info().Str("file", a.configPath()).Msg("configuration saved")
	}
	system, err := a.systemPrompt(f.systemPrompt, analyzer.DefaultSystemPrompt)
	if err != nil {
		return err
	}
	l := a.layout()
	images := strings.TrimSpace(f.images)
	if images == "" {
		if images, err = a.prompter.PromptWithDefault("Enter the image folder path", l.Images()); err != nil {
			return err
		}
	}

	console.FormatBanner(a.Stdout, "extract")
	an := analyzer.New(a.NewModel(cfg), analyzer.Options{
		ImageRoot:    images,
		OutputDir:    l.Extracted(),
		SystemPrompt: system,
		Config:       cfg,
	}, a.log, a.Stdout, a.recorder())
	res, err := an.Run(cmd.Context())
	console.FormatTally(a.Stdout, "Extraction", []console.Row{
		{Label: "Processed", Count: res.Processed, Kind: console.KindSuccess},
		{Label: "Skipped", Count: res.Skipped, Kind: console.KindWarning},
		{Label: "Failed", Count: res.Failed, Kind: console.KindFailure},
		{Label: "Page errors", Count: res.PageErrors, Kind: console.KindFailure},
	})
	return err
}

// loadConfig reads the config written by setup or extract. A missing file
// is fatal for the stages that never create one.
func (a *App) loadConfig() (config.Config, error) {
	cfg, err := config.Load(a.configPath())
	if errors.Is(err, config.ErrNotFound) {
		a.log.Error().Err(err).Msg("no configuration")
	}
	return cfg, err
}

func (a *App) newCompleteCommand() *cobra.Command {
	var systemPrompt string
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Synthesize one complete summary per extracted pathway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.complete(cmd, systemPrompt)
		},
	}
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", "", "system prompt for synthesis (prompted when unset)")
	return cmd
}

func (a *App) complete(cmd *cobra.Command, systemPrompt string) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	systemPrompt, err = a.systemPrompt(systemPrompt, synthesizer.DefaultSystemPrompt)
	if err != nil {
		return err
	}
	l := a.layout()
	console.FormatBanner(a.Stdout, "complete")
	s := synthesizer.New(a.NewModel(cfg), synthesizer.Options{
		InputDir:     l.Extracted(),
		OutputDir:    l.Complete(),
		SystemPrompt: systemPrompt,
		Config:       cfg,
	}, a.log, a.Stdout, a.recorder())
	res, err := s.Run(cmd.Context())
	console.FormatTally(a.Stdout, "Complete summaries", []console.Row{
		{Label: "Successful", Count: res.Successful, Kind: console.KindSuccess},
		{Label: "Needs truncation", Count: res.NeedsTruncation, Kind: console.KindWarning},
		{Label: "Failed", Count: res.Failed, Kind: console.KindFailure},
	})
	if res.NeedsTruncation > 0 {
		console.FormatNote(a.Stdout, "Files needing truncation are listed in "+s.TruncationLog())
	}
	return err
}

func (a *App) newMatchCommand() *cobra.Command {
	var systemPrompt string
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Condense complete summaries for patient matching",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.match(cmd, systemPrompt)
		},
	}
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", "", "system prompt for condensing (default pathway specialist prompt)")
	return cmd
}

func (a *App) match(cmd *cobra.Command, systemPrompt string) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	l := a.layout()
	console.FormatBanner(a.Stdout, "match")
	c := condenser.New(a.NewModel(cfg), condenser.Options{
		InputDir:     l.Complete(),
		OutputDir:    l.Matching(),
		SystemPrompt: systemPrompt,
	}, a.log, a.Stdout, a.recorder())
	res, err := c.Run(cmd.Context())
	console.FormatTally(a.Stdout, "Matching summaries", []console.Row{
		{Label: "Successful", Count: res.Successful, Kind: console.KindSuccess},
		{Label: "Failed", Count: res.Failed, Kind: console.KindFailure},
	})
	if res.Corpus != "" {
		console.FormatNote(a.Stdout, "Consolidated summaries written to "+res.Corpus)
	}
	return err
}

func (a *App) newRenderCommand() *cobra.Command {
	var (
		pdf       bool
		paper     string
		landscape bool
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render complete summaries and the matching corpus to HTML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := report.ParsePaper(paper)
			if err != nil {
				return err
			}
			l := a.layout()
			console.FormatBanner(a.Stdout, "render")
			r := report.New(report.Options{
				CompleteDir: l.Complete(),
				MatchingDir: l.Matching(),
				OutputDir:   l.Reports(),
				PDF:         pdf,
				Print:       report.PrintOptions{Paper: size, Landscape: landscape},
			}, nil, a.log, a.recorder())
			res, err := r.Run(cmd.Context())
			console.FormatTally(a.Stdout, "Reports", []console.Row{
				{Label: "Rendered", Count: res.Rendered, Kind: console.KindSuccess},
				{Label: "Failed", Count: res.Failed, Kind: console.KindFailure},
			})
			return err
		},
	}
	cmd.Flags().BoolVar(&pdf, "pdf", false, "also print each report to PDF with headless Chromium")
	cmd.Flags().StringVar(&paper, "paper", report.Letter.Name, "PDF paper size: letter, a4 or legal")
	cmd.Flags().BoolVar(&landscape, "landscape", false, "print PDFs in landscape orientation")
	return cmd
}

func (a *App) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the latest recorded outcome per stage and document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.ledger == nil {
				return errors.New("run ledger disabled (--ledger is empty)")
			}
			entries, err := a.ledger.Latest(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				console.FormatNote(a.Stdout, "No runs recorded yet.")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.Document,
					e.Stage,
					e.Outcome,
					e.Detail,
					e.Time().Local().Format("2006-01-02 15:04:05"),
				})
			}
			console.FormatTable(a.Stdout, []string{"Document", "Stage", "Outcome", "Detail", "Recorded"}, rows)
			return nil
		},
	}
}

func (a *App) newRunCommand() *cobra.Command {
	var (
		rf         rasterizeFlags
		ef         extractFlags
		skipRaster bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run rasterize, extract, complete and match in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !skipRaster {
				if err := a.rasterize(cmd, rf); err != nil {
					return fmt.Errorf("rasterize: %w", err)
				}
			}
			if err := a.extract(cmd, ef); err != nil {
				return fmt.Errorf("extract: %w", err)
			}
			if err := a.complete(cmd, ""); err != nil {
				return fmt.Errorf("complete: %w", err)
			}
			if err := a.match(cmd, ""); err != nil {
				return fmt.Errorf("match: %w", err)
			}
			return nil
		},
	}
	rf.bind(cmd)
	ef.bind(cmd)
	cmd.Flags().BoolVar(&skipRaster, "skip-rasterize", false, "reuse the existing page images")
	return cmd
}
