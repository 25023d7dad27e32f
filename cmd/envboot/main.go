package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/sokinpui/envboot/cli"
	"github.com/sokinpui/envboot/envboot"
	xglog "github.com/sokinpui/envboot/internal/log"
	"github.com/sokinpui/envboot/internal/tui"
	"github.com/sokinpui/envboot/internal/ui"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	cfg, err := cli.ParseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		// ParseArgs already prints the error message.
		return 1
	}

	logCfg := xglog.Config{}
	if cfg.Verbose {
		logCfg.Level = "debug"
	}
	xglog.Configure(logCfg)
	logger := xglog.Base()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Flags that print to stdout, and runs that may prompt, should not run the TUI.
	useTUI := !cfg.NoAnimation && !cfg.PrintLine && !cfg.Init && term.IsTerminal(int(os.Stderr.Fd()))

	var opts []envboot.Option
	if useTUI {
		ui.SetOutput(io.Discard)
		opts = append(opts,
			envboot.WithOutput(io.Discard),
			envboot.WithConfirm(func(string) bool { return false }))
	}

	app, err := envboot.New(cfg, opts...)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize application: %v\n", err)
		return 1
	}
	logger.Debug().Str("root", app.Root()).Bool("tui", useTUI).Msg("starting")

	if !useTUI {
		progress := &plainProgress{quiet: cfg.PrintLine}
		app.SetProgressCallback(progress.update)
		summary, err := app.Execute(ctx)
		progress.finish()
		if !cfg.PrintLine {
			ui.PrintSetupSummary(summary)
		}
		if err != nil {
			var detailed *envboot.DetailedError
			if errors.As(err, &detailed) {
				fmt.Fprintf(stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
			}
			ui.Error("Error: %v", err)
			return 1
		}
		return 0
	}

	model := tui.New(ctx, app)
	p := tea.NewProgram(model, tea.WithOutput(os.Stderr))
	model.SetProgram(p)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(stderr, "Error running program: %v\n", err)
		return 1
	}
	if model.Err() != nil {
		return 1
	}
	return 0
}

// plainProgress prints step progress and a download bar when the TUI is off.
type plainProgress struct {
	quiet bool
	bar   *ui.ProgressBar
}

func (p *plainProgress) update(step string, current, total int) {
	if p.quiet {
		return
	}
	if step == envboot.StepDownload {
		if p.bar == nil {
			p.bar = ui.NewProgressBar(int64(total), "Downloading SDK installer")
			p.bar.Start()
		}
		p.bar.Set(int64(current))
		return
	}
	p.finish()
	if step != "" {
		ui.Info("[%d/%d] Checking %s...", current+1, total, step)
	}
}

func (p *plainProgress) finish() {
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}
