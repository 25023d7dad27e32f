package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/sokinpui/envboot/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
	PromptColor  = color.New(color.FgMagenta)
)

var (
	mu  sync.Mutex
	out io.Writer     = os.Stderr
	in  *bufio.Reader = bufio.NewReader(os.Stdin)
)

// SetOutput redirects all messages. Pass io.Discard to silence them.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetInput sets the reader used by Confirm.
func SetInput(r io.Reader) {
	mu.Lock()
	defer mu.Unlock()
	in = bufio.NewReader(r)
}

func writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(writer(), format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(writer(), format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(writer(), format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(writer(), format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(writer(), format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(writer(), "  "+format+"\n", a...)
}

func Prompt(format string, a ...interface{}) string {
	return PromptColor.Sprintf(format, a...)
}

// Confirm asks a yes/no question and reports whether the answer was "y".
func Confirm(question string) bool {
	fmt.Fprint(writer(), Prompt("%s (y/N): ", question))

	mu.Lock()
	reader := in
	mu.Unlock()

	response, _ := reader.ReadString('\n')
	return strings.TrimSpace(strings.ToLower(response)) == "y"
}

// --- Summaries ---

func PrintSetupSummary(summary model.Summary) {
	Header("\n--- Setup Summary ---")

	if len(summary.Steps) == 0 && summary.Message == "" {
		Info("Nothing was done.")
		return
	}

	for _, step := range summary.Steps {
		line := fmt.Sprintf("%-10s %s", step.Name, step.Status)
		if step.Detail != "" {
			line += ": " + step.Detail
		}
		switch step.Status {
		case model.StepOK:
			Success("  %s", line)
		case model.StepWarning, model.StepSkipped:
			Warning("  %s", line)
		default:
			Error("  %s", line)
		}
	}

	if len(summary.Modified) > 0 {
		Success("Modified %d file(s):", len(summary.Modified))
		for _, f := range summary.Modified {
			Path("- %s", f)
		}
	}
	if len(summary.Failed) > 0 {
		Error("Failed to process %d file(s):", len(summary.Failed))
		for _, f := range summary.Failed {
			Path("- %s", f)
		}
	}
	if summary.Message != "" {
		Info("%s", summary.Message)
	}
}

// --- Progress Bar ---

type ProgressBar struct {
	total   int64
	prefix  string
	current int64
}

func NewProgressBar(total int64, prefix string) *ProgressBar {
	return &ProgressBar{total: total, prefix: prefix}
}

func (p *ProgressBar) Start() {
	p.draw()
}

// Set moves the bar to an absolute position.
func (p *ProgressBar) Set(current int64) {
	p.current = current
	p.draw()
}

func (p *ProgressBar) Finish() {
	fmt.Fprintln(writer())
}

func (p *ProgressBar) draw() {
	if p.total <= 0 {
		return
	}
	const barLength = 40
	percent := float64(p.current) / float64(p.total)
	if percent > 1 {
		percent = 1
	}
	filledLength := int(percent * barLength)
	bar := strings.Repeat("█", filledLength) + strings.Repeat("-", barLength-filledLength)

	percentStr := fmt.Sprintf("%.1f%%", percent*100)
	countStr := fmt.Sprintf("[%d/%d]", p.current, p.total)

	fmt.Fprintf(writer(), "\r%s |%s| %s %s", p.prefix, bar, countStr, percentStr)
}
