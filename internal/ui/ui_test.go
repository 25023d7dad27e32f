package ui

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/sokinpui/envboot/model"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	prevNoColor := color.NoColor
	color.NoColor = true
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		color.NoColor = prevNoColor
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestConfirm(t *testing.T) {
	captureOutput(t)

	SetInput(strings.NewReader("y\nn\n\n"))
	assert.True(t, Confirm("Install?"))
	assert.False(t, Confirm("Install?"))
	assert.False(t, Confirm("Install?"))
}

func TestPrintSetupSummary(t *testing.T) {
	buf := captureOutput(t)

	var s model.Summary
	s.Add("packages", model.StepOK, "4 module(s) present")
	s.Add("sync", model.StepFailed, "exit status 2")
	s.Modified = []string{"CMakeLists.txt"}
	PrintSetupSummary(s)

	got := buf.String()
	assert.Contains(t, got, "--- Setup Summary ---")
	assert.Contains(t, got, "packages   ok: 4 module(s) present")
	assert.Contains(t, got, "sync       failed: exit status 2")
	assert.Contains(t, got, "  - CMakeLists.txt")
}

func TestPrintSetupSummaryEmpty(t *testing.T) {
	buf := captureOutput(t)
	PrintSetupSummary(model.Summary{})
	assert.Contains(t, buf.String(), "Nothing was done.")
}

func TestProgressBar(t *testing.T) {
	buf := captureOutput(t)

	bar := NewProgressBar(4, "Downloading")
	bar.Start()
	bar.Set(2)
	bar.Finish()

	assert.Contains(t, buf.String(), "[2/4] 50.0%")
}

func TestProgressBarUnknownTotal(t *testing.T) {
	buf := captureOutput(t)
	bar := NewProgressBar(0, "Downloading")
	bar.Set(10)
	assert.Empty(t, buf.String())
}
