package envboot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/sokinpui/envboot/cli"
	"github.com/sokinpui/envboot/internal/config"
	"github.com/sokinpui/envboot/internal/depsync"
	"github.com/sokinpui/envboot/internal/fs"
	xglog "github.com/sokinpui/envboot/internal/log"
	"github.com/sokinpui/envboot/internal/patcher"
	"github.com/sokinpui/envboot/internal/pkgcheck"
	"github.com/sokinpui/envboot/internal/runner"
	"github.com/sokinpui/envboot/internal/sdk"
	"github.com/sokinpui/envboot/internal/source"
	"github.com/sokinpui/envboot/internal/state"
	"github.com/sokinpui/envboot/internal/ui"
	"github.com/sokinpui/envboot/model"
)

// Step names, in run order.
const (
	StepPackages = "packages"
	StepSDK      = "sdk"
	StepPatch    = "patch"
	StepSync     = "sync"
)

// StepDownload is reported while the SDK installer is downloading. current
// and total are byte counts.
const StepDownload = "download"

// ProgressUpdate is a callback function to report progress.
type ProgressUpdate func(step string, current, total int)

// App orchestrates the entire application logic.
type App struct {
	cfg              *cli.Config
	project          config.Config
	stateManager     *state.Manager
	pathResolver     *fs.PathResolver
	pathSource       *source.PathSource
	runner           runner.Runner
	lookupEnv        func(string) (string, bool)
	confirm          func(question string) bool
	stdout           io.Writer
	output           io.Writer
	progressCallback ProgressUpdate

	pathValue *source.Value
	patched   []string
}

// Option customizes an App.
type Option func(*App)

// WithRunner replaces the process runner used for every external command.
func WithRunner(r runner.Runner) Option {
	return func(a *App) { a.runner = r }
}

// WithLookup replaces the environment lookup used for the SDK path.
func WithLookup(lookup func(string) (string, bool)) Option {
	return func(a *App) { a.lookupEnv = lookup }
}

// WithConfirm replaces the interactive yes/no prompt. It is not consulted
// when --yes is set.
func WithConfirm(confirm func(question string) bool) Option {
	return func(a *App) { a.confirm = confirm }
}

// WithStdout sets where --print-line writes.
func WithStdout(w io.Writer) Option {
	return func(a *App) { a.stdout = w }
}

// WithOutput sets where subprocess output is streamed.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.output = w }
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

// New creates a new App instance.
func New(cfg *cli.Config, opts ...Option) (*App, error) {
	root, err := ResolveRoot(cfg.Root)
	if err != nil {
		return nil, err
	}
	pathResolver, err := fs.NewPathResolver(root)
	if err != nil {
		return nil, err
	}

	project, err := loadProjectConfig(cfg.ConfigPath, pathResolver)
	if err != nil {
		return nil, err
	}
	if cfg.AllowMissingPath {
		project.SDK.Missing = config.MissingPlaceholder
	}

	a := &App{
		cfg:          cfg,
		project:      project,
		pathResolver: pathResolver,
		runner:       runner.New(),
		confirm:      ui.Confirm,
		stdout:       os.Stdout,
		output:       os.Stderr,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.pathSource = source.New(cfg.SDKPath, project.SDK.Env, project.SDK.Missing, a.lookupEnv)
	return a, nil
}

// ResolveRoot picks the project root: explicit, else the nearest directory
// holding envboot.yaml, else the nearest holding CMakeLists.txt, else the
// working directory.
func ResolveRoot(explicit string) (string, error) {
	if explicit != "" {
		info, err := os.Stat(explicit)
		if err != nil {
			return "", fmt.Errorf("project root: %w", err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("project root '%s' is not a directory", explicit)
		}
		return filepath.Abs(explicit)
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("could not get current working directory: %w", err)
	}
	for _, marker := range []string{config.FileName, config.Default().CMake.File} {
		if dir, ok := fs.FindUp(wd, marker); ok {
			return dir, nil
		}
	}
	return wd, nil
}

func loadProjectConfig(explicit string, resolver *fs.PathResolver) (config.Config, error) {
	path := explicit
	if path == "" {
		if fromEnv, ok := config.PathFromEnv(); ok {
			path = fromEnv
		}
	}
	if path != "" {
		// A config that was asked for must exist.
		if _, err := os.Stat(path); err != nil {
			return config.Config{}, fmt.Errorf("config: %w", err)
		}
		return config.Load(path)
	}
	if existing := resolver.ResolveExisting(config.FileName); existing != "" {
		return config.Load(existing)
	}
	return config.Default(), nil
}

// Root returns the project root.
func (a *App) Root() string {
	return a.pathResolver.Root()
}

// history loads the run state on first use. Modes that never touch it keep
// working when the state file is unreadable.
func (a *App) history() (*state.Manager, error) {
	if a.stateManager != nil {
		return a.stateManager, nil
	}
	m, err := state.New(a.Root())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state manager: %w", err)
	}
	a.stateManager = m
	return m, nil
}

// SetProgressCallback sets a function to be called for progress updates.
func (a *App) SetProgressCallback(cb ProgressUpdate) {
	a.progressCallback = cb
}

func (a *App) report(step string, current, total int) {
	if a.progressCallback != nil {
		a.progressCallback(step, current, total)
	}
}

// ask answers yes under --yes and otherwise defers to the prompt.
func (a *App) ask(question string) bool {
	if a.cfg.Yes {
		return true
	}
	if a.confirm == nil {
		return false
	}
	return a.confirm(question)
}

// Execute executes the main application logic based on parsed flags.
func (a *App) Execute(ctx context.Context) (summary model.Summary, err error) {
	// Centralized panic recovery.
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	switch {
	case a.cfg.Status:
		return a.showStatus()
	case a.cfg.PrintLine:
		return a.printLine()
	case a.cfg.Init:
		return a.initConfig()
	default:
		return a.setup(ctx)
	}
}

// ReplacementLine returns the line that would follow the marker for the
// currently resolved SDK path.
func (a *App) ReplacementLine() (string, error) {
	p, err := patcher.New(a.project.CMake.Marker, a.project.CMake.Template)
	if err != nil {
		return "", err
	}
	value, err := a.resolvePath()
	if err != nil {
		return "", err
	}
	return p.Line(value.Normalized), nil
}

func (a *App) printLine() (model.Summary, error) {
	line, err := a.ReplacementLine()
	if err != nil {
		return model.Summary{}, err
	}
	fmt.Fprintln(a.stdout, line)
	return model.Summary{}, nil
}

// initConfig writes the default envboot.yaml to the project root.
func (a *App) initConfig() (model.Summary, error) {
	path := a.pathResolver.Resolve(config.FileName)
	if _, err := os.Stat(path); err == nil {
		return model.Summary{}, fmt.Errorf("%s already exists", a.pathResolver.Relative(path))
	}
	if err := config.Write(path, config.Default()); err != nil {
		return model.Summary{}, err
	}
	return model.Summary{
		Modified: []string{a.pathResolver.Relative(path)},
		Message:  "Wrote default configuration.",
	}, nil
}

// showStatus reports the last recorded run and whether patched files have
// changed since.
func (a *App) showStatus() (model.Summary, error) {
	m, err := a.history()
	if err != nil {
		return model.Summary{}, err
	}
	last, ok := m.Last()
	if !ok {
		return model.Summary{Message: "No setup run recorded for this project."}, nil
	}

	summary := model.Summary{
		Message: fmt.Sprintf("Last setup: %s with SDK path %s (%d run(s) recorded)",
			last.Time().Format("2006-01-02 15:04:05"), displayValue(last.SDKPath), len(m.History())),
	}

	if value, err := a.resolvePath(); err == nil {
		if value.Normalized == last.SDKPath {
			summary.Add(StepSDK, model.StepOK, "path unchanged")
		} else {
			summary.Add(StepSDK, model.StepWarning, fmt.Sprintf("path is now %s", value.Normalized))
		}
	} else {
		summary.Add(StepSDK, model.StepWarning, err.Error())
	}

	for _, op := range last.Operations {
		rel := a.pathResolver.Relative(op.Path)
		if state.Drifted(op) {
			summary.Add(StepPatch, model.StepWarning, rel+" changed since last setup")
			summary.Failed = append(summary.Failed, rel)
		} else {
			summary.Add(StepPatch, model.StepOK, rel+" unchanged")
		}
	}
	return summary, nil
}

type step struct {
	name string
	run  func(ctx context.Context, summary *model.Summary) (model.StepStatus, string, error)
}

// setup runs every step in order and stops at the first failure.
func (a *App) setup(ctx context.Context) (model.Summary, error) {
	logger := xglog.WithComponent("app")
	summary := model.Summary{}

	lock := fs.NewSingleInstance(state.LockPath(a.Root()))
	if err := lock.Lock(); err != nil {
		return summary, err
	}
	defer lock.Release()

	m, err := a.history()
	if err != nil {
		return summary, err
	}

	steps := []step{
		{StepPackages, a.checkPackages},
		{StepSDK, a.checkSDK},
		{StepPatch, a.patchConfig},
		{StepSync, a.syncDependencies},
	}

	total := len(steps)
	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		a.report(s.name, i, total)
		status, detail, err := s.run(ctx, &summary)
		if err != nil {
			summary.Add(s.name, model.StepFailed, err.Error())
			logger.Debug().Err(err).Str("step", s.name).Msg("step failed")
			return summary, fmt.Errorf("%s: %w", s.name, err)
		}
		summary.Add(s.name, status, detail)
		logger.Debug().Str("step", s.name).Str("status", string(status)).Msg(detail)
	}
	a.report("", total, total)

	if a.cfg.DryRun {
		summary.Message = "Dry run: no files were changed."
		return summary, nil
	}

	sdkPath := ""
	if a.pathValue != nil {
		sdkPath = a.pathValue.Normalized
	}
	if err := m.Write(sdkPath, state.CreateOperations(a.patched)); err != nil {
		return summary, err
	}
	summary.Message = "Setup complete."
	return summary, nil
}

func (a *App) checkPackages(ctx context.Context, _ *model.Summary) (model.StepStatus, string, error) {
	if a.cfg.SkipPackages {
		return model.StepSkipped, "", nil
	}
	py := a.project.Python
	checker := pkgcheck.New(py.Interpreter, py.MinVersion, a.runner)

	v, err := checker.CheckInterpreter(ctx)
	if err != nil {
		return "", "", err
	}
	missing, err := checker.Missing(ctx, py.Packages)
	if err != nil {
		return "", "", err
	}
	if len(missing) == 0 {
		return model.StepOK, fmt.Sprintf("python %s, %d package(s) present", v, len(py.Packages)), nil
	}

	list := strings.Join(missing, ", ")
	if a.cfg.DryRun {
		return model.StepWarning, "would install " + list, nil
	}
	if !a.ask(fmt.Sprintf("Install missing Python packages (%s)?", list)) {
		return "", "", pkgcheck.MissingError(missing)
	}
	if err := checker.Install(ctx, missing, a.output); err != nil {
		return "", "", err
	}
	stillMissing, err := checker.Missing(ctx, missing)
	if err != nil {
		return "", "", err
	}
	if len(stillMissing) > 0 {
		return "", "", pkgcheck.MissingError(stillMissing)
	}
	return model.StepOK, "installed " + list, nil
}

func (a *App) checkSDK(ctx context.Context, _ *model.Summary) (model.StepStatus, string, error) {
	if a.cfg.SkipSDK {
		return model.StepSkipped, "", nil
	}

	value, err := a.resolvePath()
	if err != nil {
		return a.sdkMissing(ctx, fmt.Errorf("%w: %v", sdk.ErrSDKNotFound, err))
	}
	if value.Origin == source.OriginPlaceholder {
		return a.sdkMissing(ctx, sdk.ErrSDKNotFound)
	}

	inst, err := sdk.NewValidator(a.project.SDK.MinVersion).Check(value.Normalized)
	if errors.Is(err, sdk.ErrSDKNotFound) {
		return a.sdkMissing(ctx, err)
	}
	if err != nil {
		return "", "", err
	}

	switch {
	case inst.Version == nil:
		return model.StepWarning, fmt.Sprintf("could not determine SDK version from %s", inst.Root), nil
	case !inst.HasHeaders:
		return model.StepWarning, fmt.Sprintf("SDK %s at %s has no vulkan.h", inst.Version, inst.Root), nil
	default:
		return model.StepOK, fmt.Sprintf("SDK %s at %s", inst.Version, inst.Root), nil
	}
}

// sdkMissing offers to install the SDK. Declining is fatal unless the
// placeholder policy lets the run continue without one.
func (a *App) sdkMissing(ctx context.Context, cause error) (model.StepStatus, string, error) {
	cfg := a.project.SDK
	destDir := a.pathResolver.Resolve(filepath.Join(cfg.VendorDir, "VulkanSDK"))
	installer := sdk.NewInstaller(cfg.InstallerURL, cfg.Version, destDir, a.runner)

	if a.cfg.DryRun {
		return model.StepWarning, fmt.Sprintf("SDK not found, would download %s", installer.URL()), nil
	}
	if !a.ask(fmt.Sprintf("Vulkan SDK not found. Download and run the %s installer?", cfg.Version)) {
		if cfg.Missing == config.MissingPlaceholder {
			return model.StepWarning, "SDK not found", nil
		}
		return "", "", cause
	}

	if _, err := fs.EnsureDir(destDir, nil); err != nil {
		return "", "", err
	}
	path, err := installer.Download(ctx, func(written, total int64) {
		a.report(StepDownload, int(written), int(total))
	})
	if err != nil {
		return "", "", err
	}
	if err := installer.Launch(ctx, path); err != nil {
		return "", "", err
	}
	return "", "", sdk.ErrRestartRequired
}

func (a *App) patchConfig(_ context.Context, summary *model.Summary) (model.StepStatus, string, error) {
	p, err := patcher.New(a.project.CMake.Marker, a.project.CMake.Template)
	if err != nil {
		return "", "", err
	}
	value, err := a.resolvePath()
	if err != nil {
		return "", "", err
	}

	file := a.pathResolver.Resolve(a.project.CMake.File)
	rel := a.pathResolver.Relative(file)
	res, err := p.PatchFile(file, value.Normalized, a.cfg.DryRun)
	if err != nil {
		summary.Failed = append(summary.Failed, rel)
		return "", "", err
	}
	if res.Written {
		a.patched = append(a.patched, file)
	}

	switch {
	case res.Replaced == 0:
		return model.StepWarning, fmt.Sprintf("marker %q not found in %s", a.project.CMake.Marker, rel), nil
	case !res.Changed:
		return model.StepOK, rel + " already up to date", nil
	case a.cfg.DryRun:
		return model.StepOK, fmt.Sprintf("would set %s", res.Line), nil
	default:
		summary.Modified = append(summary.Modified, rel)
		return model.StepOK, res.Line, nil
	}
}

func (a *App) syncDependencies(ctx context.Context, _ *model.Summary) (model.StepStatus, string, error) {
	if a.cfg.NoSync {
		return model.StepSkipped, "", nil
	}
	syncer := depsync.New(a.project.Sync.Command, a.pathResolver.Resolve(a.project.Sync.Dir), a.runner)
	if !syncer.Enabled() {
		return model.StepSkipped, "no sync command configured", nil
	}
	if a.cfg.DryRun {
		return model.StepSkipped, fmt.Sprintf("would run `%s`", syncer), nil
	}
	if err := syncer.Sync(ctx, a.output); err != nil {
		return "", "", err
	}
	return model.StepOK, syncer.String(), nil
}

// resolvePath resolves the SDK path once per App.
func (a *App) resolvePath() (source.Value, error) {
	if a.pathValue != nil {
		return *a.pathValue, nil
	}
	value, err := a.pathSource.Resolve()
	if err != nil {
		return value, err
	}
	a.pathValue = &value
	return value, nil
}

func displayValue(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
