package envboot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/envboot/cli"
	"github.com/sokinpui/envboot/internal/config"
	"github.com/sokinpui/envboot/internal/depsync"
	"github.com/sokinpui/envboot/internal/fs"
	"github.com/sokinpui/envboot/internal/pkgcheck"
	"github.com/sokinpui/envboot/internal/runner"
	"github.com/sokinpui/envboot/internal/runner/runnertest"
	"github.com/sokinpui/envboot/internal/sdk"
	"github.com/sokinpui/envboot/internal/source"
	"github.com/sokinpui/envboot/internal/state"
	"github.com/sokinpui/envboot/model"
)

const cmakeContent = "cmake_minimum_required(VERSION 3.20)\n" +
	"project(Engine)\n" +
	"## __Vulkan\n" +
	"set(GLFW_VULKAN_INCLUDE_DIR    \"\")\n" +
	"add_subdirectory(Vendor/glfw)\n"

type project struct {
	root  string
	cmake string
	sdk   string
}

func newProject(t *testing.T) project {
	t.Helper()
	t.Setenv(config.EnvConfig, "")

	root := t.TempDir()
	cmake := filepath.Join(root, "CMakeLists.txt")
	require.NoError(t, os.WriteFile(cmake, []byte(cmakeContent), 0o644))

	cfg := config.Default()
	cfg.Python.Interpreter = "python3"
	cfg.Python.Packages = []string{"urllib3", "shutil"}
	require.NoError(t, config.Write(filepath.Join(root, config.FileName), cfg))

	return project{root: root, cmake: cmake, sdk: makeSDK(t, "1.3.250.1")}
}

func makeSDK(t *testing.T, version string) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "VulkanSDK", version)
	inc := filepath.Join(root, "Include", "vulkan")
	require.NoError(t, os.MkdirAll(inc, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(inc, "vulkan.h"), nil, 0o644))
	return filepath.ToSlash(root)
}

func healthyRunner() *runnertest.Fake {
	return runnertest.New().
		Set("python3 --version", runner.Result{Stdout: "Python 3.11.4\n"}).
		Set("python3 -c import urllib3", runner.Result{}).
		Set("python3 -c import shutil", runner.Result{}).
		Set("git submodule update --init --recursive", runner.Result{})
}

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func declineAll(string) bool { return false }

func newApp(t *testing.T, cfg *cli.Config, opts ...Option) *App {
	t.Helper()
	base := []Option{WithOutput(io.Discard), WithStdout(io.Discard), WithConfirm(declineAll)}
	app, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	return app
}

func stepStatuses(summary model.Summary) map[string]model.StepStatus {
	statuses := map[string]model.StepStatus{}
	for _, s := range summary.Steps {
		statuses[s.Name] = s.Status
	}
	return statuses
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestExecuteSetup(t *testing.T) {
	p := newProject(t)
	fake := healthyRunner()
	app := newApp(t, &cli.Config{Root: p.root},
		WithRunner(fake),
		WithLookup(env(map[string]string{"VULKAN_SDK": p.sdk})))

	summary, err := app.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]model.StepStatus{
		StepPackages: model.StepOK,
		StepSDK:      model.StepOK,
		StepPatch:    model.StepOK,
		StepSync:     model.StepOK,
	}, stepStatuses(summary))
	assert.Equal(t, []string{"CMakeLists.txt"}, summary.Modified)
	assert.Equal(t, "Setup complete.", summary.Message)

	want := "cmake_minimum_required(VERSION 3.20)\n" +
		"project(Engine)\n" +
		"## __Vulkan\n" +
		"set(GLFW_VULKAN_INCLUDE_DIR    \"" + p.sdk + "\")\n" +
		"add_subdirectory(Vendor/glfw)\n"
	assert.Equal(t, want, readFile(t, p.cmake))

	assert.Equal(t, []string{
		"python3 --version",
		"python3 -c import urllib3",
		"python3 -c import shutil",
		"git submodule update --init --recursive",
	}, fake.CommandLines())
	assert.Equal(t, p.root, fake.Calls[len(fake.Calls)-1].Dir)

	m, err := state.New(p.root)
	require.NoError(t, err)
	last, ok := m.Last()
	require.True(t, ok)
	assert.Equal(t, p.sdk, last.SDKPath)
	require.Len(t, last.Operations, 1)
	assert.Equal(t, p.cmake, last.Operations[0].Path)
	assert.False(t, state.Drifted(last.Operations[0]))
}

func TestExecuteIsIdempotent(t *testing.T) {
	p := newProject(t)
	lookup := WithLookup(env(map[string]string{"VULKAN_SDK": p.sdk}))

	_, err := newApp(t, &cli.Config{Root: p.root}, WithRunner(healthyRunner()), lookup).Execute(context.Background())
	require.NoError(t, err)
	first := readFile(t, p.cmake)

	summary, err := newApp(t, &cli.Config{Root: p.root}, WithRunner(healthyRunner()), lookup).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, readFile(t, p.cmake))
	assert.Empty(t, summary.Modified)
}

func TestExecuteDryRun(t *testing.T) {
	p := newProject(t)
	fake := healthyRunner()
	app := newApp(t, &cli.Config{Root: p.root, DryRun: true},
		WithRunner(fake),
		WithLookup(env(map[string]string{"VULKAN_SDK": p.sdk})))

	summary, err := app.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cmakeContent, readFile(t, p.cmake))
	assert.Empty(t, summary.Modified)
	assert.Equal(t, model.StepSkipped, stepStatuses(summary)[StepSync])
	assert.NotContains(t, fake.CommandLines(), "git submodule update --init --recursive")

	m, err := state.New(p.root)
	require.NoError(t, err)
	_, ok := m.Last()
	assert.False(t, ok)
}

func TestExecuteMissingPathFails(t *testing.T) {
	p := newProject(t)
	app := newApp(t, &cli.Config{Root: p.root, SkipSDK: true},
		WithRunner(healthyRunner()),
		WithLookup(env(nil)))

	summary, err := app.Execute(context.Background())
	require.ErrorIs(t, err, source.ErrMissingPath)
	assert.Contains(t, err.Error(), "VULKAN_SDK")
	assert.Equal(t, model.StepFailed, stepStatuses(summary)[StepPatch])
	assert.Equal(t, cmakeContent, readFile(t, p.cmake))
}

func TestExecuteMissingPathPlaceholder(t *testing.T) {
	p := newProject(t)
	app := newApp(t, &cli.Config{Root: p.root, SkipSDK: true, AllowMissingPath: true},
		WithRunner(healthyRunner()),
		WithLookup(env(map[string]string{"VULKAN_SDK": "   "})))

	_, err := app.Execute(context.Background())
	require.NoError(t, err)
	assert.Contains(t, readFile(t, p.cmake), "set(GLFW_VULKAN_INCLUDE_DIR    \"None\")\n")
}

func TestExecuteSDKPathFlagWins(t *testing.T) {
	p := newProject(t)
	app := newApp(t, &cli.Config{Root: p.root, SkipSDK: true, SDKPath: `C:\SDK\Vulkan`},
		WithRunner(healthyRunner()),
		WithLookup(env(map[string]string{"VULKAN_SDK": p.sdk})))

	_, err := app.Execute(context.Background())
	require.NoError(t, err)
	assert.Contains(t, readFile(t, p.cmake), `"C:/SDK/Vulkan"`)
}

func TestExecuteInstallsMissingPackages(t *testing.T) {
	p := newProject(t)
	fake := healthyRunner().
		Set("python3 -c import urllib3", runner.Result{ExitCode: 1}).
		Set("python3 -m pip install urllib3", runner.Result{})
	fake.OnRun = func(cmd runner.Command) {
		if cmd.String() == "python3 -m pip install urllib3" {
			fake.Set("python3 -c import urllib3", runner.Result{})
		}
	}
	app := newApp(t, &cli.Config{Root: p.root, Yes: true},
		WithRunner(fake),
		WithLookup(env(map[string]string{"VULKAN_SDK": p.sdk})))

	summary, err := app.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StepOK, summary.Steps[0].Status)
	assert.Equal(t, "installed urllib3", summary.Steps[0].Detail)
	assert.Contains(t, fake.CommandLines(), "python3 -m pip install urllib3")
}

func TestExecuteDeclinedPackages(t *testing.T) {
	p := newProject(t)
	fake := healthyRunner().Set("python3 -c import urllib3", runner.Result{ExitCode: 1})
	var asked []string
	app := newApp(t, &cli.Config{Root: p.root},
		WithRunner(fake),
		WithConfirm(func(q string) bool { asked = append(asked, q); return false }))

	summary, err := app.Execute(context.Background())
	require.ErrorIs(t, err, pkgcheck.ErrMissingPackages)
	assert.Len(t, asked, 1)
	assert.Len(t, summary.Steps, 1)
	assert.Equal(t, cmakeContent, readFile(t, p.cmake))
}

func TestExecuteSDKChecks(t *testing.T) {
	p := newProject(t)

	old := makeSDK(t, "1.2.198.1")
	_, err := newApp(t, &cli.Config{Root: p.root, SkipPackages: true},
		WithRunner(healthyRunner()),
		WithLookup(env(map[string]string{"VULKAN_SDK": old}))).Execute(context.Background())
	require.ErrorIs(t, err, sdk.ErrSDKTooOld)

	// Declining the installer is fatal under the default policy.
	_, err = newApp(t, &cli.Config{Root: p.root, SkipPackages: true},
		WithRunner(healthyRunner()),
		WithLookup(env(nil))).Execute(context.Background())
	require.ErrorIs(t, err, sdk.ErrSDKNotFound)

	summary, err := newApp(t, &cli.Config{Root: p.root, SkipPackages: true, AllowMissingPath: true},
		WithRunner(healthyRunner()),
		WithLookup(env(nil))).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StepWarning, stepStatuses(summary)[StepSDK])

	summary, err = newApp(t, &cli.Config{Root: p.root, SkipPackages: true, DryRun: true},
		WithRunner(healthyRunner()),
		WithLookup(env(map[string]string{"VULKAN_SDK": filepath.ToSlash(filepath.Join(p.root, "nope"))}))).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StepWarning, stepStatuses(summary)[StepSDK])
	assert.Contains(t, summary.Steps[1].Detail, "would download")
}

func TestExecuteSyncFailure(t *testing.T) {
	p := newProject(t)
	fake := healthyRunner().Set("git submodule update --init --recursive",
		runner.Result{ExitCode: 128, Stderr: "fatal: not a git repository\n"})
	app := newApp(t, &cli.Config{Root: p.root},
		WithRunner(fake),
		WithLookup(env(map[string]string{"VULKAN_SDK": p.sdk})))

	summary, err := app.Execute(context.Background())
	var exitErr *depsync.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 128, exitErr.Code)
	assert.Equal(t, model.StepFailed, stepStatuses(summary)[StepSync])
	// The patch already happened.
	assert.Equal(t, []string{"CMakeLists.txt"}, summary.Modified)
}

func TestExecuteMarkerNotFound(t *testing.T) {
	p := newProject(t)
	require.NoError(t, os.WriteFile(p.cmake, []byte("project(Engine)\n"), 0o644))
	app := newApp(t, &cli.Config{Root: p.root, SkipPackages: true, NoSync: true},
		WithLookup(env(map[string]string{"VULKAN_SDK": p.sdk})))

	summary, err := app.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StepWarning, stepStatuses(summary)[StepPatch])
	assert.Equal(t, model.StepSkipped, stepStatuses(summary)[StepSync])
	assert.Equal(t, "project(Engine)\n", readFile(t, p.cmake))
}

func TestExecuteLocked(t *testing.T) {
	p := newProject(t)
	lock := fs.NewSingleInstance(state.LockPath(p.root))
	require.NoError(t, lock.Lock())
	defer lock.Release()

	app := newApp(t, &cli.Config{Root: p.root}, WithRunner(healthyRunner()))
	_, err := app.Execute(context.Background())
	require.ErrorIs(t, err, fs.ErrLocked)
}

func TestExecuteRecoversPanics(t *testing.T) {
	p := newProject(t)
	fake := healthyRunner()
	fake.OnRun = func(runner.Command) { panic("boom") }
	app := newApp(t, &cli.Config{Root: p.root}, WithRunner(fake))

	_, err := app.Execute(context.Background())
	var detailed *DetailedError
	require.True(t, errors.As(err, &detailed))
	assert.Contains(t, detailed.Error(), "boom")
	assert.NotEmpty(t, detailed.Stack)
}

func TestExecuteCancelled(t *testing.T) {
	p := newProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	app := newApp(t, &cli.Config{Root: p.root}, WithRunner(healthyRunner()))
	_, err := app.Execute(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestProgressCallback(t *testing.T) {
	p := newProject(t)
	app := newApp(t, &cli.Config{Root: p.root},
		WithRunner(healthyRunner()),
		WithLookup(env(map[string]string{"VULKAN_SDK": p.sdk})))

	var steps []string
	app.SetProgressCallback(func(step string, current, total int) {
		assert.Equal(t, 4, total)
		steps = append(steps, step)
	})
	_, err := app.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{StepPackages, StepSDK, StepPatch, StepSync, ""}, steps)
}

func TestPrintLine(t *testing.T) {
	p := newProject(t)
	var out bytes.Buffer
	app := newApp(t, &cli.Config{Root: p.root, PrintLine: true},
		WithStdout(&out),
		WithLookup(env(map[string]string{"VULKAN_SDK": `D:\Vulkan\1.3.250.1 `})))

	summary, err := app.Execute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Steps)
	assert.Equal(t, "set(GLFW_VULKAN_INCLUDE_DIR    \"D:/Vulkan/1.3.250.1\")\n", out.String())
	assert.Equal(t, cmakeContent, readFile(t, p.cmake))
}

func TestStatus(t *testing.T) {
	p := newProject(t)
	lookup := WithLookup(env(map[string]string{"VULKAN_SDK": p.sdk}))

	summary, err := newApp(t, &cli.Config{Root: p.root, Status: true}, lookup).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "No setup run recorded for this project.", summary.Message)

	_, err = newApp(t, &cli.Config{Root: p.root}, WithRunner(healthyRunner()), lookup).Execute(context.Background())
	require.NoError(t, err)

	summary, err = newApp(t, &cli.Config{Root: p.root, Status: true}, lookup).Execute(context.Background())
	require.NoError(t, err)
	assert.Contains(t, summary.Message, p.sdk)
	assert.Contains(t, summary.Message, "(1 run(s) recorded)")
	assert.Equal(t, map[string]model.StepStatus{StepSDK: model.StepOK, StepPatch: model.StepOK}, stepStatuses(summary))

	require.NoError(t, os.WriteFile(p.cmake, []byte("edited\n"), 0o644))
	summary, err = newApp(t, &cli.Config{Root: p.root, Status: true},
		WithLookup(env(map[string]string{"VULKAN_SDK": "/elsewhere"}))).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]model.StepStatus{StepSDK: model.StepWarning, StepPatch: model.StepWarning}, stepStatuses(summary))
	assert.Equal(t, []string{"CMakeLists.txt"}, summary.Failed)
}

func TestNewConfigErrors(t *testing.T) {
	p := newProject(t)

	_, err := New(&cli.Config{Root: p.root, ConfigPath: filepath.Join(p.root, "missing.yaml")})
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(p.root, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("cmake:\n  bogus: 1\n"), 0o644))
	t.Setenv(config.EnvConfig, bad)
	_, err = New(&cli.Config{Root: p.root})
	require.Error(t, err)

	_, err = New(&cli.Config{Root: p.cmake})
	require.Error(t, err)
}

func TestResolveRoot(t *testing.T) {
	p := newProject(t)
	nested := filepath.Join(p.root, "Engine", "src")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	root, err := ResolveRoot("")
	require.NoError(t, err)
	assert.Equal(t, evalSymlinks(t, p.root), evalSymlinks(t, root))

	root, err = ResolveRoot(p.root)
	require.NoError(t, err)
	assert.Equal(t, p.root, root)
}

func evalSymlinks(t *testing.T, path string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	return resolved
}

func TestPatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CMakeLists.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\n## __Vulkan foo\nold\nb\n"), 0o644))

	res, err := PatchFile(path, "X", Config{Template: "new({path})"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replaced)
	assert.True(t, res.Written)
	assert.Equal(t, "a\n## __Vulkan foo\nnew(X)\nb\n", readFile(t, path))

	res, err = PatchFile(path, `C:\SDK\Vulkan`, Config{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, `set(GLFW_VULKAN_INCLUDE_DIR    "C:/SDK/Vulkan")`, res.Line)
	assert.False(t, res.Written)

	_, err = PatchFile(path, "X", Config{Template: "no placeholder"})
	require.Error(t, err)
}

func TestCorruptStateOnlyAffectsModesThatUseIt(t *testing.T) {
	p := newProject(t)
	require.NoError(t, os.MkdirAll(state.Dir(p.root), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(state.Dir(p.root), "state.envboot"), []byte("garbage\n"), 0o644))
	lookup := WithLookup(env(map[string]string{"VULKAN_SDK": p.sdk}))

	var out bytes.Buffer
	_, err := newApp(t, &cli.Config{Root: p.root, PrintLine: true}, WithStdout(&out), lookup).Execute(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out.String(), p.sdk)

	_, err = newApp(t, &cli.Config{Root: p.root, Status: true}, lookup).Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid state file")

	fake := healthyRunner()
	_, err = newApp(t, &cli.Config{Root: p.root}, WithRunner(fake), lookup).Execute(context.Background())
	require.Error(t, err)
	assert.Empty(t, fake.Calls, "no step runs without a readable history")
	assert.Equal(t, cmakeContent, readFile(t, p.cmake))
}

func TestInitConfig(t *testing.T) {
	t.Setenv(config.EnvConfig, "")
	root := t.TempDir()

	summary, err := newApp(t, &cli.Config{Root: root, Init: true}).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{config.FileName}, summary.Modified)

	cfg, err := config.Load(filepath.Join(root, config.FileName))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	_, err = newApp(t, &cli.Config{Root: root, Init: true}).Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
