package sdk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/sokinpui/envboot/internal/fs"
	xglog "github.com/sokinpui/envboot/internal/log"
	"github.com/sokinpui/envboot/internal/runner"
)

// DefaultRetries is the number of retries for the installer download.
const DefaultRetries = 3

// ProgressFunc reports downloaded bytes. total is -1 when unknown.
type ProgressFunc func(written, total int64)

// Installer downloads and launches the SDK installer.
type Installer struct {
	client  *retryablehttp.Client
	runner  runner.Runner
	url     string
	destDir string
}

// NewInstaller creates an Installer for urlTemplate, where {version} is
// replaced by sdkVersion. Downloads land in destDir.
func NewInstaller(urlTemplate, sdkVersion, destDir string, r runner.Runner) *Installer {
	client := retryablehttp.NewClient()
	client.Logger = leveledLogger{xglog.WithComponent("sdk-download")}
	client.HTTPClient = &http.Client{Transport: cleanhttp.DefaultPooledTransport()}
	client.RetryMax = DefaultRetries

	return &Installer{
		client:  client,
		runner:  r,
		url:     strings.ReplaceAll(urlTemplate, "{version}", sdkVersion),
		destDir: destDir,
	}
}

// URL returns the resolved installer URL.
func (i *Installer) URL() string {
	return i.url
}

// Destination returns the path the installer is saved to.
func (i *Installer) Destination() string {
	name := "VulkanSDK-Installer.exe"
	if u, err := url.Parse(i.url); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			name = base
		}
	}
	return filepath.Join(i.destDir, name)
}

// Download fetches the installer into Destination. The file only appears
// once the download completed.
func (i *Installer) Download(ctx context.Context, progress ProgressFunc) (string, error) {
	logger := xglog.WithComponent("sdk")
	dest := i.Destination()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, i.url, nil)
	if err != nil {
		return "", fmt.Errorf("invalid installer URL %q: %w", i.url, err)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", i.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: unexpected status %s", i.url, resp.Status)
	}

	out, err := fs.NewAtomicFile(dest)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Cleanup()

	body := io.Reader(resp.Body)
	if progress != nil {
		body = &progressReader{r: resp.Body, total: resp.ContentLength, fn: progress}
	}
	n, err := io.Copy(out, body)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", i.url, err)
	}
	if err := out.Commit(); err != nil {
		return "", fmt.Errorf("save %s: %w", dest, err)
	}

	logger.Debug().Str("url", i.url).Str("dest", dest).Int64("bytes", n).Msg("downloaded installer")
	return dest, nil
}

// Launch runs the downloaded installer and waits for it to exit.
func (i *Installer) Launch(ctx context.Context, installerPath string) error {
	res, err := i.runner.Run(ctx, runner.Command{Name: installerPath, Dir: filepath.Dir(installerPath)})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("installer %s exited with status %d", installerPath, res.ExitCode)
	}
	return nil
}

type progressReader struct {
	r       io.Reader
	total   int64
	written int64
	fn      ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.written += int64(n)
		p.fn(p.written, p.total)
	}
	return n, err
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	l zerolog.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.l.Error().Fields(kv).Msg(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.l.Warn().Fields(kv).Msg(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.l.Info().Fields(kv).Msg(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.l.Debug().Fields(kv).Msg(msg) }
