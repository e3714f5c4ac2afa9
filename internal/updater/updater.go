// Package updater checks a release manifest on a cron schedule and hands
// newer packages to a per-platform installer.
package updater

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/danmuck/agentctl/internal/observability"
	"github.com/danmuck/agentctl/internal/tools"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-version"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var (
	ErrAlreadyChecking  = errors.New("updater: checks already scheduled")
	ErrInvalidManifest  = errors.New("updater: invalid manifest")
	ErrNoAsset          = errors.New("updater: no package for this platform")
	ErrChecksumMismatch = errors.New("updater: package checksum mismatch")
	ErrInvalidSchedule  = errors.New("updater: invalid check schedule")
)

// Check outcomes reported to metrics.
const (
	OutcomeCurrent   = "current"
	OutcomeInstalled = "installed"
	OutcomeFailed    = "failed"
	OutcomeDisabled  = "disabled"
)

type Config struct {
	ManifestURL    string
	Schedule       string
	StagingDir     string
	CurrentVersion string
	Platform       string
}

func DefaultConfig() Config {
	return Config{
		Schedule:   "@every 6h",
		StagingDir: "update",
		Platform:   runtime.GOOS + "_" + runtime.GOARCH,
	}
}

// Manifest is the release document served at ManifestURL.
type Manifest struct {
	Version string           `json:"version"`
	Assets  map[string]Asset `json:"assets"`
}

type Asset struct {
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
}

// Spawner runs background work; the fault supervisor satisfies it.
type Spawner interface {
	Go(source string, fn func() error)
}

type goSpawner struct{}

func (goSpawner) Go(_ string, fn func() error) { go func() { _ = fn() }() }

// Installer starts installation of a verified package.
type Installer func(runner tools.CommandRunner, pkgPath string) error

// Checker holds the shared manifest, download and schedule logic.
type Checker struct {
	cfg     Config
	client  *http.Client
	runner  tools.CommandRunner
	spawn   Spawner
	install Installer
	logger  zerolog.Logger

	mu        sync.Mutex
	scheduler *cron.Cron
	checkMu   sync.Mutex
}

type Option func(*Checker)

func WithHTTPClient(c *http.Client) Option {
	return func(ch *Checker) { ch.client = c }
}

func WithRunner(r tools.CommandRunner) Option {
	return func(ch *Checker) { ch.runner = r }
}

func WithSpawner(s Spawner) Option {
	return func(ch *Checker) { ch.spawn = s }
}

func newChecker(cfg Config, install Installer, logger zerolog.Logger, opts ...Option) *Checker {
	def := DefaultConfig()
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = def.Schedule
	}
	if strings.TrimSpace(cfg.StagingDir) == "" {
		cfg.StagingDir = def.StagingDir
	}
	if strings.TrimSpace(cfg.Platform) == "" {
		cfg.Platform = def.Platform
	}
	c := &Checker{
		cfg:     cfg,
		client:  cleanhttp.DefaultPooledClient(),
		runner:  tools.ExecRunner{},
		spawn:   goSpawner{},
		install: install,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BeginChecking schedules periodic checks plus one immediate check and
// returns without waiting for either. The schedule stops with ctx.
func (c *Checker) BeginChecking(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scheduler != nil {
		return ErrAlreadyChecking
	}
	if strings.TrimSpace(c.cfg.ManifestURL) == "" {
		c.logger.Info().Msg("updater.Checker.BeginChecking disabled reason=no_manifest_url")
		observability.RecordUpdateCheck(OutcomeDisabled)
		return nil
	}

	sched := cron.New()
	if _, err := sched.AddFunc(c.cfg.Schedule, func() { c.spawnCheck(ctx) }); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, c.cfg.Schedule, err)
	}
	c.scheduler = sched
	sched.Start()
	go func() {
		<-ctx.Done()
		<-sched.Stop().Done()
	}()

	c.spawnCheck(ctx)
	c.logger.Info().Str("schedule", c.cfg.Schedule).Msg("updater.Checker.BeginChecking scheduled")
	return nil
}

func (c *Checker) spawnCheck(ctx context.Context) {
	c.spawn.Go("updater", func() error {
		return c.CheckForUpdates(ctx)
	})
}

// CheckForUpdates fetches the manifest and installs a newer release.
// Concurrent calls are serialized.
func (c *Checker) CheckForUpdates(ctx context.Context) error {
	c.checkMu.Lock()
	defer c.checkMu.Unlock()

	installed, err := c.check(ctx)
	switch {
	case err != nil:
		observability.RecordUpdateCheck(OutcomeFailed)
		c.logger.Warn().Err(err).Msg("updater.Checker.CheckForUpdates failed")
	case installed:
		observability.RecordUpdateCheck(OutcomeInstalled)
	default:
		observability.RecordUpdateCheck(OutcomeCurrent)
	}
	return err
}

func (c *Checker) check(ctx context.Context) (bool, error) {
	if strings.TrimSpace(c.cfg.ManifestURL) == "" {
		return false, nil
	}
	m, err := c.FetchManifest(ctx)
	if err != nil {
		return false, err
	}
	newer, err := IsNewer(c.cfg.CurrentVersion, m.Version)
	if err != nil {
		return false, err
	}
	if !newer {
		c.logger.Debug().Str("current", c.cfg.CurrentVersion).Str("latest", m.Version).Msg("updater.Checker up to date")
		return false, nil
	}

	asset, ok := m.Assets[c.cfg.Platform]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNoAsset, c.cfg.Platform)
	}
	path, err := c.download(ctx, m.Version, asset)
	if err != nil {
		return false, err
	}
	c.logger.Info().Str("version", m.Version).Str("package", path).Msg("updater.Checker installing update")
	if err := c.install(c.runner, path); err != nil {
		return false, fmt.Errorf("updater: install %s: %w", path, err)
	}
	return true, nil
}

// FetchManifest downloads and decodes the release manifest.
func (c *Checker) FetchManifest(ctx context.Context) (Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ManifestURL, nil)
	if err != nil {
		return Manifest{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Manifest{}, fmt.Errorf("updater: fetch manifest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Manifest{}, fmt.Errorf("updater: fetch manifest: status %d", resp.StatusCode)
	}
	var m Manifest
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if strings.TrimSpace(m.Version) == "" {
		return Manifest{}, fmt.Errorf("%w: version missing", ErrInvalidManifest)
	}
	return m, nil
}

func (c *Checker) download(ctx context.Context, ver string, asset Asset) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("updater: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("updater: download: status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(c.cfg.StagingDir, 0o755); err != nil {
		return "", fmt.Errorf("updater: staging dir: %w", err)
	}
	name := stagingName(asset.URL, ver)
	dest := filepath.Join(c.cfg.StagingDir, name)
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("updater: staging file: %w", err)
	}
	h := sha256.New()
	_, copyErr := io.Copy(io.MultiWriter(f, h), resp.Body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("updater: download: %w", err)
	}

	sum := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(sum, strings.TrimSpace(asset.SHA256)) {
		_ = os.Remove(dest)
		return "", fmt.Errorf("%w: got %s", ErrChecksumMismatch, sum)
	}
	return dest, nil
}

// stagingName derives the local file name from the asset URL path, dropping
// any query or fragment.
func stagingName(rawURL, ver string) string {
	fallback := "agentctl-" + ver
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return fallback
	}
	return name
}

// IsNewer reports whether latest is a higher version than current. An
// unparsable current version is treated as older than any release.
func IsNewer(current, latest string) (bool, error) {
	lv, err := version.NewVersion(strings.TrimSpace(latest))
	if err != nil {
		return false, fmt.Errorf("%w: version %q: %w", ErrInvalidManifest, latest, err)
	}
	cv, err := version.NewVersion(strings.TrimSpace(current))
	if err != nil {
		return true, nil
	}
	return lv.GreaterThan(cv), nil
}
