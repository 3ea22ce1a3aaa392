// Package update checks GitHub for newer runtask releases and replaces the
// running binary.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/creativeprojects/go-selfupdate"
	"go.uber.org/zap"

	"github.com/pengelbrecht/runtask/internal/config"
)

const (
	repoOwner     = "pengelbrecht"
	repoName      = "runtask"
	brewFormula   = "pengelbrecht/tap/runtask"
	checkInterval = 24 * time.Hour
	checkTimeout  = 3 * time.Second
)

// ErrDevBuild is returned when a development build asks to be updated.
var ErrDevBuild = errors.New("cannot update dev builds")

// updateCache stores the last update check result.
type updateCache struct {
	LastCheck       time.Time `json:"last_check"`
	LatestVersion   string    `json:"latest_version,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
}

func cachePath() string {
	dir := config.Dir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "update-cache.json")
}

func loadCache() *updateCache {
	path := cachePath()
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cache updateCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil
	}
	return &cache
}

func saveCache(cache *updateCache) error {
	path := cachePath()
	if path == "" {
		return errors.New("no config directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(cache)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// InstallMethod represents how runtask was installed.
type InstallMethod int

const (
	// InstallUnknown means the install method could not be determined.
	InstallUnknown InstallMethod = iota
	// InstallHomebrew means runtask was installed via Homebrew.
	InstallHomebrew
	// InstallScript means runtask was installed via release archive or go install.
	InstallScript
)

func (m InstallMethod) String() string {
	switch m {
	case InstallHomebrew:
		return "homebrew"
	case InstallScript:
		return "script"
	default:
		return "unknown"
	}
}

// DetectInstallMethod inspects the resolved path of the running binary.
func DetectInstallMethod() InstallMethod {
	exe, err := os.Executable()
	if err != nil {
		return InstallUnknown
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return InstallUnknown
	}
	return installMethodForPath(exe)
}

func installMethodForPath(exe string) InstallMethod {
	switch {
	case strings.Contains(exe, "/Cellar/"),
		strings.HasPrefix(exe, "/opt/homebrew/"),
		strings.HasPrefix(exe, "/usr/local/Homebrew/"),
		strings.Contains(exe, "linuxbrew"):
		return InstallHomebrew
	default:
		return InstallScript
	}
}

// Release describes a published release.
type Release struct {
	Version     string
	ReleaseURL  string
	ReleaseDate string
}

func isDevBuild(version string) bool {
	v := strings.TrimPrefix(version, "v")
	return v == "" || v == "dev"
}

func detectLatest(ctx context.Context) (*selfupdate.Updater, *selfupdate.Release, bool, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, nil, false, fmt.Errorf("create GitHub source: %w", err)
	}
	updater, err := selfupdate.NewUpdater(selfupdate.Config{Source: source})
	if err != nil {
		return nil, nil, false, fmt.Errorf("create updater: %w", err)
	}
	latest, found, err := updater.DetectLatest(ctx, selfupdate.NewRepositorySlug(repoOwner, repoName))
	if err != nil {
		return nil, nil, false, fmt.Errorf("detect latest version: %w", err)
	}
	return updater, latest, found, nil
}

// CheckForUpdate reports the latest release and whether it is newer than
// currentVersion. Dev builds never see an update.
func CheckForUpdate(ctx context.Context, currentVersion string) (*Release, bool, error) {
	if isDevBuild(currentVersion) {
		return nil, false, nil
	}

	_, latest, found, err := detectLatest(ctx)
	if err != nil || !found {
		return nil, false, err
	}

	release := &Release{
		Version:    latest.Version(),
		ReleaseURL: latest.URL,
	}
	if !latest.PublishedAt.IsZero() {
		release.ReleaseDate = latest.PublishedAt.Format("2006-01-02")
	}
	return release, latest.GreaterThan(strings.TrimPrefix(currentVersion, "v")), nil
}

// Update downloads the latest release over the running binary. Homebrew
// installs are refused since brew owns the file.
func Update(ctx context.Context, currentVersion string) (*Release, error) {
	if DetectInstallMethod() == InstallHomebrew {
		return nil, fmt.Errorf("runtask was installed via Homebrew. Please run: brew upgrade %s", brewFormula)
	}
	if isDevBuild(currentVersion) {
		return nil, ErrDevBuild
	}

	updater, latest, found, err := detectLatest(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.New("no releases found")
	}
	if !latest.GreaterThan(strings.TrimPrefix(currentVersion, "v")) {
		return nil, fmt.Errorf("already at latest version (%s)", currentVersion)
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("get executable path: %w", err)
	}
	if err := updater.UpdateTo(ctx, latest, exe); err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	return &Release{Version: latest.Version(), ReleaseURL: latest.URL}, nil
}

// UpdateInstructions returns instructions for updating based on install method.
func UpdateInstructions(method InstallMethod) string {
	switch method {
	case InstallHomebrew:
		return "Run: brew upgrade " + brewFormula
	case InstallScript:
		if runtime.GOOS == "windows" {
			return "Run: runtask upgrade\nOr download the latest release from https://github.com/pengelbrecht/runtask/releases"
		}
		return "Run: runtask upgrade\nOr reinstall: go install github.com/pengelbrecht/runtask/cmd/runtask@latest"
	default:
		return "Run: runtask upgrade"
	}
}

// CheckPeriodically consults GitHub at most once per checkInterval and
// returns an update notice, or "" when there is nothing to report.
func CheckPeriodically(ctx context.Context, currentVersion string, logger *zap.Logger) string {
	if isDevBuild(currentVersion) {
		return ""
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if cache := loadCache(); cache != nil && time.Since(cache.LastCheck) < checkInterval {
		// The binary may have been upgraded since the cache was written.
		if cache.UpdateAvailable && isNewerVersion(cache.LatestVersion, currentVersion) {
			return formatUpdateNotice(currentVersion, cache.LatestVersion, DetectInstallMethod())
		}
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	release, hasUpdate, err := CheckForUpdate(ctx, currentVersion)
	if err != nil {
		logger.Debug("update_check_failed", zap.Error(err))
	}

	cache := &updateCache{
		LastCheck:       time.Now(),
		UpdateAvailable: hasUpdate && err == nil,
	}
	if release != nil {
		cache.LatestVersion = release.Version
	}
	if err := saveCache(cache); err != nil {
		logger.Debug("update_cache_write_failed", zap.Error(err))
	}

	if err != nil || !hasUpdate {
		return ""
	}
	return formatUpdateNotice(currentVersion, release.Version, DetectInstallMethod())
}

// isNewerVersion returns true if version a is newer than version b. Versions
// that do not parse are never newer.
func isNewerVersion(a, b string) bool {
	va, err := semver.NewVersion(a)
	if err != nil {
		return false
	}
	vb, err := semver.NewVersion(b)
	if err != nil {
		return false
	}
	return va.GreaterThan(vb)
}

func formatUpdateNotice(current, latest string, method InstallMethod) string {
	cmd := "runtask upgrade"
	if method == InstallHomebrew {
		cmd = "brew upgrade " + brewFormula
	}
	return fmt.Sprintf("Update available: %s -> %s (run: %s)", current, latest, cmd)
}
