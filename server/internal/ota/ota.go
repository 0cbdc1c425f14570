// Package ota pulls application files from a GitHub repository.
//
// The repository carries a version.json listing a tag and the files to
// install. A local manifest remembers the version of every installed file so
// unchanged files are skipped. Files tagged "__hash__" are versioned by the
// SHA-256 of their content instead.
package ota

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/railyard/railyard/server/internal/config"
)

const (
	// HashTag selects content-hash versioning.
	HashTag = "__hash__"
	// NoVersion is reported for files the manifest does not know.
	NoVersion = "__NO_VERSION__"

	remoteConfigFile = "version.json"
	maxParallel      = 4
)

var (
	ErrNoRemoteConfig  = errors.New("ota: remote configuration was not found")
	ErrBadRemoteConfig = errors.New("ota: remote configuration needs tag and files")
	ErrUnsafePath      = errors.New("ota: file path escapes install dir")
)

// RepoURL points at one revision of a repository on a raw-content host.
type RepoURL struct {
	Base    string
	User    string
	Repo    string
	Version string
}

// URL returns the directory URL, always ending in a slash.
func (r RepoURL) URL() string {
	return fmt.Sprintf("%s/%s/%s/%s/", strings.TrimRight(r.Base, "/"), r.User, r.Repo, r.Version)
}

// Remote is the decoded version.json.
type Remote struct {
	Tag   string   `json:"tag"`
	Files []string `json:"files"`
}

// Outcome of one file update.
type Outcome string

const (
	Updated  Outcome = "updated"
	Deferred Outcome = "deferred"
)

// Result reports what happened to each file.
type Result struct {
	Tag   string
	Files map[string]Outcome
}

// Updater runs updates for one OTA configuration.
type Updater struct {
	cfg    config.OTAConfig
	client *http.Client
}

// New returns an Updater for cfg.
func New(cfg config.OTAConfig) *Updater {
	return &Updater{cfg: cfg, client: &http.Client{Timeout: 30 * time.Second}}
}

func (u *Updater) repo() RepoURL {
	return RepoURL{Base: u.cfg.BaseURL, User: u.cfg.User, Repo: u.cfg.Repo, Version: u.cfg.Version}
}

// FetchRemote reads version.json from the configured branch.
func (u *Updater) FetchRemote(ctx context.Context) (Remote, error) {
	status, body, err := u.get(ctx, u.repo().URL()+remoteConfigFile)
	if err != nil {
		return Remote{}, fmt.Errorf("ota: fetch remote config: %w", err)
	}
	if status != http.StatusOK {
		return Remote{}, fmt.Errorf("%w (HTTP %d)", ErrNoRemoteConfig, status)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Remote{}, fmt.Errorf("%w: %v", ErrBadRemoteConfig, err)
	}
	if _, ok := raw["tag"]; !ok {
		return Remote{}, ErrBadRemoteConfig
	}
	if _, ok := raw["files"]; !ok {
		return Remote{}, ErrBadRemoteConfig
	}
	var r Remote
	if err := json.Unmarshal(body, &r); err != nil {
		return Remote{}, fmt.Errorf("%w: %v", ErrBadRemoteConfig, err)
	}
	if r.Tag == "" {
		return Remote{}, ErrBadRemoteConfig
	}
	return r, nil
}

// Update fetches the remote config and brings every listed file up to date.
func (u *Updater) Update(ctx context.Context) (Result, error) {
	remote, err := u.FetchRemote(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(u.cfg.InstallDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("ota: create install dir: %w", err)
	}
	man, err := loadManifest(filepath.Join(u.cfg.InstallDir, u.cfg.Manifest))
	if err != nil {
		return Result{}, err
	}

	repo := u.repo()
	if remote.Tag != HashTag {
		repo.Version = remote.Tag
	}
	base := repo.URL()

	res := Result{Tag: remote.Tag, Files: make(map[string]Outcome, len(remote.Files))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, file := range remote.Files {
		g.Go(func() error {
			out, err := u.updateFile(gctx, man, base, file, remote.Tag)
			if err != nil {
				return err
			}
			mu.Lock()
			res.Files[file] = out
			mu.Unlock()
			slog.Info("ota: file "+string(out), "file", file, "tag", remote.Tag)
			return nil
		})
	}
	err = g.Wait()
	if saveErr := man.save(); saveErr != nil && err == nil {
		err = saveErr
	}
	return res, err
}

// Run is Update for callers that must not fail: errors are only logged.
func (u *Updater) Run(ctx context.Context) {
	res, err := u.Update(ctx)
	if err != nil {
		slog.Error("ota: update failed", "err", err)
		return
	}
	slog.Info("ota: update complete", "tag", res.Tag, "files", len(res.Files))
}

func (u *Updater) updateFile(ctx context.Context, man *manifest, base, file, tag string) (Outcome, error) {
	dst, err := u.target(file)
	if err != nil {
		return "", err
	}
	current := man.version(file)
	if tag != HashTag && tag == current {
		return Deferred, nil
	}

	status, body, err := u.get(ctx, base+file)
	if err != nil {
		return "", fmt.Errorf("ota: download %s: %w", file, err)
	}
	if status != http.StatusOK {
		return Deferred, nil
	}

	version := tag
	if tag == HashTag {
		sum := sha256.Sum256(body)
		version = hex.EncodeToString(sum[:])
	}
	if version == current {
		return Deferred, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("ota: create dir for %s: %w", file, err)
	}
	if err := os.WriteFile(dst, body, 0o644); err != nil {
		return "", fmt.Errorf("ota: write %s: %w", file, err)
	}
	man.set(file, version)
	return Updated, nil
}

// target resolves file inside the install dir.
func (u *Updater) target(file string) (string, error) {
	root, err := filepath.Abs(u.cfg.InstallDir)
	if err != nil {
		return "", fmt.Errorf("ota: install dir: %w", err)
	}
	if file == "" || filepath.IsAbs(file) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, file)
	}
	dst := filepath.Join(root, filepath.FromSlash(file))
	rel, err := filepath.Rel(root, dst)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, file)
	}
	if dst == filepath.Join(root, u.cfg.Manifest) {
		return "", fmt.Errorf("%w: %q is the manifest", ErrUnsafePath, file)
	}
	return dst, nil
}

func (u *Updater) get(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}
