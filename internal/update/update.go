// Package update checks the project's release listing for a newer build and
// downloads its asset. It never runs what it downloads.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fseqgen/internal/config"
	"fseqgen/internal/logging"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "fseqgen"
)

// Info describes the release found by Check.
type Info struct {
	Available bool   `json:"available"`
	Current   string `json:"current"`
	Latest    string `json:"latest"`
	AssetName string `json:"asset_name"`
	URL       string `json:"url"`
	Changes   string `json:"changes,omitempty"`
	Date      string `json:"date,omitempty"`
}

type release struct {
	Name      string  `json:"name"`
	Body      string  `json:"body"`
	UpdatedAt string  `json:"updated_at"`
	Assets    []asset `json:"assets"`
}

type asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// Checker queries a GitHub style releases endpoint.
type Checker struct {
	ReleasesURL    string
	BuildTag       string
	CurrentVersion string
	Token          string
	Client         *http.Client
	Logger         *slog.Logger
}

// NewChecker builds a checker from the [update] configuration.
func NewChecker(cfg *config.Config, current string, logger *slog.Logger) *Checker {
	timeout := defaultTimeout
	if cfg.Update.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Update.TimeoutSeconds) * time.Second
	}
	return &Checker{
		ReleasesURL:    cfg.Update.ReleasesURL,
		BuildTag:       cfg.Update.BuildTag,
		CurrentVersion: current,
		Token:          cfg.Update.Token,
		Client:         &http.Client{Timeout: timeout},
		Logger:         logger,
	}
}

func (c *Checker) logger() *slog.Logger {
	return logging.NewComponentLogger(c.Logger, "update")
}

func (c *Checker) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return &http.Client{Timeout: defaultTimeout}
}

// Check fetches the listing and compares the build tag's first asset with
// the running version. Only the first release of the listing is examined.
func (c *Checker) Check(ctx context.Context) (Info, error) {
	logger := c.logger()
	req, err := c.newRequest(ctx, c.ReleasesURL)
	if err != nil {
		return Info{}, &Error{Kind: ErrNetwork, Op: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client().Do(req)
	if err != nil {
		return Info{}, &Error{Kind: ErrNetwork, Op: "fetch releases", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Info{}, &Error{Kind: ErrNetwork, Op: "fetch releases", Err: fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))}
	}

	var releases []release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return Info{}, &Error{Kind: ErrInvalidResponse, Op: "decode releases", Err: err}
	}
	if len(releases) == 0 {
		return Info{}, &Error{Kind: ErrInvalidResponse, Op: "decode releases", Err: errors.New("listing is empty")}
	}

	first := releases[0]
	if first.Name != c.BuildTag || len(first.Assets) == 0 {
		return Info{}, &Error{Kind: ErrReleaseNotFound, Op: "select release", Err: fmt.Errorf("newest release is %q, want %q with an asset", first.Name, c.BuildTag)}
	}
	a := first.Assets[0]
	latest := VersionFromAssetName(a.Name)
	current := ParseVersion(c.CurrentVersion)
	remote := ParseVersion(latest)

	info := Info{
		Available: remote.Key() > current.Key(),
		Current:   current.String(),
		Latest:    remote.String(),
		AssetName: a.Name,
		URL:       a.BrowserDownloadURL,
		Changes:   first.Body,
		Date:      first.UpdatedAt,
	}
	logger.Info("update check complete",
		logging.String(logging.FieldEventType, "update_checked"),
		logging.String("current", info.Current),
		logging.String("latest", info.Latest),
		logging.Bool("available", info.Available),
	)
	return info, nil
}

func (c *Checker) newRequest(ctx context.Context, url string) (*http.Request, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	if token := strings.TrimSpace(c.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}
