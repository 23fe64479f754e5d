// Package github finds and installs updates published as GitHub releases.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	goversion "github.com/hashicorp/go-version"
	"github.com/italolelis/updaterd/internal/logctx"
	"github.com/italolelis/updaterd/internal/telemetry"
	"github.com/italolelis/updaterd/internal/update"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

const (
	gatewayName          = "github"
	defaultAPIURL        = "https://api.github.com"
	defaultMaxRetries    = 3
	defaultRetryInterval = time.Second
	maxMetadataSize      = 1 << 20
)

// ErrAssetNotFound is returned when a newer release has no asset for this platform.
var ErrAssetNotFound = errors.New("release asset not found")

// APIError is a non-success response from the GitHub API.
type APIError struct {
	StatusCode int
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api %s: unexpected status %d", e.URL, e.StatusCode)
}

// Config configures a Gateway.
type Config struct {
	APIURL string
	Owner  string
	Repo   string
	Token  string

	// AssetName is the release asset to install; defaults to
	// "<repo>_<GOOS>_<GOARCH>".
	AssetName string
	// ChecksumsAsset is an optional sha256sum-style asset used to verify downloads.
	ChecksumsAsset string
	// InstallPath is the file replaced by the update; defaults to the running executable.
	InstallPath string

	CurrentVersion string

	HTTPClient    *http.Client
	MaxRetries    uint64
	RetryInterval time.Duration
	Telemetry     *telemetry.Telemetry
}

// Gateway implements update.Gateway against the releases API.
type Gateway struct {
	client    *http.Client
	telemetry *telemetry.Telemetry

	latestURL      string
	assetName      string
	checksumsAsset string
	installPath    string
	current        *goversion.Version

	maxRetries    uint64
	retryInterval time.Duration
}

// New validates cfg and returns a gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, errors.New("github owner and repo are required")
	}

	current, err := goversion.NewVersion(cfg.CurrentVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to parse current version %q: %w", cfg.CurrentVersion, err)
	}

	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	installPath := cfg.InstallPath
	if installPath == "" {
		if installPath, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("failed to resolve executable path: %w", err)
		}
	}

	assetName := cfg.AssetName
	if assetName == "" {
		assetName = fmt.Sprintf("%s_%s_%s", cfg.Repo, runtime.GOOS, runtime.GOARCH)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = newHTTPClient(cfg.Token)
	}

	g := &Gateway{
		client:         client,
		telemetry:      cfg.Telemetry,
		latestURL:      fmt.Sprintf("%s/repos/%s/%s/releases/latest", apiURL, cfg.Owner, cfg.Repo),
		assetName:      assetName,
		checksumsAsset: cfg.ChecksumsAsset,
		installPath:    installPath,
		current:        current,
		maxRetries:     cfg.MaxRetries,
		retryInterval:  cfg.RetryInterval,
	}

	if g.maxRetries == 0 {
		g.maxRetries = defaultMaxRetries
	}

	if g.retryInterval <= 0 {
		g.retryInterval = defaultRetryInterval
	}

	return g, nil
}

func newHTTPClient(token string) *http.Client {
	transport := otelhttp.NewTransport(http.DefaultTransport)

	if token == "" {
		return &http.Client{Transport: transport}
	}

	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   transport,
		},
	}
}

type releaseResponse struct {
	TagName     string          `json:"tag_name"`
	Body        string          `json:"body"`
	Draft       bool            `json:"draft"`
	Prerelease  bool            `json:"prerelease"`
	PublishedAt time.Time       `json:"published_at"`
	Assets      []assetResponse `json:"assets"`
}

type assetResponse struct {
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// InstallPath is the file replaced by downloaded updates.
func (g *Gateway) InstallPath() string {
	return g.installPath
}

// Check returns a candidate when the latest release is newer than the running version.
func (g *Gateway) Check(ctx context.Context) (update.Candidate, error) {
	var candidate *Candidate

	err := g.telemetry.InstrumentGatewayOperation(ctx, gatewayName, "check", func(ctx context.Context) error {
		var err error

		candidate, err = g.check(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	if candidate == nil {
		return nil, nil
	}

	return candidate, nil
}

func (g *Gateway) check(ctx context.Context) (*Candidate, error) {
	logger := logctx.LoggerFromContext(ctx).With("gateway", gatewayName)

	rel, err := g.latestRelease(ctx)
	if err != nil {
		return nil, err
	}

	if rel == nil || rel.Draft || rel.Prerelease {
		logger.DebugContext(ctx, "no published release")

		return nil, nil
	}

	latest, err := goversion.NewVersion(rel.TagName)
	if err != nil {
		return nil, fmt.Errorf("failed to parse release tag %q: %w", rel.TagName, err)
	}

	if !latest.GreaterThan(g.current) {
		logger.DebugContext(ctx, "latest release is not newer", "latest", latest.Original(), "current", g.current.Original())

		return nil, nil
	}

	c := &Candidate{
		gateway: g,
		release: update.Release{
			Version:     strings.TrimPrefix(rel.TagName, "v"),
			Notes:       rel.Body,
			PublishedAt: rel.PublishedAt,
		},
	}

	for _, a := range rel.Assets {
		switch a.Name {
		case g.assetName:
			c.assetURL = a.BrowserDownloadURL
			c.assetSize = a.Size
		case g.checksumsAsset:
			c.checksumsURL = a.BrowserDownloadURL
		}
	}

	if c.assetURL == "" {
		return nil, fmt.Errorf("%w: %s in release %s", ErrAssetNotFound, g.assetName, rel.TagName)
	}

	return c, nil
}

// latestRelease returns nil when the repository has no published release.
func (g *Gateway) latestRelease(ctx context.Context) (*releaseResponse, error) {
	logger := logctx.LoggerFromContext(ctx)

	var rel *releaseResponse

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.latestURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}

		req.Header.Set("Accept", "application/vnd.github+json")

		resp, err := g.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to perform request: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			rel = nil

			return nil
		case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
			return &APIError{StatusCode: resp.StatusCode, URL: g.latestURL}
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(&APIError{StatusCode: resp.StatusCode, URL: g.latestURL})
		}

		var body releaseResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataSize)).Decode(&body); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode release: %w", err))
		}

		rel = &body

		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.retryInterval
	bo.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		logger.WarnContext(ctx, "release lookup failed, retrying", "err", err, "retry_in", wait.String())
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(bo, g.maxRetries), ctx), notify); err != nil {
		return nil, fmt.Errorf("failed to fetch latest release: %w", err)
	}

	return rel, nil
}
