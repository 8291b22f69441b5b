package release

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/refit/pkg/log"
	"github.com/cuemby/refit/pkg/metrics"
	"github.com/cuemby/refit/pkg/storage"
	"github.com/cuemby/refit/pkg/types"
	"github.com/cuemby/refit/pkg/version"
	"github.com/google/go-github/v39/github"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// DefaultTimeout bounds a single release check
const DefaultTimeout = 15 * time.Second

// Config configures a Checker
type Config struct {
	Owner      string
	Repository string
	// APIBaseURL overrides https://api.github.com/
	APIBaseURL string
	// Token authenticates API calls when set
	Token       string
	Timeout     time.Duration
	InstallRoot string
	// HTTPClient is used instead of http.DefaultClient when set
	HTTPClient *http.Client
}

// Checker compares the installed version with the latest published release
type Checker struct {
	cfg    Config
	client *github.Client
	store  storage.Store
	now    func() time.Time
	logger zerolog.Logger
}

// NewChecker creates a release checker. store may be nil, in which case
// check results are not cached.
func NewChecker(cfg Config, store storage.Store) (*Checker, error) {
	if cfg.Owner == "" || cfg.Repository == "" {
		return nil, fmt.Errorf("release owner and repository are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if cfg.Token != "" {
		ctx := context.Background()
		if httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(ctx, ts)
	}

	client := github.NewClient(httpClient)
	if cfg.APIBaseURL != "" {
		base := cfg.APIBaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("failed to parse API base URL: %w", err)
		}
		client.BaseURL = u
	}

	return &Checker{
		cfg:    cfg,
		client: client,
		store:  store,
		now:    time.Now,
		logger: log.WithComponent("release"),
	}, nil
}

// CurrentVersion returns the installed version: a tag pointing at the
// checked-out commit, else the version marker, else "unknown"
func (c *Checker) CurrentVersion() string {
	return version.Current(c.cfg.InstallRoot)
}

// Latest fetches the latest published release. Any transport or API error
// is returned as a NetworkFailure.
func (c *Checker) Latest(ctx context.Context) (*github.RepositoryRelease, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	rel, _, err := c.client.Repositories.GetLatestRelease(ctx, c.cfg.Owner, c.cfg.Repository)
	if err != nil {
		var rerr *github.ErrorResponse
		if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == http.StatusNotFound {
			return nil, types.NewError(types.ErrNetworkFailure, err, "no published release for %s/%s", c.cfg.Owner, c.cfg.Repository)
		}
		return nil, types.NewError(types.ErrNetworkFailure, err, "failed to fetch latest release")
	}
	if rel.GetTagName() == "" {
		return nil, types.NewError(types.ErrNetworkFailure, nil, "latest release has no tag")
	}
	return rel, nil
}

// Resolve returns the release for target, or the latest release when target
// is empty. Tags are tried as given and then with a "v" prefix.
func (c *Checker) Resolve(ctx context.Context, target string) (*types.ReleaseInfo, error) {
	var rel *github.RepositoryRelease
	var err error

	if target == "" {
		rel, err = c.Latest(ctx)
	} else {
		rel, err = c.byTag(ctx, target)
	}
	if err != nil {
		return nil, err
	}

	info := &types.ReleaseInfo{
		CurrentVersion: c.CurrentVersion(),
		LatestVersion:  version.Normalize(rel.GetTagName()),
		ReleaseNotes:   rel.GetBody(),
		DownloadURL:    c.DownloadURL(rel),
		CheckedAt:      c.now().UTC(),
	}
	info.UpdateAvailable = version.Newer(info.CurrentVersion, info.LatestVersion)
	return info, nil
}

func (c *Checker) byTag(ctx context.Context, target string) (*github.RepositoryRelease, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	tags := []string{target}
	if n := version.Normalize(target); n != target {
		tags = append(tags, n)
	} else {
		tags = append(tags, "v"+target)
	}

	var lastErr error
	for _, tag := range tags {
		rel, _, err := c.client.Repositories.GetReleaseByTag(ctx, c.cfg.Owner, c.cfg.Repository, tag)
		if err == nil {
			return rel, nil
		}
		lastErr = err
		var rerr *github.ErrorResponse
		if !errors.As(err, &rerr) || rerr.Response == nil || rerr.Response.StatusCode != http.StatusNotFound {
			break
		}
	}
	return nil, types.NewError(types.ErrNetworkFailure, lastErr, "failed to fetch release %s", target)
}

// CheckForUpdate compares the installed version with the latest release.
// The only local side effect is caching the result.
func (c *Checker) CheckForUpdate(ctx context.Context) (*types.ReleaseInfo, error) {
	current := c.CurrentVersion()

	rel, err := c.Latest(ctx)
	if err != nil {
		metrics.ReleaseChecksTotal.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Msg("Release check failed")
		return nil, err
	}

	latest := version.Normalize(rel.GetTagName())
	info := &types.ReleaseInfo{
		CurrentVersion:  current,
		LatestVersion:   latest,
		UpdateAvailable: version.Newer(current, latest),
		ReleaseNotes:    rel.GetBody(),
		DownloadURL:     c.DownloadURL(rel),
		CheckedAt:       c.now().UTC(),
	}
	if rel.PublishedAt != nil {
		published := rel.GetPublishedAt().Time.UTC()
		info.PublishedAt = &published
	}

	result := "current"
	if info.UpdateAvailable {
		result = "available"
	}
	metrics.ReleaseChecksTotal.WithLabelValues(result).Inc()

	if c.store != nil {
		if err := c.store.SaveReleaseCheck(info); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache release check")
		}
	}

	c.logger.Info().
		Str("current", info.CurrentVersion).
		Str("latest", info.LatestVersion).
		Bool("update_available", info.UpdateAvailable).
		Msg("Release check complete")

	return info, nil
}

// LastCheck returns the cached result of the previous check, or nil
func (c *Checker) LastCheck() *types.ReleaseInfo {
	if c.store == nil {
		return nil
	}
	info, err := c.store.LastReleaseCheck()
	if err != nil {
		return nil
	}
	return info
}

// DownloadURL returns the tag-addressed source archive of a release
func (c *Checker) DownloadURL(rel *github.RepositoryRelease) string {
	if u := rel.GetTarballURL(); u != "" {
		return u
	}
	return c.TagArchiveURL(rel.GetTagName())
}

// TagArchiveURL returns the tarball URL of an arbitrary tag
func (c *Checker) TagArchiveURL(tag string) string {
	return fmt.Sprintf("%srepos/%s/%s/tarball/%s",
		c.client.BaseURL.String(), c.cfg.Owner, c.cfg.Repository, url.PathEscape(tag))
}
