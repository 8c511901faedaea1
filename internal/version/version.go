// Package version carries build metadata and checks GitHub for newer
// halyard releases.
package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"runtime"
	"strings"
	"time"
)

// Build metadata, overridden at link time:
//
//	-ldflags "-X .../internal/version.Version=v1.2.3"
//
//nolint:gochecknoglobals // set via ldflags
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Default configuration constants.
const (
	DefaultBaseURL      = "https://api.github.com"
	DefaultTimeout      = 30 * time.Second
	ReleaseOwner        = "halyard-sh"
	ReleaseRepo         = "halyard"
	maxErrorBodySize    = 1024
	maxResponseBodySize = 64 * 1024
)

// Errors returned by this package.
var (
	ErrGitHubAPIFailed  = errors.New("GitHub API request failed")
	ErrInvalidOwner     = errors.New("owner cannot be empty")
	ErrInvalidRepo      = errors.New("repo cannot be empty")
	ErrInvalidOwnerRepo = errors.New("owner/repo contains invalid characters")
)

// validOwnerRepoPattern matches valid GitHub owner/repo names.
var validOwnerRepoPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Current returns the human-readable build version string.
func Current() string {
	s := Version
	if Commit != "" {
		s += " (" + Commit + ")"
	}
	return s
}

// GitHubRelease represents a GitHub release.
type GitHubRelease struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	Body        string    `json:"body"`
}

// Info is the result of an update check.
type Info struct {
	Current string `json:"current"`
	Latest  string `json:"latest"`
	IsNewer bool   `json:"is_newer"`
}

// Client fetches GitHub releases with configurable settings.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL for the GitHub API.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		userAgent: fmt.Sprintf("halyard/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CheckForUpdate compares the running build against the latest published
// halyard release.
func (c *Client) CheckForUpdate(ctx context.Context) (*Info, error) {
	release, err := c.GetLatestRelease(ctx, ReleaseOwner, ReleaseRepo)
	if err != nil {
		return nil, err
	}
	return &Info{
		Current: Version,
		Latest:  release.TagName,
		IsNewer: IsNewerVersion(Version, release.TagName),
	}, nil
}

// validateOwnerRepo validates the owner and repo parameters.
func validateOwnerRepo(owner, repo string) error {
	if owner == "" {
		return ErrInvalidOwner
	}
	if repo == "" {
		return ErrInvalidRepo
	}
	if !validOwnerRepoPattern.MatchString(owner) || !validOwnerRepoPattern.MatchString(repo) {
		return ErrInvalidOwnerRepo
	}
	return nil
}

// GetLatestRelease fetches the latest release from GitHub.
func (c *Client) GetLatestRelease(ctx context.Context, owner, repo string) (*GitHubRelease, error) {
	if err := validateOwnerRepo(owner, repo); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.baseURL, owner, repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		limitedReader := io.LimitReader(resp.Body, maxErrorBodySize)
		body, _ := io.ReadAll(limitedReader)
		return nil, fmt.Errorf("%w: status %d: %s", ErrGitHubAPIFailed, resp.StatusCode, string(body))
	}

	limitedReader := io.LimitReader(resp.Body, maxResponseBodySize)
	var release GitHubRelease
	if err := json.NewDecoder(limitedReader).Decode(&release); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &release, nil
}

// CompareVersions compares two version strings.
// Returns 1 if v1 > v2, 0 if equal, -1 if v1 < v2. Dev builds and bare
// commit hashes always compare older than any release.
func CompareVersions(v1, v2 string) int {
	v1 = strings.TrimPrefix(v1, "v")
	v2 = strings.TrimPrefix(v2, "v")

	isV1Dev := v1 == "dev" || v1 == "" || isCommitHash(v1)
	isV2Dev := v2 == "dev" || v2 == "" || isCommitHash(v2)

	if isV1Dev && isV2Dev {
		return 0
	}
	if isV1Dev {
		return -1
	}
	if isV2Dev {
		return 1
	}

	parts1 := parseVersion(v1)
	parts2 := parseVersion(v2)

	for i := 0; i < 3; i++ {
		if i >= len(parts1) && i >= len(parts2) {
			break
		}
		val1 := 0
		val2 := 0
		if i < len(parts1) {
			val1 = parts1[i]
		}
		if i < len(parts2) {
			val2 = parts2[i]
		}

		if val1 > val2 {
			return 1
		}
		if val1 < val2 {
			return -1
		}
	}

	return 0
}

// parseVersion parses a version string into major, minor, patch integers.
func parseVersion(version string) []int {
	// Strip suffixes like -rc1 or +build metadata.
	if idx := strings.IndexAny(version, "-+"); idx != -1 {
		version = version[:idx]
	}

	parts := strings.Split(version, ".")
	result := make([]int, 0, len(parts))

	for _, part := range parts {
		var num int
		if _, err := fmt.Sscanf(part, "%d", &num); err == nil {
			result = append(result, num)
		}
	}

	return result
}

// IsNewerVersion checks if latestVersion is newer than currentVersion.
func IsNewerVersion(currentVersion, latestVersion string) bool {
	return CompareVersions(latestVersion, currentVersion) > 0
}

// isCommitHash reports whether s looks like a 7-40 character git SHA with
// at least one hex letter, which rules out pure numeric versions.
func isCommitHash(s string) bool {
	s = strings.TrimSuffix(s, "-dirty")

	if len(s) < 7 || len(s) > 40 {
		return false
	}

	hasLetter := false
	for _, c := range s {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'

		if !isDigit && !isLowerHex && !isUpperHex {
			return false
		}
		if isLowerHex || isUpperHex {
			hasLetter = true
		}
	}

	return hasLetter
}
