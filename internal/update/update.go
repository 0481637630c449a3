// Package update checks GitHub releases for newer veil versions and replaces
// the running binary on request.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	semver3 "github.com/blang/semver"
	semver "github.com/blang/semver/v4"
	"github.com/rhysd/go-github-selfupdate/selfupdate"
	"github.com/rs/zerolog/log"
)

const (
	// Slug is the GitHub owner/repo releases are published under.
	Slug          = "veil-pii/veil"
	latestURL     = "https://api.github.com/repos/" + Slug + "/releases/latest"
	cacheFileName = "update.json"
	cacheTTL      = 24 * time.Hour
)

type cache struct {
	LastChecked time.Time `json:"last_checked"`
	Latest      string    `json:"latest"`
}

// Checker looks up the latest release. The zero value is not usable; use
// NewChecker.
type Checker struct {
	URL    string
	Client *http.Client
	// Dir holds the check cache; empty disables caching.
	Dir string
}

// NewChecker returns a Checker for the public releases endpoint that caches
// under the user's config dir.
func NewChecker() *Checker {
	return &Checker{
		URL:    latestURL,
		Client: &http.Client{Timeout: 2 * time.Second},
		Dir:    configDir(),
	}
}

func configDir() string {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, "veil")
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "veil")
}

func (c *Checker) loadCache() (cache, error) {
	var ch cache
	if c.Dir == "" {
		return ch, errors.New("no config dir")
	}
	b, err := os.ReadFile(filepath.Join(c.Dir, cacheFileName))
	if err != nil {
		return ch, err
	}
	err = json.Unmarshal(b, &ch)
	return ch, err
}

func (c *Checker) saveCache(ch cache) {
	if c.Dir == "" {
		return
	}
	_ = os.MkdirAll(c.Dir, 0o755)
	b, _ := json.MarshalIndent(ch, "", "  ")
	if err := os.WriteFile(filepath.Join(c.Dir, cacheFileName), b, 0o644); err != nil {
		log.Debug().Err(err).Msg("save update cache")
	}
}

func (c *Checker) latestOnline(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "veil-updater")
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := c.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("releases endpoint returned %s", resp.Status)
	}
	var obj struct {
		TagName string `json:"tag_name"`
		Name    string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return "", err
	}
	v := obj.TagName
	if v == "" {
		v = obj.Name
	}
	return v, nil
}

// Check returns the latest known version and whether it is newer than
// current. Results are cached for a day and nothing is fetched in CI or when
// noNetwork is set.
func (c *Checker) Check(ctx context.Context, current string, noNetwork bool) (string, bool, error) {
	if os.Getenv("CI") != "" || noNetwork {
		return "", false, nil
	}
	ch, _ := c.loadCache()
	latest := normalize(ch.Latest)
	if time.Since(ch.LastChecked) > cacheTTL || latest == "" {
		v, err := c.latestOnline(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("release check failed")
		} else {
			latest = normalize(v)
			c.saveCache(cache{Latest: latest, LastChecked: time.Now()})
		}
	}
	if latest == "" || normalize(current) == "" {
		return latest, false, nil
	}
	return latest, Newer(latest, current), nil
}

// Newer reports whether a is a later version than b. Unparsable versions
// are never newer.
func Newer(a, b string) bool {
	va, err := semver.ParseTolerant(a)
	if err != nil {
		return false
	}
	vb, err := semver.ParseTolerant(b)
	if err != nil {
		return true
	}
	return va.GT(vb)
}

func normalize(v string) string {
	v = strings.TrimSpace(v)
	return strings.TrimPrefix(v, "v")
}

// SelfUpdate replaces the running binary with the latest release and returns
// the version now installed.
func SelfUpdate(current string) (string, error) {
	ver, err := semver.ParseTolerant(current)
	if err != nil {
		ver = semver.MustParse("0.0.0")
	}
	// the updater still speaks the pre-module semver API
	latest, err := selfupdate.UpdateSelf(semver3.MustParse(ver.String()), Slug)
	if err != nil {
		return "", fmt.Errorf("self-update: %w", err)
	}
	return latest.Version.String(), nil
}
