// Package brain loads coaching "brain" modules, markdown files kept in a
// GitHub repository, through the GitHub contents API.
//
// Fetched modules are cached per Loader with a TTL; a failed fetch is
// never cached so the next read retries.
package brain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pulse-os/pulse-observer/internal/cache"
	"go.uber.org/zap"
)

const (
	// DefaultAPIURL is the public GitHub API.
	DefaultAPIURL = "https://api.github.com"

	// fetchTimeout is how long we wait for the GitHub API.
	fetchTimeout = 10 * time.Second

	moduleExt = ".md"
)

// For testing: allow overriding the HTTP client.
var httpClient = &http.Client{Timeout: fetchTimeout}

var (
	// ErrModuleNotFound is returned when the repository has no such module.
	ErrModuleNotFound = errors.New("brain module not found")
	// ErrInvalidModuleName rejects names that could escape the module dir.
	ErrInvalidModuleName = errors.New("invalid brain module name")
)

var moduleName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Module is one fetched brain file.
type Module struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	SHA       string    `json:"sha"`
	Content   string    `json:"content"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Options configures a Loader.
type Options struct {
	// Repo is "owner/name".
	Repo string
	// Ref is a branch, tag or commit; empty means the default branch.
	Ref string
	// Dir is the directory inside the repo holding module files.
	Dir       string
	Token     string
	APIURL    string
	CacheTTL  time.Duration
	UserAgent string
	Logger    *zap.Logger
	Now       func() time.Time
}

// Loader fetches and caches brain modules.
type Loader struct {
	opts    Options
	modules *cache.Cache[string, *Module]
	index   *cache.Cache[string, []string]
}

// NewLoader creates a Loader. Repo is required.
func NewLoader(opts Options) (*Loader, error) {
	owner, name, ok := strings.Cut(opts.Repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("brain: repo must be owner/name, got %q", opts.Repo)
	}
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	opts.APIURL = strings.TrimRight(opts.APIURL, "/")
	opts.Dir = strings.Trim(opts.Dir, "/")
	if opts.UserAgent == "" {
		opts.UserAgent = "pulse-observer"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Loader{
		opts:    opts,
		modules: cache.New[string, *Module](opts.CacheTTL, cache.WithClock(opts.Now)),
		index:   cache.New[string, []string](opts.CacheTTL, cache.WithClock(opts.Now)),
	}, nil
}

// contentsResponse is the subset of the GitHub contents API we read.
type contentsResponse struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

// Load returns the named module, from cache when fresh.
func (l *Loader) Load(ctx context.Context, name string) (*Module, error) {
	if !moduleName.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidModuleName, name)
	}
	return l.modules.GetOrLoad(name, func() (*Module, error) {
		var file contentsResponse
		if err := l.get(ctx, l.repoPath(name+moduleExt), &file); err != nil {
			if errors.Is(err, ErrModuleNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
			}
			return nil, err
		}
		if file.Type != "file" || file.Encoding != "base64" {
			return nil, fmt.Errorf("brain: %s is not a base64 file (type %q, encoding %q)", name, file.Type, file.Encoding)
		}
		raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("brain: decoding %s: %w", name, err)
		}

		l.opts.Logger.Debug("brain module fetched", zap.String("module", name), zap.String("sha", file.SHA))
		return &Module{
			Name:      name,
			Path:      file.Path,
			SHA:       file.SHA,
			Content:   string(raw),
			FetchedAt: l.opts.Now().UTC(),
		}, nil
	})
}

// List returns the names of the modules in the brain directory, sorted.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	return l.index.GetOrLoad("", func() ([]string, error) {
		var entries []contentsResponse
		if err := l.get(ctx, l.repoPath(""), &entries); err != nil {
			return nil, err
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			base, ok := strings.CutSuffix(e.Name, moduleExt)
			if e.Type == "file" && ok && moduleName.MatchString(base) {
				names = append(names, base)
			}
		}
		sort.Strings(names)
		return names, nil
	})
}

// Invalidate drops cached copies so the next read refetches.
func (l *Loader) Invalidate() {
	l.modules.Purge()
	l.index.Purge()
}

func (l *Loader) repoPath(file string) string {
	return path.Join(l.opts.Dir, file)
}

// get fetches /repos/{repo}/contents/{p} and decodes the JSON body into out.
func (l *Loader) get(ctx context.Context, p string, out any) error {
	endpoint := fmt.Sprintf("%s/repos/%s/contents/%s", l.opts.APIURL, l.opts.Repo, p)
	if l.opts.Ref != "" {
		endpoint += "?ref=" + url.QueryEscape(l.opts.Ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("brain: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", l.opts.UserAgent)
	if l.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+l.opts.Token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("brain: fetching %s: %w", p, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrModuleNotFound
	default:
		l.opts.Logger.Warn("brain fetch failed", zap.String("path", p), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("brain: GitHub API returned %d for %s", resp.StatusCode, p)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("brain: parsing %s: %w", p, err)
	}
	return nil
}
