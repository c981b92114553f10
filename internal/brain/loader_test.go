package brain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fakeGitHub serves a tiny contents API for repo pulse-os/brain.
type fakeGitHub struct {
	files    map[string]string
	requests atomic.Int32
	status   atomic.Int32
	lastAuth atomic.Value
	lastRef  atomic.Value
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	f.lastAuth.Store(r.Header.Get("Authorization"))
	f.lastRef.Store(r.URL.Query().Get("ref"))
	if code := f.status.Load(); code != 0 {
		w.WriteHeader(int(code))
		return
	}

	p, ok := strings.CutPrefix(r.URL.Path, "/repos/pulse-os/brain/contents/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if p == "brain" {
		var entries []contentsResponse
		for name := range f.files {
			entries = append(entries, contentsResponse{Type: "file", Name: name, Path: "brain/" + name})
		}
		entries = append(entries, contentsResponse{Type: "dir", Name: "drafts.md"})
		_ = json.NewEncoder(w).Encode(entries)
		return
	}
	name, _ := strings.CutPrefix(p, "brain/")
	body, ok := f.files[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	enc := base64.StdEncoding.EncodeToString([]byte(body))
	// GitHub wraps base64 content at 60 columns.
	var wrapped strings.Builder
	for len(enc) > 60 {
		wrapped.WriteString(enc[:60] + "\n")
		enc = enc[60:]
	}
	wrapped.WriteString(enc)
	_ = json.NewEncoder(w).Encode(contentsResponse{
		Type: "file", Name: name, Path: "brain/" + name, SHA: "abc123",
		Encoding: "base64", Content: wrapped.String(),
	})
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLoader(t *testing.T, gh *fakeGitHub, mutate func(*Options)) (*Loader, *fakeClock) {
	t.Helper()
	srv := httptest.NewServer(gh)
	t.Cleanup(srv.Close)

	clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	opts := Options{
		Repo:     "pulse-os/brain",
		Dir:      "brain",
		APIURL:   srv.URL,
		CacheTTL: time.Minute,
		Now:      clock.Now,
	}
	if mutate != nil {
		mutate(&opts)
	}
	l, err := NewLoader(opts)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	return l, clock
}

func TestLoad_DecodesAndCaches(t *testing.T) {
	long := "# Stoic coach\n\n" + strings.Repeat("Focus on what you control. ", 10)
	gh := &fakeGitHub{files: map[string]string{"stoic.md": long}}
	l, clock := newTestLoader(t, gh, nil)
	ctx := context.Background()

	m, err := l.Load(ctx, "stoic")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Content != long || m.SHA != "abc123" || m.Path != "brain/stoic.md" {
		t.Errorf("module = %+v", m)
	}

	if _, err := l.Load(ctx, "stoic"); err != nil {
		t.Fatal(err)
	}
	if n := gh.requests.Load(); n != 1 {
		t.Errorf("requests = %d, want 1 (cached)", n)
	}

	clock.Advance(time.Minute)
	if _, err := l.Load(ctx, "stoic"); err != nil {
		t.Fatal(err)
	}
	if n := gh.requests.Load(); n != 2 {
		t.Errorf("requests = %d, want 2 after expiry", n)
	}
}

func TestLoad_NotFound(t *testing.T) {
	l, _ := newTestLoader(t, &fakeGitHub{files: map[string]string{}}, nil)
	_, err := l.Load(context.Background(), "missing")
	if !errors.Is(err, ErrModuleNotFound) {
		t.Fatalf("err = %v, want ErrModuleNotFound", err)
	}
}

func TestLoad_InvalidNamesNeverFetch(t *testing.T) {
	gh := &fakeGitHub{files: map[string]string{}}
	l, _ := newTestLoader(t, gh, nil)
	for _, name := range []string{"", "../secrets", "Upper", "a/b", "x.md", strings.Repeat("a", 65)} {
		if _, err := l.Load(context.Background(), name); !errors.Is(err, ErrInvalidModuleName) {
			t.Errorf("Load(%q) err = %v", name, err)
		}
	}
	if gh.requests.Load() != 0 {
		t.Error("invalid name reached the API")
	}
}

func TestLoad_ServerErrorNotCached(t *testing.T) {
	gh := &fakeGitHub{files: map[string]string{"stoic.md": "x"}}
	gh.status.Store(http.StatusBadGateway)
	l, _ := newTestLoader(t, gh, nil)
	ctx := context.Background()

	if _, err := l.Load(ctx, "stoic"); err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("err = %v", err)
	}
	gh.status.Store(0)
	if _, err := l.Load(ctx, "stoic"); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestLoad_SendsTokenAndRef(t *testing.T) {
	gh := &fakeGitHub{files: map[string]string{"stoic.md": "x"}}
	l, _ := newTestLoader(t, gh, func(o *Options) {
		o.Token = "ghp_test"
		o.Ref = "release/1"
	})
	if _, err := l.Load(context.Background(), "stoic"); err != nil {
		t.Fatal(err)
	}
	if got := gh.lastAuth.Load(); got != "Bearer ghp_test" {
		t.Errorf("Authorization = %v", got)
	}
	if got := gh.lastRef.Load(); got != "release/1" {
		t.Errorf("ref = %v", got)
	}
}

func TestLoad_Cancelled(t *testing.T) {
	l, _ := newTestLoader(t, &fakeGitHub{files: map[string]string{"stoic.md": "x"}}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Load(ctx, "stoic"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestList(t *testing.T) {
	gh := &fakeGitHub{files: map[string]string{"stoic.md": "a", "coach.md": "b", "README.txt": "c"}}
	l, _ := newTestLoader(t, gh, nil)

	names, err := l.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if strings.Join(names, ",") != "coach,stoic" {
		t.Errorf("names = %v", names)
	}

	l.Invalidate()
	if _, err := l.List(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := gh.requests.Load(); n != 2 {
		t.Errorf("requests = %d, want 2 after Invalidate", n)
	}
}

func TestNewLoader_RepoValidation(t *testing.T) {
	for _, repo := range []string{"", "brain", "/brain", "pulse-os/", "a/b/c"} {
		if _, err := NewLoader(Options{Repo: repo}); err == nil {
			t.Errorf("NewLoader(%q) accepted", repo)
		}
	}
}
