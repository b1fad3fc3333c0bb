package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// persistentJar keeps the backend's opaque session cookies on disk so that
// sibling client processes share one credential. Calling code never reads
// cookie values; the jar only feeds the HTTP transport.
type persistentJar struct {
	mu     sync.Mutex
	inner  *cookiejar.Jar
	path   string
	origin *url.URL
}

type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

func newPersistentJar(path string, origin *url.URL) (*persistentJar, error) {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	j := &persistentJar{inner: inner, path: path, origin: origin}
	if path != "" {
		if err := j.load(); err != nil {
			return nil, err
		}
	}
	return j, nil
}

func (j *persistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.inner.SetCookies(u, cookies)

	if j.path == "" || u.Host != j.origin.Host {
		return
	}
	if err := j.save(cookies); err != nil {
		log.Warn().Err(err).Msg("failed to persist session cookies")
	}
}

func (j *persistentJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.inner.Cookies(u)
}

func (j *persistentJar) load() error {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cookie file: %w", err)
	}

	var stored []storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse cookie file: %w", err)
	}

	now := time.Now()
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Path:    c.Path,
			Expires: c.Expires,
		})
	}
	j.inner.SetCookies(j.origin, cookies)
	return nil
}

// save merges the latest Set-Cookie batch into the on-disk file using the
// same temp-file-and-rename pattern as the persistent store. Must be called
// with mu held.
func (j *persistentJar) save(latest []*http.Cookie) error {
	byName := make(map[string]storedCookie)

	data, err := os.ReadFile(j.path)
	if err == nil {
		var stored []storedCookie
		if json.Unmarshal(data, &stored) == nil {
			for _, c := range stored {
				byName[c.Name] = c
			}
		}
	}

	for _, c := range latest {
		if c.MaxAge < 0 {
			delete(byName, c.Name)
			continue
		}
		expires := c.Expires
		if c.MaxAge > 0 {
			expires = time.Now().Add(time.Duration(c.MaxAge) * time.Second)
		}
		byName[c.Name] = storedCookie{Name: c.Name, Value: c.Value, Path: c.Path, Expires: expires}
	}

	merged := make([]storedCookie, 0, len(byName))
	for _, c := range byName {
		merged = append(merged, c)
	}

	out, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0700); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}

	tempPath := j.path + ".tmp"
	if err := os.WriteFile(tempPath, out, 0600); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	if err := os.Rename(tempPath, j.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save cookie file: %w", err)
	}
	return nil
}
