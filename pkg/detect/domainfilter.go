package detect

import (
	"bufio"
	"context"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"

	"github.com/jingkaihe/webskill/pkg/logger"
)

// DomainRefreshInterval is how often the domains file is re-read.
const DomainRefreshInterval = 30 * time.Second

// DomainFilter gates collection targets by a file of hosts and glob patterns.
// An empty or missing file allows every host.
type DomainFilter struct {
	mu       sync.RWMutex
	filePath string
	exact    map[string]bool
	patterns []glob.Glob
	loadedAt time.Time
	now      func() time.Time
}

// NewDomainFilter loads filePath. A leading ~/ is expanded.
func NewDomainFilter(filePath string) *DomainFilter {
	if strings.HasPrefix(filePath, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			filePath = filepath.Join(home, filePath[2:])
		}
	}
	df := &DomainFilter{filePath: filePath, now: time.Now}
	df.load()
	return df
}

func (df *DomainFilter) load() {
	exact := make(map[string]bool)
	var patterns []glob.Glob

	if f, err := os.Open(df.filePath); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			host := normalizeHostLine(scanner.Text())
			if host == "" {
				continue
			}
			if strings.ContainsAny(host, "*?") {
				if g, err := glob.Compile(host, '.'); err == nil {
					patterns = append(patterns, g)
					continue
				}
			}
			exact[host] = true
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		logger.G(context.TODO()).WithError(err).WithField("path", df.filePath).Warn("failed to open allowed domains file")
	}

	df.mu.Lock()
	df.exact = exact
	df.patterns = patterns
	df.loadedAt = df.now()
	df.mu.Unlock()
}

// normalizeHostLine extracts the lowercased host from a domains file line.
func normalizeHostLine(line string) string {
	line = strings.ToLower(strings.TrimSpace(line))
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	if !strings.HasPrefix(line, "http://") && !strings.HasPrefix(line, "https://") {
		line = "https://" + line
	}
	if u, err := url.Parse(line); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	line = strings.TrimPrefix(strings.TrimPrefix(line, "https://"), "http://")
	host, _, _ := strings.Cut(line, "/")
	return host
}

func (df *DomainFilter) stale() bool {
	df.mu.RLock()
	defer df.mu.RUnlock()
	return df.now().Sub(df.loadedAt) > DomainRefreshInterval
}

// IsAllowed reports whether the host of rawURL may be collected.
// Loopback hosts are always allowed.
func (df *DomainFilter) IsAllowed(rawURL string) (bool, error) {
	if df.stale() {
		df.load()
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, err
	}
	host := strings.ToLower(u.Hostname())
	if isLoopback(host) {
		return true, nil
	}

	df.mu.RLock()
	defer df.mu.RUnlock()
	if len(df.exact) == 0 && len(df.patterns) == 0 {
		return true, nil
	}
	if df.exact[host] {
		return true, nil
	}
	for _, g := range df.patterns {
		if g.Match(host) {
			return true, nil
		}
	}
	return false, nil
}

func isLoopback(host string) bool {
	switch host {
	case "localhost", "0.0.0.0":
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
