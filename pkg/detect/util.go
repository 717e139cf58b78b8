package detect

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// TimestampLayout names run directories.
const TimestampLayout = "20060102150405"

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]+`)

// SanitizeDomain turns a host (optionally with port) into a directory name.
func SanitizeDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	host = strings.TrimPrefix(host, "www.")
	host = strings.Trim(nonAlnum.ReplaceAllString(host, "_"), "_")
	if host == "" {
		return "unknown"
	}
	return host
}

// Timestamp formats t as YYYYMMDDHHMMSS.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// EnsureUniqueDir creates base, or base-1, base-2, ... when it already exists,
// and returns the created path.
func EnsureUniqueDir(base string) (string, error) {
	path := base
	for i := 1; ; i++ {
		err := os.Mkdir(path, 0o755)
		if err == nil {
			return path, nil
		}
		if !os.IsExist(err) {
			return "", errors.Wrapf(err, "failed to create %s", path)
		}
		path = fmt.Sprintf("%s-%d", base, i)
	}
}

// ValidateURL accepts absolute http(s) URLs with a host.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, newCollectError(CodeInvalidURL, StageInit, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, newCollectError(CodeInvalidURL, StageInit, errors.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return nil, newCollectError(CodeInvalidURL, StageInit, errors.New("missing host"))
	}
	return u, nil
}

// ParseViewport parses "WxH". Empty or malformed input yields the default.
func ParseViewport(s string) snapshot.Viewport {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return snapshot.DefaultViewport
	}
	width, err1 := strconv.Atoi(strings.TrimSpace(w))
	height, err2 := strconv.Atoi(strings.TrimSpace(h))
	if err1 != nil || err2 != nil || width <= 0 || height <= 0 {
		return snapshot.DefaultViewport
	}
	return snapshot.Viewport{Width: width, Height: height}
}
