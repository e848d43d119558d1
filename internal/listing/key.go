package listing

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// MakeKey forms the stable cross-scan identifier `<source-tag>:<native-id>`.
func MakeKey(sourceTag, nativeID string) string {
	return sourceTag + ":" + nativeID
}

// FallbackID derives a deterministic listing id from a URL for sources that
// expose no native id. The hash is content-derived so the same listing keeps
// the same key across process restarts.
func FallbackID(rawURL string) string {
	sum := sha256.Sum256([]byte(NormalizeURL(rawURL)))
	return "u" + hex.EncodeToString(sum[:])[:16]
}

// NormalizeURL canonicalises a listing URL before hashing: scheme and host are
// lowercased, the fragment is dropped, and a trailing slash is trimmed.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return strings.TrimSpace(rawURL)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}
