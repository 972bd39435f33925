package urlutil

import "net/url"

// Canonicalize applies a deterministic normalization to a URL, producing a canonical form.
// It maps equivalent URL spellings to a single canonical representation.
//
// The normalization follows these rules:
//   - Scheme and host are lowercased
//   - Path is cleaned (trailing slashes removed, except for root "/")
//   - Fragments are removed
//   - Default ports are omitted (e.g., :80 for http, :443 for https)
//
// Query strings are preserved: two URLs differing only by query are distinct
// crawl targets, not duplicates — deduplicating on query is a crawl-scope
// decision (path_priority_rules / allowlist-denylist), not a canonicalization
// rule.
//
// Properties:
//   - Pure: no state, no memory
//   - Deterministic: same input always produces same output
//   - Idempotent: Canonicalize(Canonicalize(url)) == Canonicalize(url)
//   - Context-free: does not depend on crawl history
func Canonicalize(sourceUrl url.URL) url.URL {
	// Create a copy to avoid mutating the original
	canonical := sourceUrl

	// Lowercase scheme and host
	canonical.Scheme = lowerASCII(canonical.Scheme)
	canonical.Host = lowerASCII(canonical.Host)

	// Remove default port if present
	if host, port := canonical.Hostname(), canonical.Port(); port != "" {
		if (canonical.Scheme == "http" && port == "80") ||
			(canonical.Scheme == "https" && port == "443") {
			canonical.Host = host
		}
	}

	// Clean the path: remove trailing slashes (except root)
	if len(canonical.Path) > 1 {
		canonical.Path = stripTrailingSlash(canonical.Path)
	}

	// Remove fragment (anchor)
	canonical.Fragment = ""
	canonical.RawFragment = ""

	// An empty trailing "?" carries no query
	canonical.ForceQuery = false

	// Drop credentials: never used for dedup/storage keys
	canonical.User = nil

	return canonical
}

// CanonicalKey returns a string form of a canonicalized URL suitable for use
// as a map/set key. A url.URL value must never be used directly as a map
// key for deduplication: it carries pointer fields (*Userinfo) so two
// structurally-identical URLs can compare unequal, and struct equality does
// not imply the strings a reader cares about are equal either. Always
// dedup on the canonicalized string.
func CanonicalKey(sourceUrl url.URL) string {
	canonical := Canonicalize(sourceUrl)
	return canonical.String()
}

// lowerASCII converts ASCII characters to lowercase without allocating.
// This is faster than strings.ToLower for ASCII-only strings.
func lowerASCII(s string) string {
	var needsLower bool
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			needsLower = true
			break
		}
	}
	if !needsLower {
		return s
	}
	b := make([]byte, len(s))
	copy(b, s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// stripTrailingSlash removes trailing slashes from a path.
func stripTrailingSlash(path string) string {
	for len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}

// Resolve fills in scheme and host on a URL parsed from a page-relative
// href (which carries only a path/query/fragment) so it becomes
// absolute. A discovered URL that already has a host (an absolute or
// protocol-relative link) is returned unchanged.
func Resolve(discovered url.URL, seedScheme, host string) url.URL {
	if discovered.Host != "" {
		return discovered
	}
	resolved := discovered
	resolved.Scheme = seedScheme
	resolved.Host = host
	return resolved
}

// FilterByHost keeps only the URLs whose host matches host, case
// insensitively. Discovered links pointing off-host are never
// admission candidates for this crawl.
func FilterByHost(host string, urls []url.URL) []url.URL {
	want := lowerASCII(host)
	kept := make([]url.URL, 0, len(urls))
	for _, u := range urls {
		if lowerASCII(u.Host) == want {
			kept = append(kept, u)
		}
	}
	return kept
}
