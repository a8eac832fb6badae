package httpapi

import "strings"

// BuildSocketURL maps an http(s) origin onto the matching ws(s) origin and
// joins path with exactly one slash. It never fails and
// BuildSocketURL(BuildSocketURL(o, p), "") == BuildSocketURL(o, p).
func BuildSocketURL(origin, path string) string {
	base := strings.TrimSpace(origin)
	scheme, rest, found := strings.Cut(base, "://")
	if !found {
		scheme, rest = "ws", base
	}

	switch strings.ToLower(scheme) {
	case "https", "wss":
		scheme = "wss"
	default:
		scheme = "ws"
	}

	rest = strings.TrimRight(rest, "/")
	if rest == "" {
		rest = "localhost"
	}

	out := scheme + "://" + rest
	if p := strings.TrimLeft(strings.TrimSpace(path), "/"); p != "" {
		out += "/" + p
	}
	return out
}
