package obs

import "strings"

// CanonicalPath collapses resource identifiers so metric labels stay low
// cardinality regardless of how many shares or documents exist.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if rest, ok := strings.CutPrefix(path, "/documents/shares/"); ok {
		switch {
		case rest == "":
			return path
		case strings.HasSuffix(rest, "/access") && !strings.Contains(strings.TrimSuffix(rest, "/access"), "/"):
			return "/documents/shares/:id/access"
		case !strings.Contains(rest, "/"):
			return "/documents/shares/:id"
		}
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/documents/"); ok {
		if strings.HasSuffix(rest, "/share") && !strings.Contains(strings.TrimSuffix(rest, "/share"), "/") {
			return "/documents/:id/share"
		}
		return path
	}
	return path
}
