package platform

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// FilterAccepted drops local files whose detected content type matches none
// of the accept entries. Entries are MIME types ("image/png"), wildcards
// ("image/*") or extensions (".pdf"). Non-local URIs and an empty accept
// list pass through unchanged.
func FilterAccepted(files, accept []string) []string {
	accept = normalizeAccept(accept)
	if len(accept) == 0 {
		return files
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		path, local := PathFromURI(f)
		if !local {
			out = append(out, f)
			continue
		}
		mtype, err := mimetype.DetectFile(path)
		if err != nil {
			slog.Warn("picked file unreadable, dropping", "file", f, "error", err)
			continue
		}
		if accepts(accept, path, mtype) {
			out = append(out, f)
			continue
		}
		slog.Info("picked file rejected by accept types", "file", f, "mime_type", mtype.String(), "accept", accept)
	}
	return out
}

func normalizeAccept(accept []string) []string {
	var out []string
	for _, a := range accept {
		for _, part := range strings.Split(a, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" || part == "*/*" || part == "*" {
				if part != "" {
					return nil
				}
				continue
			}
			out = append(out, part)
		}
	}
	return out
}

func accepts(accept []string, path string, mtype *mimetype.MIME) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, a := range accept {
		switch {
		case strings.HasPrefix(a, "."):
			if a == ext || a == mtype.Extension() {
				return true
			}
		case strings.HasSuffix(a, "/*"):
			prefix := strings.TrimSuffix(a, "*")
			for m := mtype; m != nil; m = m.Parent() {
				if strings.HasPrefix(m.String(), prefix) {
					return true
				}
			}
		default:
			for m := mtype; m != nil; m = m.Parent() {
				if m.Is(a) {
					return true
				}
			}
		}
	}
	return false
}
