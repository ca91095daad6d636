package upload

import (
	"fmt"
	"path"
	"strings"
)

// NormalizeKey turns a client-supplied file name into an object key made
// of [A-Za-z0-9._-] only. Directory parts are dropped, each run of other
// characters becomes a single underscore, and leading or trailing
// underscores and dots are trimmed. NormalizeKey(NormalizeKey(s)) ==
// NormalizeKey(s).
func NormalizeKey(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)

	var b strings.Builder
	b.Grow(len(name))
	pendingSep := false
	for _, r := range name {
		if keyRune(r) && r != '_' {
			if pendingSep {
				b.WriteByte('_')
				pendingSep = false
			}
			b.WriteRune(r)
			continue
		}
		pendingSep = b.Len() > 0
	}

	key := strings.Trim(b.String(), "_.")
	if key == "" {
		return "file"
	}
	return key
}

func keyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '-', r == '_':
		return true
	}
	return false
}

// dedupe returns key, or key with a numeric suffix before the extension
// if key is already taken.
func dedupe(key string, taken map[string]bool) string {
	if !taken[key] {
		taken[key] = true
		return key
	}
	ext := path.Ext(key)
	stem := strings.TrimSuffix(key, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if !taken[candidate] {
			taken[candidate] = true
			return candidate
		}
	}
}
