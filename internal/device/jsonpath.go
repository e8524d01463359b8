package device

import "strings"

// ExtractPath walks a dot-separated key path through a parsed JSON
// document. Only plain key traversal is supported; a missing key or a
// non-object at any level returns ok=false and the caller falls back to
// the whole document.
//
//	ExtractPath(map[string]any{"a": map[string]any{"b": 42}}, "a.b") // 42, true
func ExtractPath(doc any, path string) (any, bool) {
	if path == "" {
		return doc, true
	}

	current := doc
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
