// Package playlist renders and parses HLS media and master playlists per
// RFC 8216 and the LL-HLS extensions in RFC 8216bis.
package playlist

import "strings"

// formatAttrs joins "KEY=VALUE" pairs with commas, in the order given. Values
// containing characters that require quoting should already be wrapped in
// double quotes by the caller.
func formatAttrs(pairs ...string) string {
	return strings.Join(pairs, ",")
}

// quote wraps s in double quotes.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	b.WriteString(s)
	b.WriteByte('"')
	return b.String()
}

// parseAttrList splits an HLS attribute-list body (the part of a tag after
// the first ':') into a map of attribute name to raw value, honoring quoted
// strings that may themselves contain commas.
func parseAttrList(body string) map[string]string {
	out := make(map[string]string)
	i := 0
	n := len(body)
	for i < n {
		// skip leading whitespace/commas
		for i < n && (body[i] == ' ' || body[i] == ',') {
			i++
		}
		if i >= n {
			break
		}
		eq := strings.IndexByte(body[i:], '=')
		if eq < 0 {
			break
		}
		name := body[i : i+eq]
		i += eq + 1
		var value string
		if i < n && body[i] == '"' {
			end := strings.IndexByte(body[i+1:], '"')
			if end < 0 {
				value = body[i+1:]
				i = n
			} else {
				value = body[i+1 : i+1+end]
				i = i + 1 + end + 1
			}
		} else {
			start := i
			for i < n && body[i] != ',' {
				i++
			}
			value = body[start:i]
		}
		out[strings.TrimSpace(name)] = value
	}
	return out
}

// tagBody returns the part of line after the first ':', or "" if there is
// none (tags with no attributes).
func tagBody(line string) string {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return ""
	}
	return line[idx+1:]
}
