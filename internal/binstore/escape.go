package binstore

import "strings"

// Escape maps ':' and '\' to non-colliding escape sequences so that
// joining escaped segments with ':' and splitting back on ':' is
// unambiguous. Used to compose namespaced keys as
// escape(bin):escape(kindTag):escape(userKey).
func Escape(s string) string {
	if !strings.ContainsAny(s, `:\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case ':':
			b.WriteString(`\c`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Unescape reverses Escape.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			case 'c':
				b.WriteByte(':')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Kind tags distinguish the two auxiliary-store namespaces a bin can
// write into, as composed by ComposeKey.
const (
	KeyStringTag = "KeyString"
	KeyListTag   = "KeyList"
)

// ComposeKey namespaces a user key under a bin and kind tag so keys from
// different bins/kinds can never collide when stored in a single flat
// key space.
func ComposeKey(bin, kindTag, userKey string) string {
	return Escape(bin) + ":" + Escape(kindTag) + ":" + Escape(userKey)
}

// ParseKey splits a composed key back into its bin, kind tag, and user
// key components. Splitting on unescaped ':' is unambiguous because
// Escape rewrites every literal ':' and '\' before composition.
func ParseKey(key string) (bin, kindTag, userKey string, ok bool) {
	parts := splitUnescaped(key, 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return Unescape(parts[0]), Unescape(parts[1]), Unescape(parts[2]), true
}

func splitUnescaped(s string, n int) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s) && len(parts) < n-1; i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if s[i] == ':' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}
