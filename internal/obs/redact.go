package obs

import "strings"

var sensitiveSubstrings = []string{
	"api_key", "apikey", "authorization", "token", "password", "secret", "bearer",
}

// ObfuscatePointers replaces anything that looks like a raw memory address
// or allocator tag in a diagnostic string. qerror.Error.Obfuscated uses
// this so a logged error detail never leaks internal pointers.
func ObfuscatePointers(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		if i+2 < len(s) && s[i] == '0' && s[i+1] == 'x' && isHex(s[i+2]) {
			j := i + 2
			for j < len(s) && isHex(s[j]) {
				j++
			}
			b.WriteString("0x***")
			i = j
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// RedactLabels scrubs values for any label key that looks sensitive, for
// free-form key/value pairs supplied by a caller (e.g. PARAMS).
func RedactLabels(in map[string]string) map[string]string {
	if len(in) == 0 {
		return in
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if isSensitiveKey(k) {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(k string) bool {
	low := strings.ToLower(k)
	for _, s := range sensitiveSubstrings {
		if strings.Contains(low, s) {
			return true
		}
	}
	return false
}
