package conversation

import (
	"fmt"
	"net/url"
	"strings"
)

const minPhoneDigits = 10

// normalizePhone trims input and accepts an optional leading + followed by
// digits only. It returns the bare digits.
func normalizePhone(input string) (string, bool) {
	s := strings.TrimSpace(input)
	s = strings.TrimPrefix(s, "+")
	if len(s) < minPhoneDigits {
		return "", false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return s, true
}

// validDownloadURL reports whether raw is an absolute http(s) URL with a host.
func validDownloadURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// normalizeCode trims and upper-cases an access code.
func normalizeCode(input string) string {
	return strings.ToUpper(strings.TrimSpace(input))
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
