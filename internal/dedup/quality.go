package dedup

import (
	"net/mail"
	"net/url"
	"strings"
)

var freeEmailDomains = map[string]bool{
	"gmail.com": true, "yahoo.com": true, "hotmail.com": true,
	"outlook.com": true, "icloud.com": true, "aol.com": true,
}

var trackingParamPrefixes = []string{"utm_", "gclid", "fbclid", "mc_eid"}

// phoneQuality scores structural quality: parseable-international beats
// merely carrying a country code, which beats a plain digit count.
func phoneQuality(v string) int {
	trimmed := strings.TrimSpace(v)
	digits := countDigits(trimmed)
	switch {
	case strings.HasPrefix(trimmed, "+") && digits >= 10:
		return 2_000_000 + digits
	case strings.HasPrefix(trimmed, "+") || strings.HasPrefix(trimmed, "00"):
		return 1_000_000 + digits
	default:
		return digits
	}
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// emailQuality scores RFC-validity above a non-free domain above length.
func emailQuality(v string) int {
	score := 0
	if _, err := mail.ParseAddress(v); err == nil {
		score += 1_000_000
	}
	if at := strings.LastIndex(v, "@"); at >= 0 && !freeEmailDomains[strings.ToLower(v[at+1:])] {
		score += 10_000
	}
	return score + len(v)
}

// websiteQuality scores HTTPS above a deeper path above the absence of
// tracking query params above length.
func websiteQuality(v string) int {
	score := 0
	u, err := url.Parse(v)
	if err != nil {
		return len(v)
	}
	if u.Scheme == "https" {
		score += 1_000_000
	}
	score += pathDepth(u.Path) * 10_000
	if !hasTrackingParams(u.RawQuery) {
		score += 1_000
	}
	return score + len(v)
}

func pathDepth(path string) int {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return 0
	}
	return len(strings.Split(trimmed, "/"))
}

func hasTrackingParams(rawQuery string) bool {
	for _, pair := range strings.Split(rawQuery, "&") {
		for _, prefix := range trackingParamPrefixes {
			if strings.HasPrefix(pair, prefix) {
				return true
			}
		}
	}
	return false
}
