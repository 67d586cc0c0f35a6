package policy

import (
	"regexp"
	"unicode/utf8"
)

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern  = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern   = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	bearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9\-._~+/]+=*`)
	otpPattern    = regexp.MustCompile(`(?i)\b(otp|pin|password|passcode)\b\s*[:=]?\s*\S+`)
)

// RedactPII masks common high-risk PII patterns. Incident reports routinely quote
// phishing messages, so OTPs and passwords are masked along with contact details.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	for _, r := range []struct {
		re   *regexp.Regexp
		mask string
	}{
		{bearerPattern, "[REDACTED_TOKEN]"},
		{otpPattern, "[REDACTED_SECRET]"},
		{emailPattern, "[REDACTED_EMAIL]"},
		// Card before phone so card numbers are not classified as phone numbers.
		{cardPattern, "[REDACTED_CARD]"},
		{phonePattern, "[REDACTED_PHONE]"},
	} {
		next := r.re.ReplaceAllString(out, r.mask)
		changed = changed || next != out
		out = next
	}

	return out, changed
}

// LogPreview redacts input and truncates it to at most maxRunes runes for log fields.
func LogPreview(input string, maxRunes int) string {
	out, _ := RedactPII(input)
	if maxRunes <= 0 || utf8.RuneCountInString(out) <= maxRunes {
		return out
	}
	runes := []rune(out)
	return string(runes[:maxRunes]) + "…"
}
