package logger

import (
	"regexp"
	"strings"
)

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactField(key, val string) string {
	if strings.Contains(key, "email") || strings.Contains(key, "contact") {
		return MaskEmail(val)
	}
	if strings.Contains(key, "phone") || strings.Contains(key, "msisdn") {
		return MaskPhone(val)
	}
	return emailRe.ReplaceAllStringFunc(val, MaskEmail)
}

// MaskEmail keeps the first two characters of the local part and the domain.
// "maria.silva@example.com" becomes "ma***@example.com".
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at < 0 {
		return "***@***"
	}
	local, domain := email[:at], email[at+1:]
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}

// MaskPhone keeps only the last four digits.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
