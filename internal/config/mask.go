package config

import "strings"

// MaskedFields are overlay keys whose values are secrets and leave the
// process only in masked form.
var MaskedFields = []string{"API_HASH", "OPENAI_API_KEY", "TELEGRAM_BOT_TOKEN", "YANDEX_OAUTH_TOKEN"}

// MaskValue hides a secret, keeping the first and last four characters of
// long values for recognition.
func MaskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + "****" + value[len(value)-4:]
}

// IsMasked reports whether a submitted value is a masked placeholder, i.e.
// the operator saved the form without changing the secret.
func IsMasked(value string) bool {
	return value != "" && strings.Contains(value, "****")
}
