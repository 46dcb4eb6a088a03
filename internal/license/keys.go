package license

import "strings"

// MaskLicenseKey keeps the first and last four characters of a key.
func MaskLicenseKey(key string) string {
	key = strings.TrimSpace(key)
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
