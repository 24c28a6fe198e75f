package services

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Numbers without a country code are read as US numbers.
const defaultPhoneRegion = "US"

// NormalizePhone converts user input to E.164. Only numbers that are valid
// for their region are accepted.
func NormalizePhone(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	num, err := phonenumbers.Parse(raw, defaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", false
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}
