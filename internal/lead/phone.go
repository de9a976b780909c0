package lead

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse numbers written without a country code.
const DefaultPhoneRegion = "US"

// normalizePhone renders raw in E.164 when it parses as a valid number for
// region and returns it trimmed but otherwise untouched when it does not.
func normalizePhone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

func normalizePhonePtr(v *string, region string) *string {
	if v == nil {
		return nil
	}
	n := normalizePhone(*v, region)
	return &n
}
