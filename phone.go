package auth

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const (
	defaultPhoneRegion = "KE"
	kenyaCountryCode   = "254"
	kenyaNumberLength  = 12
	minIntlPhoneDigits = 10
	maxIntlPhoneDigits = 15
)

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")

// NormalizePhone returns the E.164 digits of raw without the leading plus.
// Numbers written with a trunk zero, like 0712345678, are read in region
// (Kenya when empty). Anything else is taken as international digits.
func NormalizePhone(raw, region string) (string, error) {
	trimmed := phoneSeparators.Replace(strings.TrimSpace(raw))
	international := strings.HasPrefix(trimmed, "+")
	digits := strings.TrimPrefix(trimmed, "+")

	if digits == "" || !isDigits(digits) {
		return "", invalidPhone(raw)
	}

	if region == "" {
		region = defaultPhoneRegion
	}

	input := "+" + digits
	if !international && strings.HasPrefix(digits, "0") {
		input = digits
	} else if strings.HasPrefix(digits, kenyaCountryCode) {
		if len(digits) != kenyaNumberLength {
			return "", invalidPhone(raw)
		}
	} else if len(digits) < minIntlPhoneDigits || len(digits) > maxIntlPhoneDigits {
		return "", invalidPhone(raw)
	}

	num, err := phonenumbers.Parse(input, strings.ToUpper(region))
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", invalidPhone(raw)
	}

	return strings.TrimPrefix(phonenumbers.Format(num, phonenumbers.E164), "+"), nil
}
func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func invalidPhone(raw string) error {
	return ErrInvalidPhone.Clone().WithMetadata(map[string]any{"length": len(raw)})
}
