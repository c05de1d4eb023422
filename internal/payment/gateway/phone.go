package gateway

import (
	"regexp"
	"strings"

	apperrors "foodmarket/internal/errors"
)

const DefaultCountryCode = "242"

// numberingPlan describes the national significant number of a country.
type numberingPlan struct {
	local  *regexp.Regexp
	length int
}

var numberingPlans = map[string]numberingPlan{
	"237": {regexp.MustCompile(`^[67]\d{8}$`), 9},
	"225": {regexp.MustCompile(`^\d{10}$`), 10},
	"243": {regexp.MustCompile(`^[89]\d{8}$`), 9},
	"242": {regexp.MustCompile(`^\d{9}$`), 9},
}

var fallbackPhonePattern = regexp.MustCompile(`^\d{9,15}$`)

// NormalizePhone validates raw against the numbering plan of countryCode and
// returns it as an MSISDN carrying the country prefix. A local number that
// happens to start with the country digits is still treated as local.
func NormalizePhone(raw, countryCode string) (string, error) {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}

	cleaned := strings.Join(strings.Fields(raw), "")
	cleaned = strings.TrimPrefix(cleaned, "+")

	plan, ok := numberingPlans[countryCode]
	if !ok {
		if !fallbackPhonePattern.MatchString(cleaned) {
			return "", invalidPhone(countryCode)
		}
		if !strings.HasPrefix(cleaned, countryCode) {
			cleaned = countryCode + cleaned
		}
		return cleaned, nil
	}

	local := cleaned
	if len(cleaned) == len(countryCode)+plan.length && strings.HasPrefix(cleaned, countryCode) {
		local = cleaned[len(countryCode):]
	}
	if !plan.local.MatchString(local) {
		return "", invalidPhone(countryCode)
	}
	return countryCode + local, nil
}

func invalidPhone(countryCode string) error {
	return apperrors.NewValidationError("invalid phone number", apperrors.ValidationDetail{
		Field:   "phoneNumber",
		Message: "phone number does not match the expected format for country code " + countryCode,
	})
}
