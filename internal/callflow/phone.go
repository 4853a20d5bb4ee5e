package callflow

import (
	"fmt"
	"regexp"
	"strings"
)

// PhonePolicy normalizes lead numbers to <CountryCode><NationalDigits digits>.
type PhonePolicy struct {
	CountryCode    string
	NationalDigits int
}

func (p PhonePolicy) withDefaults() PhonePolicy {
	out := p
	if out.CountryCode == "" {
		out.CountryCode = "+1"
	}
	if !strings.HasPrefix(out.CountryCode, "+") {
		out.CountryCode = "+" + out.CountryCode
	}
	if out.NationalDigits <= 0 {
		out.NationalDigits = 10
	}
	return out
}

var phoneFormatting = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "", "\t", "")

// Normalize strips formatting, prepends the country code when the number has
// no leading '+', and checks the result against the national format.
func (p PhonePolicy) Normalize(raw string) (string, error) {
	p = p.withDefaults()

	n := phoneFormatting.Replace(strings.TrimSpace(raw))
	if n == "" {
		return "", &phoneError{raw: raw, reason: "empty"}
	}
	if !strings.HasPrefix(n, "+") {
		cc := strings.TrimPrefix(p.CountryCode, "+")
		if len(n) == len(cc)+p.NationalDigits && strings.HasPrefix(n, cc) {
			n = "+" + n
		} else {
			n = p.CountryCode + n
		}
	}
	if !p.pattern().MatchString(n) {
		return "", &phoneError{raw: raw, reason: fmt.Sprintf("want %s followed by %d digits", p.CountryCode, p.NationalDigits)}
	}
	return n, nil
}

func (p PhonePolicy) pattern() *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`^%s\d{%d}$`, regexp.QuoteMeta(p.CountryCode), p.NationalDigits))
}

// phoneError matches ErrInvalidPhoneNumber without repeating its text, so
// callers that wrap it under that kind print the sentinel once.
type phoneError struct {
	raw    string
	reason string
}

func (e *phoneError) Error() string {
	return fmt.Sprintf("phone %q: %s", e.raw, e.reason)
}

func (e *phoneError) Is(target error) bool { return target == ErrInvalidPhoneNumber }
