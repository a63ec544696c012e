package helper

import (
	"errors"
	"regexp"
	"strings"
)

// Suffixes WhatsApp uses on the wire. A raw recipient may already carry one;
// the digits before it get normalized, the suffix is kept verbatim.
const (
	UserSuffix  = "@s.whatsapp.net"
	GroupSuffix = "@g.us"
)

var ErrInvalidAddress = errors.New("invalid recipient address")

var nonDigit = regexp.MustCompile(`[^\d]`)

// NormalizePhone converts a raw user-entered phone string into the canonical
// recipient address: digits only (plus the original network suffix, if the
// input carried one), never a leading +.
//
// A common data-entry mistake is keeping the domestic leading zero after the
// country code ("+212 0655..."). The zero is stripped when it sits right
// after a plausible country calling code. Code lengths are tried longest
// first (3, then 2, then 1) so a longer code is never misread as a shorter
// one; the first hypothesis producing 7-15 total digits wins.
//
// Group identifiers are not phone numbers, so group addresses only get
// digit-stripping, never zero correction.
func NormalizePhone(raw string) (string, error) {
	number := raw
	suffix := ""
	for _, s := range []string{UserSuffix, GroupSuffix} {
		if strings.HasSuffix(raw, s) {
			number = strings.TrimSuffix(raw, s)
			suffix = s
			break
		}
	}

	digits := nonDigit.ReplaceAllString(number, "")
	if len(digits) < 8 {
		return "", ErrInvalidAddress
	}

	if suffix != GroupSuffix {
		digits = stripSpuriousZero(digits)
	}

	return digits + suffix, nil
}

// stripSpuriousZero drops a leading zero that follows an assumed country
// calling code. Returns the input unchanged when no hypothesis fits.
func stripSpuriousZero(digits string) string {
	for _, codeLen := range []int{3, 2, 1} {
		if len(digits) <= codeLen || digits[codeLen] != '0' {
			continue
		}
		candidate := digits[:codeLen] + digits[codeLen+1:]
		if len(candidate) >= 7 && len(candidate) <= 15 {
			return candidate
		}
	}
	return digits
}

// IsGroupAddress reports whether a canonical address targets a group.
func IsGroupAddress(addr string) bool {
	return strings.HasSuffix(addr, GroupSuffix)
}
