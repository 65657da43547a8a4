// Package validation checks inbound location queries before they reach the
// coordinator. Free text is bounded and restricted to characters that occur
// in place names and postal codes; coordinates must be finite and in range.
package validation

import (
	"errors"
	"math"
	"strings"
	"unicode"
)

var (
	ErrLocationEmpty        = errors.New("location is required")
	ErrLocationTooShort     = errors.New("location too short")
	ErrLocationTooLong      = errors.New("location too long")
	ErrLocationInvalidChars = errors.New("location contains invalid characters")

	ErrLatitudeOutOfRange  = errors.New("latitude must be within [-90, 90]")
	ErrLongitudeOutOfRange = errors.New("longitude must be within [-180, 180]")
)

// ValidateLocation trims the input, enforces length bounds (minLen, maxLen in runes),
// and restricts to letters (Unicode), digits, space and the punctuation found in
// place names: comma, hyphen, period, apostrophe.
// Returns the trimmed string or an error suitable for 400 INVALID_LOCATION responses.
func ValidateLocation(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrLocationEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrLocationTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrLocationTooLong
	}
	for _, c := range r {
		if !isAllowedLocationRune(c) {
			return "", ErrLocationInvalidChars
		}
	}
	return s, nil
}

func isAllowedLocationRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}

// ValidateCoordinates rejects NaN, infinities and out-of-range values.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return ErrLatitudeOutOfRange
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return ErrLongitudeOutOfRange
	}
	return nil
}
