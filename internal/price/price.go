// Package price turns raw scraped price tokens into display and numeric form.
package price

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const currencyMarker = "$"

var printer = message.NewPrinter(language.English)

func digits(raw string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
}

// Parse returns the integer value of every digit in raw read as one number.
// "$1.299.000" and "1,299,000 COP" both parse to 1299000.
func Parse(raw string) (uint64, bool) {
	d := digits(raw)
	if d == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(d, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Format renders raw as "$1,299,000". Input without digits, or whose digits
// do not fit an unsigned 64-bit integer, is returned unchanged.
func Format(raw string) string {
	n, ok := Parse(raw)
	if !ok {
		return raw
	}
	return currencyMarker + printer.Sprintf("%d", n)
}
