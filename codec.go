package sanalpos_soap

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// The gateway expresses amounts as decimal strings with "." as the thousands
// separator and "," as the decimal separator, always with exactly two decimal
// digits: 1250.75 is sent as "1.250,75". Anything else is rejected outright,
// never coerced.

var (
	amountPattern = regexp.MustCompile(`^\d{1,3}(\.\d{3})*,\d{2}$`)
	phonePattern  = regexp.MustCompile(`^[1-9]\d{9}$`)
)

// queryTimeLayout is the timestamp format used by the query and reporting
// operations. Settlement rows carry the date part alone.
const (
	queryTimeLayout = "02.01.2006 15:04:05"
	queryDateLayout = "02.01.2006"
)

// encodeAmount renders an amount in the gateway's decimal-string convention.
func encodeAmount(d decimal.Decimal) string {
	fixed := d.StringFixed(2) // "1250.75"
	intPart, fracPart, _ := strings.Cut(fixed, ".")

	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	b.WriteByte(',')
	b.WriteString(fracPart)
	return b.String()
}

// decodeAmount parses a gateway amount string. Inputs that do not match the
// exact convention are an error, even when a looser parse could guess a value.
func decodeAmount(s string) (decimal.Decimal, error) {
	if !amountPattern.MatchString(s) {
		return decimal.Decimal{}, fmt.Errorf("malformed amount %q", s)
	}
	normalized := strings.ReplaceAll(s, ".", "")
	normalized = strings.Replace(normalized, ",", ".", 1)
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("malformed amount %q: %w", s, err)
	}
	return d, nil
}

// validPhone reports whether s is a 10-digit phone number without a leading
// zero, the only shape the gateway accepts.
func validPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// encodeQueryTime renders a timestamp for query and reporting operations.
func encodeQueryTime(t time.Time) string {
	return t.Format(queryTimeLayout)
}

// decodeQueryTime parses a gateway timestamp.
func decodeQueryTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(queryTimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp %q: %w", s, err)
	}
	return t, nil
}

// decodeQueryDate parses a date-only gateway value.
func decodeQueryDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(queryDateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed date %q: %w", s, err)
	}
	return t, nil
}
