package sanalpos_soap

// DetectCardBrand returns the card brand name based on the card number (BIN/IIN).
// Returns: "visa", "mastercard", "amex", "troy", or "" if unknown.
func DetectCardBrand(number string) string {
	if len(number) < 1 {
		return ""
	}

	// Visa: starts with 4
	if number[0] == '4' {
		return "visa"
	}

	// Amex: starts with 34 or 37
	if len(number) >= 2 {
		p2 := number[:2]
		if p2 == "34" || p2 == "37" {
			return "amex"
		}
	}

	// Mastercard: 51-55 or 2221-2720
	if len(number) >= 2 {
		p2 := number[:2]
		if p2 >= "51" && p2 <= "55" {
			return "mastercard"
		}
		if len(number) >= 4 {
			p4 := number[:4]
			if p4 >= "2221" && p4 <= "2720" {
				return "mastercard"
			}
		}
	}

	// Troy (domestic scheme): 9792
	if len(number) >= 4 && number[:4] == "9792" {
		return "troy"
	}

	return ""
}

// luhnValid reports whether number passes the Luhn checksum. Non-digit input
// fails the check.
func luhnValid(number string) bool {
	if number == "" {
		return false
	}
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// maskCard keeps the first six and last four digits of a card number and
// blanks the rest. Used everywhere a PAN could reach a log line.
func maskCard(number string) string {
	if len(number) < 10 {
		return "****"
	}
	masked := []byte(number)
	for i := 6; i < len(masked)-4; i++ {
		masked[i] = '*'
	}
	return string(masked)
}
