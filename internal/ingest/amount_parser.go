package ingest

import (
	"regexp"
	"strconv"
	"strings"
)

var amountNumberRegex = regexp.MustCompile(`[\d,\.]+(?:\.\d{2})?`)

// ParseAmount extracts min/max award amounts and a currency code from
// free text. Listings rarely publish a clean number: "up to $500,000",
// "$50,000 - $250,000", and "awards of at least 25,000 USD" all occur.
// Returns zeros when no number can be recovered.
func ParseAmount(text string, defaultCurrency string) (float64, float64, string) {
	textLower := strings.ToLower(text)

	currency := defaultCurrency
	if currency == "" {
		currency = "USD"
	}
	switch {
	case strings.Contains(textLower, "£") || strings.Contains(textLower, "gbp") || strings.Contains(textLower, "pound"):
		currency = "GBP"
	case strings.Contains(textLower, "€") || strings.Contains(textLower, "eur") || strings.Contains(textLower, "euro"):
		currency = "EUR"
	case strings.Contains(textLower, "$") || strings.Contains(textLower, "usd") || strings.Contains(textLower, "dollar"):
		currency = "USD"
	}

	// Handles 1,000,000 / 1.000.000 / 1000000 / 1,000.50
	var amounts []float64
	for _, m := range amountNumberRegex.FindAllString(text, -1) {
		clean := strings.ReplaceAll(m, ",", "")
		if val, err := strconv.ParseFloat(clean, 64); err == nil && val > 0 {
			amounts = append(amounts, val)
			continue
		}
		// European thousands separator
		clean = strings.ReplaceAll(m, ".", "")
		if val, err := strconv.ParseFloat(clean, 64); err == nil && val > 0 {
			amounts = append(amounts, val)
		}
	}

	if len(amounts) == 0 {
		return 0, 0, ""
	}

	if len(amounts) == 1 {
		if strings.Contains(textLower, "minimum") || strings.Contains(textLower, "at least") {
			return amounts[0], 0, currency
		}
		// "up to", "maximum", or a bare figure all read as a ceiling.
		return 0, amounts[0], currency
	}

	min, max := amounts[0], amounts[0]
	for _, a := range amounts {
		if a < min {
			min = a
		}
		if a > max {
			max = a
		}
	}
	if min == max {
		return 0, max, currency
	}
	return min, max, currency
}
