package pricing

import (
	"strconv"
	"strings"
)

var currencySymbols = map[string]string{
	"usd": "$",
	"eur": "€",
	"gbp": "£",
}

// FormatPrice renders minor units for display: "$1,234.50", or "12.00 CAD"
// for currencies without a known symbol. An empty currency means usd.
func FormatPrice(cents int64, currency string) string {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = "usd"
	}

	negative := cents < 0
	abs := uint64(cents)
	if negative {
		abs = uint64(-(cents + 1)) + 1
	}

	amount := groupThousands(strconv.FormatUint(abs/100, 10)) + "." + twoDigits(abs%100)

	sign := ""
	if negative {
		sign = "-"
	}
	if symbol, ok := currencySymbols[currency]; ok {
		return sign + symbol + amount
	}
	return sign + amount + " " + strings.ToUpper(currency)
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func twoDigits(n uint64) string {
	if n < 10 {
		return "0" + strconv.FormatUint(n, 10)
	}
	return strconv.FormatUint(n, 10)
}
