package services

import "strings"

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"CNY": "¥",
	"INR": "₹",
	"AUD": "A$",
	"CAD": "C$",
	"CHF": "CHF",
	"NGN": "₦",
	"ZAR": "R",
	"BRL": "R$",
	"KRW": "₩",
	"MXN": "MX$",
	"SGD": "S$",
}

// CurrencySymbol returns the display symbol of an ISO 4217 code.
func CurrencySymbol(code string) (string, bool) {
	symbol, ok := currencySymbols[strings.ToUpper(strings.TrimSpace(code))]
	return symbol, ok
}
