package shared

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.MustParse("es-MX"))

// FormatMoney renders an amount with thousands separators and two decimals,
// e.g. $1,234.50.
func FormatMoney(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	return sign + "$" + moneyPrinter.Sprintf("%.2f", d.Round(2).InexactFloat64())
}
