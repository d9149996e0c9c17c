package eventmodels

import "strings"

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyJPY Currency = "JPY"
)

func (c Currency) String() string {
	return strings.ToUpper(string(c))
}

func NewCurrency(s string) Currency {
	return Currency(strings.ToUpper(s))
}
