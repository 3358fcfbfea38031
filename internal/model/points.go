package model

import "strings"

// defaultPointValue is the divisor applied to raw packed integer prices for
// most symbols.
const defaultPointValue = 100000

// reducedPointSymbols use a 1000 point value instead of the default
// 100000: precious metals quoted in smaller increments and the rouble pair.
var reducedPointSymbols = map[string]struct{}{
	"usdrub": {},
	"xagusd": {},
	"xauusd": {},
	"xaugbp": {},
	"xaueur": {},
	"xageur": {},
	"xaggbp": {},
}

// PointValue returns the per-symbol divisor used to convert an archive raw
// integer price into a decimal price.
func PointValue(symbol string) int64 {
	if _, ok := reducedPointSymbols[strings.ToLower(symbol)]; ok {
		return 1000
	}
	return defaultPointValue
}
