package ledger

import (
	"fmt"
	"sort"
)

// Composition maps ticker to shares held. Quantities keep full precision; use
// Format to surface them.
type Composition map[string]float64

// Tickers returns the tickers of the composition, sorted.
func (c Composition) Tickers() []string {
	out := make([]string, 0, len(c))
	for t := range c {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Format renders every quantity with three decimals.
func (c Composition) Format() map[string]string {
	out := make(map[string]string, len(c))
	for t, s := range c {
		out[t] = FormatShares(s)
	}
	return out
}

// FormatShares renders a share quantity with three decimals.
func FormatShares(shares float64) string {
	return fmt.Sprintf("%.3f", shares)
}
