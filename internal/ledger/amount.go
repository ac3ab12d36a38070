package ledger

import (
	"fmt"
	"math"
	"math/big"
)

// Token amounts are arbitrary-precision integers in base units (wei-like,
// 1e18 per whole token). Scaling by a float multiplier goes through a
// fixed-point integer scheme so repeated scaling never drifts: multiply
// by round(mult*1000), then integer-divide by 1000.
const scaleDenom = 1000

// ParseAmount parses a non-negative decimal base-unit amount.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	a, ok := new(big.Int).SetString(s, 10)
	if !ok || a.Sign() < 0 {
		return nil, fmt.Errorf("bad token amount %q", s)
	}
	return a, nil
}

func FormatAmount(a *big.Int) string {
	if a == nil {
		return "0"
	}
	return a.String()
}

// Scale returns a * round(mult*1000) / 1000 without mutating a.
func Scale(a *big.Int, mult float64) *big.Int {
	if a == nil || a.Sign() == 0 {
		return big.NewInt(0)
	}
	num := big.NewInt(int64(math.Round(mult * scaleDenom)))
	out := new(big.Int).Mul(a, num)
	return out.Quo(out, big.NewInt(scaleDenom))
}
