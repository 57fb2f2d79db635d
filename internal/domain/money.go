package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// Amount is a fixed-point monetary or quantity value scaled by 10^8.
// All prices, quantities, costs, fees and PnL figures in the system use
// this representation so that reconstruction is deterministic and free
// of floating-point drift.
type Amount int64

// AmountScale is the fixed-point denominator (10^8).
const AmountScale = 100_000_000

// AmountFromInt converts a whole number of units into an Amount.
func AmountFromInt(n int64) Amount {
	return Amount(n * AmountScale)
}

// ParseAmount parses a decimal string (e.g. "0.5", "-123.45600000") into
// an Amount. At most eight fractional digits are accepted.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return 0, fmt.Errorf("invalid amount: sign only")
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" && fracPart == "" {
		return 0, fmt.Errorf("invalid amount: %q", s)
	}
	if len(fracPart) > 8 {
		return 0, fmt.Errorf("invalid amount %q: more than 8 fractional digits", s)
	}

	var n int64
	for _, c := range intPart {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid amount: %q", s)
		}
		n = n*10 + int64(c-'0')
		if n > (1<<62)/AmountScale {
			return 0, fmt.Errorf("amount out of range: %q", s)
		}
	}
	n *= AmountScale

	frac := int64(0)
	for _, c := range fracPart {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid amount: %q", s)
		}
		frac = frac*10 + int64(c-'0')
	}
	for i := len(fracPart); i < 8; i++ {
		frac *= 10
	}
	n += frac

	if neg {
		n = -n
	}
	return Amount(n), nil
}

// String formats the amount as a decimal string with trailing zeros trimmed.
func (a Amount) String() string {
	n := int64(a)
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	whole := n / AmountScale
	frac := n % AmountScale
	if frac == 0 {
		return fmt.Sprintf("%s%d", sign, whole)
	}
	fracStr := strings.TrimRight(fmt.Sprintf("%08d", frac), "0")
	return fmt.Sprintf("%s%d.%s", sign, whole, fracStr)
}

// MarshalJSON encodes the amount as a decimal string, matching the
// ingest boundary format.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts either a decimal string or a bare JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Mul multiplies two fixed-point amounts (e.g. price * quantity) using a
// 128-bit intermediate so large notionals do not overflow.
func (a Amount) Mul(b Amount) Amount {
	return mulDiv(a, b, AmountScale)
}

// Div divides a by b in fixed-point.
func (a Amount) Div(b Amount) Amount {
	return mulDiv(a, AmountScale, int64(b))
}

// Abs returns the magnitude of the amount.
func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

// Float64 converts to float64. Display-only ratios; never fed back into
// reconstruction arithmetic.
func (a Amount) Float64() float64 {
	return float64(a) / AmountScale
}

// WeightedAvg returns (p1*q1 + p2*q2) / (q1+q2) computed without
// intermediate overflow. q1+q2 must be non-zero.
func WeightedAvg(p1, q1, p2, q2 Amount) Amount {
	num := new(big.Int).Mul(big.NewInt(int64(p1)), big.NewInt(int64(q1)))
	num.Add(num, new(big.Int).Mul(big.NewInt(int64(p2)), big.NewInt(int64(q2))))
	den := big.NewInt(int64(q1) + int64(q2))
	num.Quo(num, den)
	return Amount(num.Int64())
}

// SplitProportion returns x scaled by part/total, truncating toward
// zero. Callers assign the remainder (x minus the returned share) to the
// other side so splits stay lossless.
func SplitProportion(x, part, total Amount) Amount {
	if total == 0 {
		return 0
	}
	return mulDiv(x, part, int64(total))
}

func mulDiv(a, b Amount, den int64) Amount {
	r := new(big.Int).Mul(big.NewInt(int64(a)), big.NewInt(int64(b)))
	r.Quo(r, big.NewInt(den))
	return Amount(r.Int64())
}
