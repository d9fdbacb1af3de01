package types

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const (
	// CoinExponent is the number of decimal places of one DMC.
	CoinExponent = 8

	// UnitsPerCoin is the number of smallest units in 1 DMC (10^8, as satoshis are to BTC).
	UnitsPerCoin int64 = 100_000_000

	// FiatExponent is the number of decimal places of one USD as priced on chain.
	FiatExponent = 3

	// UnitsPerFiat is the number of smallest fiat units in 1 USD (1/1000).
	UnitsPerFiat int64 = 1_000
)

// ErrOverflow is returned when an amount does not fit into 64 bits.
var ErrOverflow = errors.New("amount overflow")

// Coin is an amount of DMC in its smallest unit.
type Coin int64

// Fiat is an amount of USD in thousandths.
type Fiat int64

const (
	OneCoin Coin = Coin(UnitsPerCoin)
	OneFiat Fiat = Fiat(UnitsPerFiat)
	Cent    Fiat = OneFiat / 100
)

// CoinFromUnits wraps a raw amount of smallest units.
func CoinFromUnits(units int64) Coin { return Coin(units) }

// FiatValueOf builds a fiat amount from whole units and cents, e.g.
// FiatValueOf(656, 35) is 656.35 USD.
func FiatValueOf(whole, cents int64) (Fiat, error) {
	w, err := OneFiat.Mul(whole)
	if err != nil {
		return 0, err
	}
	c, err := Cent.Mul(cents)
	if err != nil {
		return 0, err
	}
	return w.Add(c)
}

func (c Coin) Add(o Coin) (Coin, error) { return add(c, o) }
func (c Coin) Sub(o Coin) (Coin, error) { return sub(c, o) }
func (c Coin) Mul(n int64) (Coin, error) {
	v, err := mul(int64(c), n)
	return Coin(v), err
}

// Div truncates toward zero. It panics on a zero divisor like integer division does.
func (c Coin) Div(n int64) Coin { return c / Coin(n) }

func (c Coin) Neg() (Coin, error) { return sub(0, c) }

func (c Coin) Abs() (Coin, error) {
	if c < 0 {
		return c.Neg()
	}
	return c, nil
}

func (c Coin) Cmp(o Coin) int { return cmp(c, o) }
func (c Coin) IsZero() bool { return c == 0 }
func (c Coin) IsPositive() bool { return c > 0 }

// SaturatingAdd adds o, pinning the result to the int64 range instead of failing.
func (c Coin) SaturatingAdd(o Coin) Coin {
	v, err := add(c, o)
	if err != nil {
		if o > 0 {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return v
}

// SaturatingSub subtracts o, pinning the result to the int64 range instead of failing.
func (c Coin) SaturatingSub(o Coin) Coin {
	v, err := sub(c, o)
	if err != nil {
		if o > 0 {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	return v
}

// ClampCoin returns v limited to [lo, hi].
func ClampCoin(v, lo, hi Coin) Coin {
	return max(lo, min(v, hi))
}

// String renders the amount in whole DMC, e.g. "65535" or "0.5".
func (c Coin) String() string {
	return decimal.New(int64(c), -CoinExponent).String()
}

// ParseCoin parses a decimal DMC amount such as "1.25".
func ParseCoin(s string) (Coin, error) {
	v, err := parseUnits(s, CoinExponent)
	return Coin(v), err
}

func (f Fiat) Add(o Fiat) (Fiat, error) { return add(f, o) }
func (f Fiat) Sub(o Fiat) (Fiat, error) { return sub(f, o) }
func (f Fiat) Mul(n int64) (Fiat, error) {
	v, err := mul(int64(f), n)
	return Fiat(v), err
}
func (f Fiat) Div(n int64) Fiat { return f / Fiat(n) }
func (f Fiat) Cmp(o Fiat) int { return cmp(f, o) }
func (f Fiat) IsZero() bool { return f == 0 }
func (f Fiat) IsPositive() bool { return f > 0 }
func (f Fiat) String() string { return decimal.New(int64(f), -FiatExponent).String() }

// ParseFiat parses a decimal USD amount such as "1.01".
func ParseFiat(s string) (Fiat, error) {
	v, err := parseUnits(s, FiatExponent)
	return Fiat(v), err
}

func add[T ~int64](a, b T) (T, error) {
	s := a + b
	if (s > a) != (b > 0) {
		return 0, ErrOverflow
	}
	return s, nil
}

func sub[T ~int64](a, b T) (T, error) {
	d := a - b
	if (d < a) != (b > 0) {
		return 0, ErrOverflow
	}
	return d, nil
}

func mul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, ErrOverflow
	}
	c := a * b
	if c/b != a {
		return 0, ErrOverflow
	}
	return c, nil
}

func cmp[T ~int64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func parseUnits(s string, exp int32) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	d = d.Shift(exp)
	if !d.IsInteger() {
		return 0, fmt.Errorf("invalid amount %q: more than %d decimal places", s, exp)
	}
	b := d.BigInt()
	if !b.IsInt64() {
		return 0, fmt.Errorf("%w: %s", ErrOverflow, s)
	}
	return b.Int64(), nil
}
