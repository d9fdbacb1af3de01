package types

import (
	"errors"
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

// ErrInvalidRate is returned for exchange rates with a non-positive side.
var ErrInvalidRate = errors.New("exchange rate amounts must be positive")

// ExchangeRate states that Coin is worth Fiat.
type ExchangeRate struct {
	Coin Coin
	Fiat Fiat
}

// NewExchangeRate constructs a rate where coin DMC is worth fiat USD.
func NewExchangeRate(coin Coin, fiat Fiat) (ExchangeRate, error) {
	if coin <= 0 || fiat <= 0 {
		return ExchangeRate{}, fmt.Errorf("%w: %s DMC = %s USD", ErrInvalidRate, coin, fiat)
	}
	return ExchangeRate{Coin: coin, Fiat: fiat}, nil
}

// NewFiatPerCoin constructs a rate where one DMC is worth fiat USD.
func NewFiatPerCoin(fiat Fiat) (ExchangeRate, error) {
	return NewExchangeRate(OneCoin, fiat)
}

// ToFiat converts a coin amount to fiat at this rate.
func (r ExchangeRate) ToFiat(c Coin) (Fiat, error) {
	v, err := mulDiv(int64(c), int64(r.Fiat), int64(r.Coin))
	return Fiat(v), err
}

// ToCoin converts a fiat amount to coin at this rate.
func (r ExchangeRate) ToCoin(f Fiat) (Coin, error) {
	v, err := mulDiv(int64(f), int64(r.Coin), int64(r.Fiat))
	return Coin(v), err
}

// mulDiv computes x*y/d truncated toward zero. The product is formed in 256
// bits so only the final quotient is range checked.
func mulDiv(x, y, d int64) (int64, error) {
	if d == 0 {
		return 0, ErrInvalidRate
	}
	neg := (x < 0) != (y < 0) != (d < 0)
	q, overflow := new(uint256.Int).MulDivOverflow(
		uint256.NewInt(absUint(x)), uint256.NewInt(absUint(y)), uint256.NewInt(absUint(d)))
	if overflow || !q.IsUint64() {
		return 0, ErrOverflow
	}
	u := q.Uint64()
	if neg {
		if u > 1<<63 {
			return 0, ErrOverflow
		}
		return int64(-u), nil
	}
	if u > math.MaxInt64 {
		return 0, ErrOverflow
	}
	return int64(u), nil
}

func absUint(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}
