// Package settlement implements the fee-adjusted parimutuel payout
// calculation for resolved markets.
//
// The model is a shared-pool (parimutuel) distribution:
//   - The platform fee is taken off the entire market pool, all outcomes
//     combined, as an integer percentage with floor division.
//   - The remainder is split among winning positions pro rata to their stake
//     on the winning outcome, again with floor division.
//
// All monetary values are uint64 token base units — never float64 for money.
// Every addition, subtraction, multiplication and division is checked: the
// pro-rata product is computed in a 128-bit intermediate via math/bits, and
// any overflow or negative-result condition aborts with ErrMathOverflow
// rather than wrapping or truncating.
package settlement

import (
	"errors"
	"math/bits"
)

var (
	// ErrMathOverflow is returned when a checked arithmetic step would
	// overflow, wrap, or produce a quotient that does not fit in uint64.
	ErrMathOverflow = errors.New("settlement: math overflow")

	// ErrInsufficientLiquidity is returned when the winning outcome carries
	// zero stake, which would otherwise divide by zero.
	ErrInsufficientLiquidity = errors.New("settlement: winning outcome has no stake")

	// ErrInvalidFee is returned for fee percentages outside 0–100.
	ErrInvalidFee = errors.New("settlement: fee percentage must be 0–100")
)

// Add returns a + b, failing with ErrMathOverflow instead of wrapping.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrMathOverflow
	}
	return sum, nil
}

// Sub returns a - b, failing with ErrMathOverflow on underflow.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrMathOverflow
	}
	return diff, nil
}

// mulDiv returns floor(a * b / den) with the product held in 128 bits so the
// intermediate never overflows. Fails if den is zero or the quotient exceeds
// 64 bits.
func mulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrMathOverflow
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		// bits.Div64 panics when the quotient overflows.
		return 0, ErrMathOverflow
	}
	q, _ := bits.Div64(hi, lo, den)
	return q, nil
}

// Fee returns floor(totalPool * feePercent / 100), the platform's cut of the
// whole market pool.
func Fee(totalPool uint64, feePercent uint8) (uint64, error) {
	if feePercent > 100 {
		return 0, ErrInvalidFee
	}
	return mulDiv(totalPool, uint64(feePercent), 100)
}

// Payout computes the amount owed to a single winning position.
//
//	fee          = floor(totalPool * feePercent / 100)
//	distributable = totalPool - fee
//	payout       = floor(stake * distributable / outcomeStaked)
//
// totalPool is the market's whole pool (all outcomes), outcomeStaked the
// aggregate stake on the winning outcome, and stake the position's amount.
func Payout(totalPool uint64, feePercent uint8, stake, outcomeStaked uint64) (uint64, error) {
	if outcomeStaked == 0 {
		return 0, ErrInsufficientLiquidity
	}

	fee, err := Fee(totalPool, feePercent)
	if err != nil {
		return 0, err
	}

	distributable, err := Sub(totalPool, fee)
	if err != nil {
		return 0, err
	}

	return mulDiv(stake, distributable, outcomeStaked)
}
