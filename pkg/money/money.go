package money

import (
	"errors"
	"fmt"
)

// Cents is a monetary amount in minor currency units. All arithmetic in the
// service is integer arithmetic over this type so group totals reconcile
// exactly, with no floating-point drift.
type Cents int64

var ErrNegativeAmount = errors.New("amount cannot be negative")

// String formats the amount as a decimal string, e.g. 3334 -> "33.34".
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// SplitEven divides total into n shares that sum to total exactly. The
// remainder cents go to the earliest shares, so for 100.00 over 3 the result
// is [33.34, 33.33, 33.33].
func SplitEven(total Cents, n int) ([]Cents, error) {
	if n <= 0 {
		return nil, errors.New("share count must be positive")
	}
	if total < 0 {
		return nil, ErrNegativeAmount
	}

	base := total / Cents(n)
	remainder := total % Cents(n)

	shares := make([]Cents, n)
	for i := range shares {
		shares[i] = base
		if Cents(i) < remainder {
			shares[i]++
		}
	}
	return shares, nil
}

// Allocate divides total proportionally to the given weights, summing to
// total exactly. Each share is floored to whole cents first and the leftover
// cents are handed out one each to the earliest shares. All-zero weights fall
// back to an even split.
func Allocate(total Cents, weights []Cents) ([]Cents, error) {
	if len(weights) == 0 {
		return nil, errors.New("at least one weight is required")
	}
	if total < 0 {
		return nil, ErrNegativeAmount
	}

	var sum Cents
	for _, w := range weights {
		if w < 0 {
			return nil, ErrNegativeAmount
		}
		sum += w
	}
	if sum == 0 {
		return SplitEven(total, len(weights))
	}

	shares := make([]Cents, len(weights))
	var allocated Cents
	for i, w := range weights {
		shares[i] = total * w / sum
		allocated += shares[i]
	}

	// Leftover from flooring is at most len(weights)-1 cents.
	leftover := total - allocated
	for i := 0; leftover > 0; i++ {
		shares[i]++
		leftover--
	}
	return shares, nil
}

// Percent returns amount scaled by the given basis points, rounded half up.
// Used for tax computation: Percent(10000, 825) == 825.
func Percent(amount Cents, basisPoints int) Cents {
	if amount <= 0 || basisPoints <= 0 {
		return 0
	}
	return (amount*Cents(basisPoints) + 5000) / 10000
}

// Sum adds up a slice of amounts.
func Sum(amounts []Cents) Cents {
	var total Cents
	for _, a := range amounts {
		total += a
	}
	return total
}
