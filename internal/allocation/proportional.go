package allocation

import "github.com/shopspring/decimal"

// Distribute splits amount across weights in proportion to each weight.
//
// Shares are truncated to cents and the last positive weight receives
// whatever is left, so the shares always add up to amount exactly and no
// share is negative. When the weights add up to zero, or amount is not
// positive, every share is zero and the amount stays unallocated.
func Distribute(amount decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(weights))
	for i := range shares {
		shares[i] = decimal.Zero
	}
	if !amount.IsPositive() {
		return shares
	}

	total := decimal.Zero
	last := -1
	for i, w := range weights {
		if w.IsPositive() {
			total = total.Add(w)
			last = i
		}
	}
	if last < 0 {
		return shares
	}

	remaining := amount
	for i, w := range weights {
		if !w.IsPositive() {
			continue
		}
		if i == last {
			shares[i] = remaining
			break
		}
		share := amount.Mul(w).Div(total).Truncate(2)
		shares[i] = share
		remaining = remaining.Sub(share)
	}
	return shares
}
