package allocation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decs(ss ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(ss))
	for i, s := range ss {
		out[i] = dec(s)
	}
	return out
}

func assertDecimals(t *testing.T, want []string, got []decimal.Decimal) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Truef(t, got[i].Equal(dec(want[i])), "share %d: want %s, got %s", i, want[i], got[i])
	}
}

func TestDistribute(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		weights []string
		want    []string
	}{
		{"proportional to targets", "84", []string{"300", "700"}, []string{"25.2", "58.8"}},
		{"single goal takes all", "36", []string{"120"}, []string{"36"}},
		{"thirds keep every cent", "100", []string{"1", "1", "1"}, []string{"33.33", "33.33", "33.34"}},
		{"zero targets leave bucket unallocated", "50", []string{"0", "0"}, []string{"0", "0"}},
		{"zero amount", "0", []string{"10", "20"}, []string{"0", "0"}},
		{"zero weight goal gets nothing", "10", []string{"5", "0"}, []string{"10", "0"}},
		{"no goals", "10", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distribute(dec(tt.amount), decs(tt.weights...))
			assertDecimals(t, tt.want, got)
		})
	}
}

func TestDistributeConservesAmount(t *testing.T) {
	sets := [][]string{
		{"1", "2", "3", "4"},
		{"999.99", "0.01"},
		{"7", "13", "17", "19", "23"},
		{"250", "250", "500"},
		{"0.5", "1000000"},
	}
	amounts := []string{"0.01", "1", "84", "123.45", "10000.07"}

	for _, ws := range sets {
		weights := decs(ws...)
		total := decimal.Zero
		for _, w := range weights {
			total = total.Add(w)
		}
		for _, a := range amounts {
			amount := dec(a)
			shares := Distribute(amount, weights)

			sum := decimal.Zero
			for i, s := range shares {
				assert.False(t, s.IsNegative(), "negative share %s for %v/%s", s, ws, a)
				sum = sum.Add(s)

				// Each share is within one cent per goal of its exact proportion.
				exact := amount.Mul(weights[i]).Div(total)
				tolerance := decimal.New(int64(len(weights)), -2)
				assert.True(t, s.Sub(exact).Abs().LessThanOrEqual(tolerance),
					"share %s too far from %s", s, exact)
			}
			assert.Truef(t, sum.Equal(amount), "shares of %s sum to %s for %v", a, sum, ws)
		}
	}
}

func TestDistributeKeepsRatio(t *testing.T) {
	shares := Distribute(dec("1000"), decs("100", "300", "600"))
	assertDecimals(t, []string{"100", "300", "600"}, shares)

	// allocated_i / allocated_j == t_i / t_j
	ratio := shares[2].Div(shares[1])
	assert.True(t, ratio.Equal(dec("2")), "ratio %s", ratio)
}
