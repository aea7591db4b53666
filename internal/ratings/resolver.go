package ratings

import (
	"github.com/shopspring/decimal"

	"github.com/Clark-Hu/smart-ratings/internal/domain"
)

// Resolve blends a real aggregate with a seed under the seed's display mode.
//
//	real:     ra, rc
//	fake:     fa, fc
//	mixed:    rw*ra + fw*fa, rc+fc
//	weighted: (real_sum + fc*fa) / (rc+fc), rc+fc
//
// A seed without a fake side (fc == 0) reduces mixed and weighted to the
// real-only figure. A mixed seed with no real ratings yet reduces to the
// fake-only figure. An unknown mode resolves as real. The result is not
// rounded and Resolve has no side effects.
func Resolve(agg domain.AggregateRating, seed domain.SeedConfig) domain.ResolvedRating {
	mode := seed.Mode
	if !mode.Valid() {
		mode = domain.DisplayModeReal
	}
	out := domain.ResolvedRating{
		EntityID:   agg.EntityID,
		CategoryID: agg.CategoryID,
		Mode:       mode,
	}
	if out.EntityID == "" {
		out.EntityID = seed.EntityID
	}
	if out.CategoryID == "" {
		out.CategoryID = seed.CategoryID
	}

	realOnly := func() domain.ResolvedRating {
		out.Average = agg.RealAverage()
		out.Count = agg.RealCount
		return out
	}
	fakeOnly := func() domain.ResolvedRating {
		if seed.HasFakeSide() {
			out.Average = decimal.NullDecimal{Decimal: seed.FakeAverage, Valid: true}
			out.Count = seed.FakeCount
		}
		return out
	}

	switch mode {
	case domain.DisplayModeFake:
		return fakeOnly()
	case domain.DisplayModeMixed:
		if !seed.HasFakeSide() {
			return realOnly()
		}
		if agg.RealCount <= 0 {
			return fakeOnly()
		}
		ra := agg.RealAverage().Decimal
		avg := seed.RealWeight.Mul(ra).Add(seed.FakeWeight.Mul(seed.FakeAverage))
		out.Average = decimal.NullDecimal{Decimal: avg, Valid: true}
		out.Count = agg.RealCount + seed.FakeCount
		return out
	case domain.DisplayModeWeighted:
		if !seed.HasFakeSide() {
			return realOnly()
		}
		total := agg.RealCount + seed.FakeCount
		numerator := decimal.NewFromInt(agg.RealSum).Add(decimal.NewFromInt(seed.FakeCount).Mul(seed.FakeAverage))
		out.Average = decimal.NullDecimal{Decimal: numerator.Div(decimal.NewFromInt(total)), Valid: true}
		out.Count = total
		return out
	default:
		return realOnly()
	}
}

// RoundAverage rounds a displayed average half away from zero. Undefined
// averages stay undefined.
func RoundAverage(avg decimal.NullDecimal, precision int32) decimal.NullDecimal {
	if !avg.Valid {
		return avg
	}
	return decimal.NullDecimal{Decimal: avg.Decimal.Round(precision), Valid: true}
}

// Float returns avg as a float64 pointer, nil when undefined.
func Float(avg decimal.NullDecimal) *float64 {
	if !avg.Valid {
		return nil
	}
	f := avg.Decimal.InexactFloat64()
	return &f
}
