package portfolio

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// FallbackPrices reads closes from Primary and falls back to Secondary
// when Primary fails or saw no trade in the window.
type FallbackPrices struct {
	Primary   PriceSource
	Secondary PriceSource
	Logger    *zap.Logger
}

// CloseSeries implements PriceSource.
func (f FallbackPrices) CloseSeries(ctx context.Context, market string, from time.Time, step time.Duration, count int) ([]float64, error) {
	if f.Primary != nil {
		series, err := f.Primary.CloseSeries(ctx, market, from, step, count)
		switch {
		case err == nil && hasPrice(series):
			return series, nil
		case err != nil && isCancelled(ctx, err):
			return nil, err
		case err != nil && f.Logger != nil:
			f.Logger.Warn("primary close series failed, falling back",
				zap.String("market", market), zap.Error(err))
		}
		if f.Secondary == nil {
			return series, err
		}
	}
	return f.Secondary.CloseSeries(ctx, market, from, step, count)
}

func hasPrice(series []float64) bool {
	for _, p := range series {
		if p > 0 {
			return true
		}
	}
	return false
}
