package subgraph

import (
	"context"
	"fmt"
	"time"

	"launchpad-terminal/internal/domain"
)

const tradesQuery = `query MarketTrades($market: String!, $first: Int!) {
  trades(first: $first, orderBy: timestamp, orderDirection: desc, where: { market: $market }) {
    id
    timestamp
    isBuy
    priceNativePerTokenWad
    amountToken
    amountNative
  }
}`

const candlesQuery = `query MarketCandles($market: String!, $interval: BigInt!, $from: BigInt!, $first: Int!, $skip: Int!) {
  candles(first: $first, skip: $skip, orderBy: timestamp, orderDirection: asc,
          where: { market: $market, interval: $interval, timestamp_gte: $from }) {
    timestamp
    close
  }
}`

type tradeRow struct {
	ID                     string `json:"id"`
	Timestamp              bigNum `json:"timestamp"`
	IsBuy                  bool   `json:"isBuy"`
	PriceNativePerTokenWad bigNum `json:"priceNativePerTokenWad"`
	AmountToken            bigNum `json:"amountToken"`
	AmountNative           bigNum `json:"amountNative"`
}

func (r tradeRow) normalize(marketID string) domain.Trade {
	return domain.Trade{
		ID:           r.ID,
		MarketID:     marketID,
		Timestamp:    r.Timestamp.int64(),
		IsBuy:        r.IsBuy,
		Price:        r.PriceNativePerTokenWad.wad(),
		TokenAmount:  r.AmountToken.wad(),
		NativeAmount: r.AmountNative.wad(),
	}
}

// FetchTrades returns the latest trades of a market, newest first.
func (c *Client) FetchTrades(ctx context.Context, marketID string, first int) ([]domain.Trade, error) {
	market := domain.NormalizeAddress(marketID)
	var data struct {
		Trades []tradeRow `json:"trades"`
	}
	vars := map[string]interface{}{"market": market, "first": first}
	if err := c.query(ctx, "trades", tradesQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("fetch trades %s: %w", market, err)
	}

	trades := make([]domain.Trade, len(data.Trades))
	for i, r := range data.Trades {
		trades[i] = r.normalize(market)
	}
	return trades, nil
}

type candleRow struct {
	Timestamp bigNum `json:"timestamp"`
	Close     bigNum `json:"close"`
}

// CloseSeries returns count per-bucket close prices of a market starting
// at from, one bucket per step. Buckets without a candle carry the
// previous close; buckets before the first candle are zero.
func (c *Client) CloseSeries(ctx context.Context, market string, from time.Time, step time.Duration, count int) ([]float64, error) {
	if count <= 0 || step <= 0 {
		return nil, nil
	}
	market = domain.NormalizeAddress(market)
	interval := int64(step / time.Second)

	candles, err := paginate(ctx, c.pageSize(), func(ctx context.Context, first, skip int) ([]candleRow, error) {
		var data struct {
			Candles []candleRow `json:"candles"`
		}
		vars := map[string]interface{}{
			"market":   market,
			"interval": fmt.Sprint(interval),
			"from":     fmt.Sprint(from.Unix()),
			"first":    first,
			"skip":     skip,
		}
		if err := c.query(ctx, "candles", candlesQuery, vars, &data); err != nil {
			return nil, err
		}
		return data.Candles, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch candles %s: %w", market, err)
	}

	points := make([]domain.PricePoint, len(candles))
	for i, cd := range candles {
		points[i] = domain.PricePoint{Timestamp: cd.Timestamp.int64(), Price: cd.Close.float()}
	}
	return domain.AlignCloses(points, from.Unix(), interval, count), nil
}
