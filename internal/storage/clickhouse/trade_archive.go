package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"launchpad-terminal/internal/domain"
	"launchpad-terminal/internal/observability"
	"launchpad-terminal/internal/storage"
)

// TradeArchive implements storage.TradeArchive using ClickHouse.
type TradeArchive struct {
	conn    *Conn
	metrics *observability.Metrics
}

// NewTradeArchive creates a new TradeArchive. metrics may be nil.
func NewTradeArchive(conn *Conn, metrics *observability.Metrics) *TradeArchive {
	return &TradeArchive{conn: conn, metrics: metrics}
}

// observe records a query; call as defer a.observe(op, time.Now(), &err).
func (a *TradeArchive) observe(operation string, start time.Time, err *error) {
	a.metrics.RecordDBQuery("clickhouse", operation, time.Since(start).Seconds(), *err)
}

// Compile-time interface check.
var _ storage.TradeArchive = (*TradeArchive)(nil)

// InsertTrades appends trades in one batch. Intra-batch duplicates are
// dropped here; cross-batch duplicates collapse on merge and are skipped
// by readers.
func (a *TradeArchive) InsertTrades(ctx context.Context, trades []domain.Trade) (err error) {
	if len(trades) == 0 {
		return nil
	}
	defer a.observe("insert_trades", time.Now(), &err)

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO market_trades (
			id, market_id, timestamp, is_buy, price, token_amount, native_amount
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	seen := make(map[string]struct{}, len(trades))
	for _, tr := range trades {
		if tr.ID == "" || tr.MarketID == "" {
			_ = batch.Abort()
			return storage.ErrInvalidInput
		}
		if _, dup := seen[tr.ID]; dup {
			continue
		}
		seen[tr.ID] = struct{}{}

		var isBuy uint8
		if tr.IsBuy {
			isBuy = 1
		}
		err = batch.Append(
			tr.ID, strings.ToLower(tr.MarketID), time.Unix(tr.Timestamp, 0).UTC(),
			isBuy, tr.Price, tr.TokenAmount, tr.NativeAmount,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// RecentTrades returns up to limit trades of a market, newest first.
func (a *TradeArchive) RecentTrades(ctx context.Context, marketID string, limit int) (_ []domain.Trade, err error) {
	defer a.observe("recent_trades", time.Now(), &err)
	if limit <= 0 {
		limit = storage.DefaultRecentLimit
	}

	rows, err := a.conn.Query(ctx, `
		SELECT id, market_id, timestamp, is_buy, price, token_amount, native_amount
		FROM market_trades
		WHERE market_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1 BY id
		LIMIT ?
	`, strings.ToLower(marketID), limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var (
			tr    domain.Trade
			ts    time.Time
			isBuy uint8
		)
		if err := rows.Scan(&tr.ID, &tr.MarketID, &ts, &isBuy, &tr.Price, &tr.TokenAmount, &tr.NativeAmount); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		tr.Timestamp = ts.Unix()
		tr.IsBuy = isBuy == 1
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return out, nil
}

// CloseSeries aggregates the last price per step bucket server-side and
// aligns the result onto count buckets starting at from. The close before
// from seeds the first bucket.
func (a *TradeArchive) CloseSeries(ctx context.Context, marketID string, from time.Time, step time.Duration, count int) (_ []float64, err error) {
	if count <= 0 || step < time.Second {
		return nil, nil
	}
	defer a.observe("close_series", time.Now(), &err)
	stepSec := int64(step / time.Second)
	market := strings.ToLower(marketID)
	end := from.Add(time.Duration(count) * step)

	var points []domain.PricePoint

	var seedPrice float64
	var seedTS time.Time
	err = a.conn.QueryRow(ctx, `
		SELECT argMax(price, timestamp), max(timestamp)
		FROM market_trades
		WHERE market_id = ? AND timestamp < ?
	`, market, from.UTC()).Scan(&seedPrice, &seedTS)
	if err != nil {
		return nil, fmt.Errorf("query seed close: %w", err)
	}
	if !seedTS.IsZero() && seedTS.Unix() > 0 {
		points = append(points, domain.PricePoint{Timestamp: seedTS.Unix(), Price: seedPrice})
	}

	rows, err := a.conn.Query(ctx, `
		SELECT
			toUnixTimestamp(timestamp) - ((toUnixTimestamp(timestamp) - ?) % ?) AS bucket,
			argMax(price, timestamp) AS close
		FROM market_trades
		WHERE market_id = ? AND timestamp >= ? AND timestamp < ?
		GROUP BY bucket
		ORDER BY bucket
	`, from.Unix(), stepSec, market, from.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query closes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			bucket int64
			price  float64
		)
		if err := rows.Scan(&bucket, &price); err != nil {
			return nil, fmt.Errorf("scan close: %w", err)
		}
		points = append(points, domain.PricePoint{Timestamp: bucket, Price: price})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate closes: %w", err)
	}

	return domain.AlignCloses(points, from.Unix(), stepSec, count), nil
}
