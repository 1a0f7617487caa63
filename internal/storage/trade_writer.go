package storage

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"launchpad-terminal/internal/domain"
)

// Default trade writer settings.
const (
	DefaultWriterBuffer  = 4096
	DefaultWriterBatch   = 500
	DefaultFlushInterval = 2 * time.Second
	defaultFlushTimeout  = 10 * time.Second
)

// TradeWriter batches live trades into a TradeArchive off the caller's
// goroutine. Record never blocks; trades are dropped when the buffer is full.
type TradeWriter struct {
	archive  TradeArchive
	in       chan domain.Trade
	batch    int
	interval time.Duration
	logger   *zap.Logger

	dropped atomic.Uint64
	written atomic.Uint64
}

// NewTradeWriter creates a writer. Run must be started for trades to flow.
func NewTradeWriter(archive TradeArchive, buffer, batch int, interval time.Duration, logger *zap.Logger) *TradeWriter {
	if buffer <= 0 {
		buffer = DefaultWriterBuffer
	}
	if batch <= 0 {
		batch = DefaultWriterBatch
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TradeWriter{
		archive:  archive,
		in:       make(chan domain.Trade, buffer),
		batch:    batch,
		interval: interval,
		logger:   logger,
	}
}

// Record queues a trade.
func (w *TradeWriter) Record(trade domain.Trade) {
	select {
	case w.in <- trade:
	default:
		if w.dropped.Add(1)%1000 == 1 {
			w.logger.Warn("trade writer buffer full, dropping", zap.Uint64("dropped", w.dropped.Load()))
		}
	}
}

// Dropped returns the number of trades dropped on a full buffer.
func (w *TradeWriter) Dropped() uint64 { return w.dropped.Load() }

// Written returns the number of trades handed to the archive.
func (w *TradeWriter) Written() uint64 { return w.written.Load() }

// Run flushes on batch size or interval until ctx is done, then drains
// what is buffered.
func (w *TradeWriter) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	pending := make([]domain.Trade, 0, w.batch)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case tr := <-w.in:
					pending = append(pending, tr)
				default:
					w.flush(pending)
					return
				}
			}
		case tr := <-w.in:
			pending = append(pending, tr)
			if len(pending) >= w.batch {
				w.flush(pending)
				pending = pending[:0]
			}
		case <-ticker.C:
			if len(pending) > 0 {
				w.flush(pending)
				pending = pending[:0]
			}
		}
	}
}

// flush writes with its own timeout so a shutdown still persists the tail.
func (w *TradeWriter) flush(trades []domain.Trade) {
	if len(trades) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultFlushTimeout)
	defer cancel()

	if err := w.archive.InsertTrades(ctx, trades); err != nil {
		w.logger.Error("archive trades", zap.Int("count", len(trades)), zap.Error(err))
		return
	}
	w.written.Add(uint64(len(trades)))
}
