package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"launchpad-terminal/internal/domain"
	"launchpad-terminal/internal/store"
)

const maxTradesLimit = 500

// ListTokens returns one visible status column.
// GET /api/tokens/:status?q=&min_mcap=&max_mcap=&min_holders=&max_holders=
func (h *Handler) ListTokens(c *gin.Context) {
	status := domain.Status(c.Param("status"))
	if !status.Valid() {
		errorResponse(c, http.StatusBadRequest, "unknown status")
		return
	}

	filter, err := parseFilter(c)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	state := h.deps.Store.Snapshot()
	tokens := store.Column(state, status, filter)

	type row struct {
		domain.Token
		Loading bool `json:"loading"`
	}
	rows := make([]row, len(tokens))
	for i, t := range tokens {
		rows[i] = row{Token: t, Loading: store.IsLoading(state, t.ID)}
	}

	c.JSON(http.StatusOK, gin.H{"data": rows, "count": len(rows)})
}

// HideToken soft-hides a token.
// POST /api/tokens/:id/hide
func (h *Handler) HideToken(c *gin.Context) {
	id := domain.NormalizeAddress(c.Param("id"))
	h.deps.Store.Dispatch(store.HideToken{ID: id})
	h.deps.Metrics.RecordDispatch("hide")
	c.JSON(http.StatusOK, gin.H{"id": id, "hidden": true})
}

type loadingRequest struct {
	Loading *bool `json:"loading" binding:"required"`
}

// SetLoading marks or clears an in-flight request on a token.
// POST /api/tokens/:id/loading {"loading": true}
func (h *Handler) SetLoading(c *gin.Context) {
	var req loadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "body must be {\"loading\": bool}")
		return
	}

	id := domain.NormalizeAddress(c.Param("id"))
	h.deps.Store.Dispatch(store.SetLoading{ID: id, Loading: *req.Loading})
	h.deps.Metrics.RecordDispatch("loading")
	c.JSON(http.StatusOK, gin.H{"id": id, "loading": *req.Loading})
}

// MarketTrades returns recent trades of a market, newest first. The live
// tape is served when it has data, then the archive, then the indexer.
// Indexer results are written back to the archive.
// GET /api/markets/:id/trades?limit=N
func (h *Handler) MarketTrades(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		errorResponse(c, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit > maxTradesLimit {
		limit = maxTradesLimit
	}

	id := domain.NormalizeAddress(c.Param("id"))
	var trades []domain.Trade
	if h.deps.Tape != nil {
		trades = h.deps.Tape.Recent(id, limit)
	}
	source := "live"
	if len(trades) == 0 && h.deps.Trades != nil {
		trades, err = h.deps.Trades.RecentTrades(c.Request.Context(), id, limit)
		if err != nil {
			h.logger.Error("load archived trades", zap.String("market", id), zap.Error(err))
			errorResponse(c, http.StatusInternalServerError, "failed to load trades")
			return
		}
		source = "archive"
	}
	if len(trades) == 0 && h.deps.History != nil {
		trades, err = h.deps.History.FetchTrades(c.Request.Context(), id, limit)
		if err != nil {
			h.logger.Error("fetch indexed trades", zap.String("market", id), zap.Error(err))
			errorResponse(c, http.StatusBadGateway, "failed to load trades")
			return
		}
		source = "subgraph"
		h.backfill(c.Request.Context(), id, trades)
	}
	if trades == nil {
		trades = []domain.Trade{}
	}

	c.JSON(http.StatusOK, gin.H{"data": trades, "source": source})
}

func (h *Handler) backfill(ctx context.Context, market string, trades []domain.Trade) {
	if h.deps.Trades == nil || len(trades) == 0 {
		return
	}
	if err := h.deps.Trades.InsertTrades(ctx, trades); err != nil {
		h.logger.Warn("archive indexed trades", zap.String("market", market), zap.Error(err))
	}
}

func parseFilter(c *gin.Context) (store.Filter, error) {
	f := store.Filter{Query: c.Query("q")}
	var err error
	if f.MinMarketCap, err = floatQuery(c, "min_mcap"); err != nil {
		return f, err
	}
	if f.MaxMarketCap, err = floatQuery(c, "max_mcap"); err != nil {
		return f, err
	}
	if f.MinHolders, err = intQuery(c, "min_holders"); err != nil {
		return f, err
	}
	if f.MaxHolders, err = intQuery(c, "max_holders"); err != nil {
		return f, err
	}
	return f, nil
}

func floatQuery(c *gin.Context, key string) (float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, &queryError{key: key}
	}
	return v, nil
}

func intQuery(c *gin.Context, key string) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, &queryError{key: key}
	}
	return v, nil
}

type queryError struct{ key string }

func (e *queryError) Error() string { return "invalid " + e.key }
