package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"launchpad-terminal/internal/domain"
	"launchpad-terminal/internal/portfolio"
)

const (
	defaultChartDays = 7
	maxChartDays     = 365
)

// Portfolio returns the wallet's value series over the last N days.
// GET /api/portfolio/:address?days=N
func (h *Handler) Portfolio(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		errorResponse(c, http.StatusBadRequest, "invalid address")
		return
	}
	days, err := strconv.Atoi(c.DefaultQuery("days", strconv.Itoa(defaultChartDays)))
	if err != nil || days < 1 || days > maxChartDays {
		errorResponse(c, http.StatusBadRequest, "days must be between 1 and 365")
		return
	}
	if h.deps.Positions == nil || h.deps.Valuator == nil {
		errorResponse(c, http.StatusServiceUnavailable, "portfolio valuation not configured")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deps.ValuationTimeout)
	defer cancel()

	account := common.HexToAddress(address)
	positions, err := h.deps.Positions.FetchWalletPositions(ctx, domain.NormalizeAddress(address))
	if err != nil {
		h.logger.Error("fetch wallet positions", zap.String("account", address), zap.Error(err))
		errorResponse(c, http.StatusBadGateway, "failed to load positions")
		return
	}

	points, err := h.deps.Valuator.Valuate(ctx, account, portfolio.HoldingsFromPositions(positions), days)
	if err != nil {
		var hre *portfolio.HistoricalReadError
		if errors.As(err, &hre) {
			h.logger.Warn("historical read failed", zap.Uint64("block", hre.Block), zap.Error(err))
		} else {
			h.logger.Error("valuate portfolio", zap.String("account", address), zap.Error(err))
		}
		errorResponse(c, http.StatusBadGateway, "failed to value portfolio")
		return
	}
	if points == nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			h.logger.Warn("valuation timed out", zap.String("account", address), zap.Int("days", days))
			errorResponse(c, http.StatusGatewayTimeout, "portfolio valuation timed out")
			return
		}
		points = []domain.PortfolioDataPoint{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      points,
		"hasValue":  domain.HasValue(points),
		"positions": len(positions),
	})
}
