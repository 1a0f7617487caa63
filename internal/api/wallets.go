package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"launchpad-terminal/internal/domain"
)

// WalletName resolves a display name, falling back to the short address.
// GET /api/wallets/:address/name
func (h *Handler) WalletName(c *gin.Context) {
	address := c.Param("address")
	name, err := h.deps.Wallets.Name(c.Request.Context(), address)
	if err != nil {
		h.logger.Error("resolve wallet name", zap.String("address", address), zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "failed to resolve name")
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": strings.ToLower(address), "name": name})
}

type nameRequest struct {
	Name string `json:"name"`
}

// SetWalletName stores a display name. An empty name clears it.
// PUT /api/wallets/:address/name {"name": "..."}
func (h *Handler) SetWalletName(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		errorResponse(c, http.StatusBadRequest, "invalid address")
		return
	}
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.deps.Wallets.SetName(c.Request.Context(), address, req.Name); err != nil {
		h.logger.Error("save wallet name", zap.String("address", address), zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "failed to save name")
		return
	}
	h.WalletName(c)
}

// TrackedWallets lists tracked wallets with their display names.
// GET /api/wallets/tracked
func (h *Handler) TrackedWallets(c *gin.Context) {
	ctx := c.Request.Context()
	tracked, err := h.deps.Wallets.Tracked(ctx)
	if err != nil {
		h.logger.Error("load tracked wallets", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "failed to load tracked wallets")
		return
	}

	type row struct {
		Address string `json:"address"`
		Name    string `json:"name"`
	}
	rows := make([]row, 0, len(tracked))
	for _, addr := range tracked {
		name, err := h.deps.Wallets.Name(ctx, addr)
		if err != nil {
			errorResponse(c, http.StatusInternalServerError, "failed to resolve name")
			return
		}
		rows = append(rows, row{Address: addr, Name: name})
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

// TrackWallet adds a wallet to the tracked list.
// POST /api/wallets/tracked/:address
func (h *Handler) TrackWallet(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		errorResponse(c, http.StatusBadRequest, "invalid address")
		return
	}
	if err := h.deps.Wallets.Track(c.Request.Context(), address); err != nil {
		h.logger.Error("track wallet", zap.String("address", address), zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "failed to track wallet")
		return
	}
	c.Status(http.StatusNoContent)
}

// UntrackWallet removes a wallet from the tracked list.
// DELETE /api/wallets/tracked/:address
func (h *Handler) UntrackWallet(c *gin.Context) {
	if err := h.deps.Wallets.Untrack(c.Request.Context(), c.Param("address")); err != nil {
		h.logger.Error("untrack wallet", zap.String("address", c.Param("address")), zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "failed to untrack wallet")
		return
	}
	c.Status(http.StatusNoContent)
}

// WalletTrades returns the wallet's indexed trades, newest first.
// GET /api/wallets/:address/trades?limit=N
func (h *Handler) WalletTrades(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		errorResponse(c, http.StatusBadRequest, "invalid address")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		errorResponse(c, http.StatusBadRequest, "invalid limit")
		return
	}
	if h.deps.History == nil {
		errorResponse(c, http.StatusServiceUnavailable, "trade history not configured")
		return
	}

	trades, err := h.deps.History.FetchWalletTrades(c.Request.Context(), domain.NormalizeAddress(address))
	if err != nil {
		h.logger.Error("fetch wallet trades", zap.String("address", address), zap.Error(err))
		errorResponse(c, http.StatusBadGateway, "failed to load trades")
		return
	}
	if len(trades) > limit {
		trades = trades[:limit]
	}
	if trades == nil {
		trades = []domain.WalletTrade{}
	}
	c.JSON(http.StatusOK, gin.H{"data": trades, "count": len(trades)})
}
