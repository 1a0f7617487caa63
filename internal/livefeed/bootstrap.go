package livefeed

import (
	"context"

	"go.uber.org/zap"

	"launchpad-terminal/internal/domain"
	"launchpad-terminal/internal/store"
	"launchpad-terminal/internal/subgraph"
)

// TokenSource provides the bootstrap snapshot.
type TokenSource interface {
	FetchLaunchpadTokens(ctx context.Context, limit, offset int, orderBy string) ([]domain.Token, error)
}

// Bootstrap loads the snapshot into st and returns the market ids to
// subscribe to. A failed fetch initializes the store empty so readers see
// "no data yet"; the error is returned unless it came from the subgraph
// itself.
func Bootstrap(ctx context.Context, src TokenSource, st *store.Store, limit int, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tokens, err := src.FetchLaunchpadTokens(ctx, limit, 0, subgraph.OrderByCreatedAt)
	if err != nil {
		st.Dispatch(store.Init{})
		if subgraph.IsSubgraphError(err) {
			logger.Warn("bootstrap snapshot unavailable, starting empty", zap.Error(err))
			return nil, nil
		}
		return nil, err
	}

	st.Dispatch(store.Init{Tokens: tokens})
	logger.Info("bootstrap complete", zap.Int("tokens", len(tokens)))
	return store.MarketIDs(st.Snapshot()), nil
}
