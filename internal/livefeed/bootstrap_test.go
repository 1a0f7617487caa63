package livefeed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad-terminal/internal/domain"
	"launchpad-terminal/internal/store"
	"launchpad-terminal/internal/subgraph"
)

type fakeSource struct {
	tokens []domain.Token
	err    error
}

func (f fakeSource) FetchLaunchpadTokens(context.Context, int, int, string) ([]domain.Token, error) {
	return f.tokens, f.err
}

func TestBootstrap(t *testing.T) {
	st := store.New(0)
	markets, err := Bootstrap(context.Background(), fakeSource{tokens: []domain.Token{
		{ID: "0xa", Status: domain.StatusNew},
		{ID: "0xb", Status: domain.StatusGraduated},
	}}, st, 50, nil)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"0xa", "0xb"}, markets)
	assert.Equal(t, 1, store.Count(st.Snapshot(), domain.StatusGraduated, store.Filter{}))
}

func TestBootstrap_SubgraphErrorStartsEmpty(t *testing.T) {
	st := store.New(0)
	st.Dispatch(store.AddMarket{Token: domain.Token{ID: "0xstale", Status: domain.StatusNew}})

	markets, err := Bootstrap(context.Background(), fakeSource{err: &subgraph.SubgraphError{Operation: "launchpadTokens", StatusCode: 500}}, st, 50, nil)
	assert.NoError(t, err)
	assert.Empty(t, markets)
	assert.Empty(t, store.MarketIDs(st.Snapshot()))
}

func TestBootstrap_OtherErrorsReturned(t *testing.T) {
	st := store.New(0)
	_, err := Bootstrap(context.Background(), fakeSource{err: errors.New("dial tcp: refused")}, st, 50, nil)
	assert.Error(t, err)
	assert.Empty(t, store.MarketIDs(st.Snapshot()))
}
