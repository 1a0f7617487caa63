package livefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad-terminal/internal/chainlog"
	"launchpad-terminal/internal/domain"
	"launchpad-terminal/internal/evm"
	"launchpad-terminal/internal/store"
	"launchpad-terminal/internal/subgraph"
)

var (
	topics = chainlog.Topics{
		MarketCreated: common.HexToHash("0xc1"),
		MarketUpdate:  common.HexToHash("0xd1"),
	}
	router    = "0x1111111111111111111111111111111111111111"
	knownMkt  = "0x00000000000000000000000000000000000000aa"
	createdMk = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	createdTk = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

// fakeWS is an in-memory evm.WSClient.
type fakeWS struct {
	mu       sync.Mutex
	filters  []evm.LogsFilter
	notifs   chan evm.LogNotification
	closed   bool
	failAddr string
}

func newFakeWS() *fakeWS {
	return &fakeWS{notifs: make(chan evm.LogNotification, 16)}
}

func (f *fakeWS) SubscribeLogs(_ context.Context, filter evm.LogsFilter) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(filter.Addresses) == 1 && filter.Addresses[0] == f.failAddr {
		return "", errors.New("subscription rejected")
	}
	f.filters = append(f.filters, filter)
	return fmt.Sprintf("0xsub%d", len(f.filters)), nil
}

func (f *fakeWS) Unsubscribe(context.Context, string) error { return nil }

func (f *fakeWS) Notifications() <-chan evm.LogNotification { return f.notifs }

func (f *fakeWS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWS) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeWS) push(t *testing.T, log map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(log)
	require.NoError(t, err)
	f.notifs <- evm.LogNotification{Subscription: "0xsub1", Log: raw}
}

type fakeMetadata struct{}

func (fakeMetadata) FetchMetadata(context.Context, string) (subgraph.Metadata, error) {
	return subgraph.Metadata{Image: "https://img/new.png", Twitter: "x.com/new"}, nil
}

type recorder struct {
	mu     sync.Mutex
	trades []domain.Trade
}

func (r *recorder) Record(tr domain.Trade) {
	r.mu.Lock()
	r.trades = append(r.trades, tr)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trades)
}

func word(v *big.Int) []byte { return common.LeftPadBytes(v.Bytes(), 32) }

func pack(hi, lo int64) *big.Int {
	return new(big.Int).Or(new(big.Int).Lsh(big.NewInt(hi), 128), big.NewInt(lo))
}

func updateLog(market string, isBuy bool) map[string]interface{} {
	flag := int64(0)
	if isBuy {
		flag = 1
	}
	price := new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil) // 0.001
	var data []byte
	data = append(data, word(pack(2e18, 1e18))...)
	data = append(data, word(big.NewInt(flag))...)
	data = append(data, word(price)...)
	data = append(data, word(pack(7, 3))...)
	return map[string]interface{}{
		"address":         market,
		"topics":          []string{topics.MarketUpdate.Hex()},
		"data":            hexutil.Encode(data),
		"transactionHash": common.HexToHash("0xfeed").Hex(),
		"logIndex":        "0x2",
	}
}

func createdLog(t *testing.T) map[string]interface{} {
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	args := abi.Arguments{{Type: stringType}, {Type: stringType}, {Type: stringType}}
	data, err := args.Pack("New Coin", "NEW", "ipfs://cid")
	require.NoError(t, err)
	return map[string]interface{}{
		"address": router,
		"topics": []string{
			topics.MarketCreated.Hex(),
			common.BytesToHash(createdMk.Bytes()).Hex(),
			common.BytesToHash(createdTk.Bytes()).Hex(),
		},
		"data": hexutil.Encode(data),
	}
}

func startFeed(t *testing.T, ws *fakeWS, st *store.Store, cfg Config, markets []string) (*Subscriber, context.CancelFunc, chan error) {
	t.Helper()
	dial := func(context.Context, func(error)) (evm.WSClient, error) { return ws, nil }
	cfg.RouterAddress = router
	cfg.Topics = topics
	cfg.Now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	sub := New(dial, st, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx, markets) }()

	require.Eventually(t, func() bool { return sub.State() == StateOpen && len(sub.Subscriptions()) == len(markets)+1 },
		time.Second, 5*time.Millisecond)
	return sub, cancel, done
}

func TestSubscriber_DispatchesDecodedEvents(t *testing.T) {
	st := store.New(0)
	st.Dispatch(store.Init{Tokens: []domain.Token{{ID: knownMkt, Status: domain.StatusNew, Volume24h: 1}}})

	ws := newFakeWS()
	tape := store.NewTradeTape(0)
	rec := &recorder{}
	sub, cancel, done := startFeed(t, ws, st, Config{Tape: tape, Recorder: rec, Metadata: fakeMetadata{}}, []string{knownMkt})

	subs := sub.Subscriptions()
	assert.Contains(t, subs, routerKey)
	assert.Contains(t, subs, knownMkt)
	assert.Equal(t, []string{router}, ws.filters[0].Addresses)
	assert.Equal(t, [][]string{{topics.MarketCreated.Hex()}}, ws.filters[0].Topics)

	// a malformed log first must not stop the loop
	ws.push(t, map[string]interface{}{"address": knownMkt, "topics": []string{topics.MarketUpdate.Hex()}, "data": "0x01"})
	ws.push(t, map[string]interface{}{"garbage": true})
	ws.push(t, updateLog(knownMkt, true))
	ws.push(t, createdLog(t))

	require.Eventually(t, func() bool {
		tok, ok := store.Find(st.Snapshot(), createdMk.Hex())
		return ok && tok.Image != ""
	}, time.Second, 5*time.Millisecond)

	tok, ok := store.Find(st.Snapshot(), knownMkt)
	require.True(t, ok)
	assert.InDelta(t, 3.0, tok.Volume24h, 1e-9)
	assert.InDelta(t, 0.001, tok.Price, 1e-15)
	assert.Equal(t, int64(7), tok.BuyTransactions)
	assert.Equal(t, int64(3), tok.SellTransactions)

	created, _ := store.Find(st.Snapshot(), createdMk.Hex())
	assert.Equal(t, "New Coin", created.Name)
	assert.Equal(t, domain.NormalizeAddress(createdTk.Hex()), created.TokenAddress)
	assert.Equal(t, "https://x.com/new", created.Socials.Twitter)
	assert.Contains(t, sub.Subscriptions(), domain.NormalizeAddress(createdMk.Hex()), "new market gets its own subscription")

	trades := tape.Recent(knownMkt, 0)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].IsBuy)
	assert.InDelta(t, 2.0, trades[0].NativeAmount, 1e-9)
	assert.InDelta(t, 1.0, trades[0].TokenAmount, 1e-9)
	assert.Equal(t, 1, rec.count())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, ws.isClosed())
	assert.Empty(t, sub.Subscriptions())
	assert.Equal(t, StateClosed, sub.State())
}

func TestSubscriber_MarketSubscriptionFailureIsolated(t *testing.T) {
	ws := newFakeWS()
	ws.failAddr = "0x00000000000000000000000000000000000000dd"

	dial := func(context.Context, func(error)) (evm.WSClient, error) { return ws, nil }
	sub := New(dial, store.New(0), Config{RouterAddress: router, Topics: topics})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx, []string{ws.failAddr, knownMkt}) }()

	require.Eventually(t, func() bool { return len(sub.Subscriptions()) == 2 }, time.Second, 5*time.Millisecond)
	assert.NotContains(t, sub.Subscriptions(), ws.failAddr)

	sub.Close()
	assert.NoError(t, <-done)
	cancel()
}

func TestSubscriber_SocketDropEndsRun(t *testing.T) {
	ws := newFakeWS()
	var hookErr error
	var hookMu sync.Mutex
	var onDisconnect func(error)

	dial := func(_ context.Context, od func(error)) (evm.WSClient, error) {
		onDisconnect = od
		return ws, nil
	}
	sub := New(dial, store.New(0), Config{
		Topics: topics,
		OnDisconnect: func(err error) {
			hookMu.Lock()
			hookErr = err
			hookMu.Unlock()
		},
	})

	done := make(chan error, 1)
	go func() { done <- sub.Run(context.Background(), nil) }()
	require.Eventually(t, func() bool { return sub.State() == StateOpen && len(sub.Subscriptions()) == 1 }, time.Second, 5*time.Millisecond)

	// the router feed without an address filters by topic only
	assert.Empty(t, ws.filters[0].Addresses)

	onDisconnect(errors.New("read: connection reset"))
	close(ws.notifs)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrDisconnected)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after socket drop")
	}
	hookMu.Lock()
	assert.EqualError(t, hookErr, "read: connection reset")
	hookMu.Unlock()
	assert.Empty(t, sub.Subscriptions())
}

func TestSubscriber_DialFailure(t *testing.T) {
	dial := func(context.Context, func(error)) (evm.WSClient, error) { return nil, errors.New("refused") }
	sub := New(dial, store.New(0), Config{Topics: topics})

	err := sub.Run(context.Background(), nil)
	assert.ErrorContains(t, err, "refused")
	assert.Equal(t, StateClosed, sub.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "open", StateOpen.String())
}
