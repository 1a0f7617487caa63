// Package livefeed multiplexes router and per-market log subscriptions over
// a single node WebSocket and dispatches decoded events into the store.
package livefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"launchpad-terminal/internal/chainlog"
	"launchpad-terminal/internal/domain"
	"launchpad-terminal/internal/evm"
	"launchpad-terminal/internal/observability"
	"launchpad-terminal/internal/store"
	"launchpad-terminal/internal/subgraph"
)

// ErrDisconnected is returned by Run when the socket drops. The feed does
// not reconnect; OnDisconnect lets the owner decide.
var ErrDisconnected = errors.New("live feed disconnected")

// ErrAlreadyRunning is returned by Run on a subscriber that is not closed.
var ErrAlreadyRunning = errors.New("live feed already running")

// State is the connection lifecycle of a Subscriber.
type State int32

// Subscriber states
const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Dialer opens a node connection. onDisconnect must be invoked by the
// client when its read side fails.
type Dialer func(ctx context.Context, onDisconnect func(error)) (evm.WSClient, error)

// EVMDialer dials endpoint with the evm WebSocket client.
func EVMDialer(endpoint string, cfg evm.WSClientConfig) Dialer {
	return func(ctx context.Context, onDisconnect func(error)) (evm.WSClient, error) {
		c := cfg
		c.OnDisconnect = onDisconnect
		client, err := evm.NewWSClient(ctx, endpoint, &c)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// MetadataFetcher resolves token metadata for freshly created markets.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, uri string) (subgraph.Metadata, error)
}

// TradeRecorder receives every live trade. Record must not block.
type TradeRecorder interface {
	Record(trade domain.Trade)
}

// Config configures a Subscriber.
type Config struct {
	RouterAddress string
	Topics        chainlog.Topics

	Tape     *store.TradeTape
	Recorder TradeRecorder
	Metadata MetadataFetcher

	// OnDisconnect is called once when the socket drops while running.
	OnDisconnect func(error)

	Logger  *zap.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
}

// Subscriber owns one socket and the market address to subscription id
// map. The creation feed is keyed "router".
type Subscriber struct {
	dial  Dialer
	store *store.Store
	cfg   Config

	mu     sync.Mutex
	state  State
	client evm.WSClient
	subs   map[string]string // market address -> subscription id
	cancel context.CancelFunc

	enrichWG sync.WaitGroup
}

// New creates a closed subscriber.
func New(dial Dialer, st *store.Store, cfg Config) *Subscriber {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.RouterAddress = domain.NormalizeAddress(cfg.RouterAddress)
	return &Subscriber{
		dial:  dial,
		store: st,
		cfg:   cfg,
		subs:  make(map[string]string),
	}
}

// State returns the current lifecycle state.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscriptions returns a copy of the market to subscription id map.
func (s *Subscriber) Subscriptions() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.subs))
	for k, v := range s.subs {
		out[k] = v
	}
	return out
}

// Close stops a running feed. Run returns after teardown.
func (s *Subscriber) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Subscriber) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.cfg.Metrics.SetFeedState(int(st))
}

// Run connects, subscribes to the router creation feed and to every market
// in markets, then handles notifications one at a time in delivery order
// until ctx is done, Close is called or the socket drops. The socket is
// closed and the subscription map cleared before Run returns.
func (s *Subscriber) Run(ctx context.Context, markets []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.state != StateClosed {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.state = StateConnecting
	s.cancel = cancel
	s.mu.Unlock()
	s.cfg.Metrics.SetFeedState(int(StateConnecting))

	client, err := s.dial(ctx, s.onDisconnect)
	if err != nil {
		s.teardown(nil)
		return fmt.Errorf("dial: %w", err)
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	s.setState(StateOpen)
	defer s.teardown(client)

	if err := s.subscribe(ctx, client, routerKey, s.routerFilter()); err != nil {
		return fmt.Errorf("subscribe router: %w", err)
	}
	for _, m := range markets {
		if err := s.subscribeMarket(ctx, client, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.cfg.Logger.Warn("market subscription failed", zap.String("market", m), zap.Error(err))
		}
	}
	s.cfg.Logger.Info("live feed open", zap.Int("subscriptions", len(s.Subscriptions())))

	notifications := client.Notifications()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notifications:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrDisconnected
			}
			s.handle(ctx, client, n)
		}
	}
}

// routerKey is the subscription map key of the creation feed.
const routerKey = "router"

func (s *Subscriber) routerFilter() evm.LogsFilter {
	f := evm.LogsFilter{Topics: [][]string{{s.cfg.Topics.MarketCreated.Hex()}}}
	if s.cfg.RouterAddress != "" {
		f.Addresses = []string{s.cfg.RouterAddress}
	}
	return f
}

func (s *Subscriber) subscribeMarket(ctx context.Context, client evm.WSClient, market string) error {
	market = domain.NormalizeAddress(market)
	return s.subscribe(ctx, client, market, evm.LogsFilter{
		Addresses: []string{market},
		Topics:    [][]string{{s.cfg.Topics.MarketUpdate.Hex()}},
	})
}

// subscribe issues one eth_subscribe under key and records the ack.
func (s *Subscriber) subscribe(ctx context.Context, client evm.WSClient, key string, filter evm.LogsFilter) error {
	s.mu.Lock()
	_, exists := s.subs[key]
	s.mu.Unlock()
	if exists {
		return nil
	}

	subID, err := client.SubscribeLogs(ctx, filter)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.subs[key] = subID
	n := len(s.subs)
	s.mu.Unlock()
	s.cfg.Metrics.SetSubscriptions(n)
	return nil
}

func (s *Subscriber) onDisconnect(err error) {
	s.cfg.Logger.Error("live feed socket dropped", zap.Error(err))
	if s.cfg.OnDisconnect != nil {
		s.cfg.OnDisconnect(err)
	}
}

func (s *Subscriber) teardown(client evm.WSClient) {
	if client != nil {
		if err := client.Close(); err != nil {
			s.cfg.Logger.Debug("close live feed socket", zap.Error(err))
		}
	}
	s.enrichWG.Wait()

	s.mu.Lock()
	s.subs = make(map[string]string)
	s.client = nil
	s.cancel = nil
	s.mu.Unlock()

	s.cfg.Metrics.SetSubscriptions(0)
	s.setState(StateClosed)
	s.cfg.Logger.Info("live feed closed")
}

// handle processes a single notification. Failures are isolated to it.
func (s *Subscriber) handle(ctx context.Context, client evm.WSClient, n evm.LogNotification) {
	log, err := chainlog.ParseLog(n.Log)
	if err != nil {
		s.cfg.Metrics.RecordDecodeError("unknown")
		s.cfg.Logger.Warn("dropping unparseable log", zap.String("subscription", n.Subscription), zap.Error(err))
		return
	}
	if log.Removed {
		return
	}

	switch s.cfg.Topics.Classify(log) {
	case chainlog.EventMarketCreated:
		s.cfg.Metrics.RecordNotification("created")
		s.handleCreated(ctx, client, log)
	case chainlog.EventMarketUpdate:
		s.cfg.Metrics.RecordNotification("update")
		s.handleUpdate(log)
	default:
		s.cfg.Metrics.RecordNotification("unknown")
	}
}

func (s *Subscriber) handleCreated(ctx context.Context, client evm.WSClient, log types.Log) {
	ev, err := chainlog.DecodeMarketCreated(log)
	if err != nil {
		s.cfg.Metrics.RecordDecodeError("created")
		s.cfg.Logger.Warn("dropping malformed creation log", zap.Stringer("tx", log.TxHash), zap.Error(err))
		return
	}

	tok := store.TokenFromCreated(ev, s.cfg.Now())
	s.store.Dispatch(store.AddMarket{Token: tok})
	s.cfg.Metrics.RecordDispatch("add_market")

	if err := s.subscribeMarket(ctx, client, tok.ID); err != nil {
		s.cfg.Logger.Warn("subscribe new market failed", zap.String("market", tok.ID), zap.Error(err))
	}

	if s.cfg.Metadata != nil && ev.MetadataCID != "" {
		s.enrichWG.Add(1)
		go s.enrich(ctx, tok.ID, ev.MetadataCID)
	}
}

// enrich applies metadata of a new market. Failures are logged only.
func (s *Subscriber) enrich(ctx context.Context, marketID, uri string) {
	defer s.enrichWG.Done()

	md, err := s.cfg.Metadata.FetchMetadata(ctx, uri)
	s.cfg.Metrics.RecordMetadataFetch(err == nil)
	if err != nil {
		s.cfg.Logger.Debug("new market metadata unavailable", zap.String("market", marketID), zap.Error(err))
		return
	}

	var t domain.Token
	md.Apply(&t)
	s.store.Dispatch(store.UpdateMarket{ID: marketID, Updates: store.Updates{
		Image:       &t.Image,
		Description: &t.Description,
		Socials:     &t.Socials,
	}})
	s.cfg.Metrics.RecordDispatch("update_market")
}

func (s *Subscriber) handleUpdate(log types.Log) {
	ev, err := chainlog.DecodeMarketUpdate(log)
	if err != nil {
		s.cfg.Metrics.RecordDecodeError("update")
		s.cfg.Logger.Warn("dropping malformed update log", zap.Stringer("tx", log.TxHash), zap.Error(err))
		return
	}

	now := s.cfg.Now()
	s.store.Dispatch(store.UpdateMarket{ID: ev.MarketAddress, Updates: store.UpdatesFromEvent(ev, now)})
	s.cfg.Metrics.RecordDispatch("update_market")

	trade := tradeFromUpdate(ev, log, now)
	if s.cfg.Tape != nil {
		s.cfg.Tape.Append(trade)
	}
	if s.cfg.Recorder != nil {
		s.cfg.Recorder.Record(trade)
	}
}

// tradeFromUpdate derives the fill carried by an update log. On a buy the
// native amount goes in and tokens come out; a sell is the reverse.
func tradeFromUpdate(ev domain.MarketUpdate, log types.Log, at time.Time) domain.Trade {
	tokenAmount, nativeAmount := ev.AmountOut, ev.AmountIn
	if !ev.IsBuy {
		tokenAmount, nativeAmount = ev.AmountIn, ev.AmountOut
	}
	return domain.Trade{
		ID:           fmt.Sprintf("%s-%d", log.TxHash.Hex(), log.Index),
		MarketID:     ev.MarketAddress,
		Timestamp:    at.Unix(),
		IsBuy:        ev.IsBuy,
		Price:        ev.Price,
		TokenAmount:  tokenAmount,
		NativeAmount: nativeAmount,
	}
}
