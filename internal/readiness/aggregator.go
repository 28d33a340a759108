package readiness

import (
	"sync"

	"github.com/sawpanic/marketready/internal/bus"
	"github.com/sawpanic/marketready/internal/registry"
)

// Logger is the narrow logging contract the aggregator depends on (spec.md
// §10.1 of SPEC_FULL.md). A zerolog-backed implementation lives in
// internal/log; tests use a no-op or recording stub.
type Logger interface {
	Info(msg string, kv map[string]any)
	Warn(msg string, kv map[string]any)
}

// noopLogger discards everything. Used when New is given a nil Logger so
// the aggregator never has to nil-check it on the hot path.
type noopLogger struct{}

func (noopLogger) Info(string, map[string]any) {}
func (noopLogger) Warn(string, map[string]any) {}

// The 20 consumed topics from spec.md §6.
const (
	topicPriceCanonical   = "market:price_canonical"
	topicCVDSpotAgg       = "market:cvd_spot_agg"
	topicCVDFuturesAgg    = "market:cvd_futures_agg"
	topicLiquidityAgg     = "market:liquidity_agg"
	topicOIAgg            = "market:oi_agg"
	topicFundingAgg       = "market:funding_agg"
	topicLiquidationsAgg  = "market:liquidations_agg"
	topicTrade            = "market:trade"
	topicOrderbookSnap    = "market:orderbook_l2_snapshot"
	topicOrderbookDelta   = "market:orderbook_l2_delta"
	topicOI               = "market:oi"
	topicFunding          = "market:funding"
	topicTicker           = "market:ticker"
	topicKline            = "market:kline"
	topicConnected        = "market:connected"
	topicDisconnected     = "market:disconnected"
	topicConfidence       = "data:confidence"
	topicMismatch         = "data:mismatch"
	topicGapDetected      = "data:gapDetected"
	topicOutOfOrder       = "data:outOfOrder"

	statusTopic = "system:market_data_status"
)

// aggTopicKeys maps every aggregated topic to its confidence-cache key.
var aggTopicKeys = map[string]string{
	topicPriceCanonical:  keyPrice,
	topicCVDSpotAgg:      keyFlowSpot,
	topicCVDFuturesAgg:   keyFlowFutures,
	topicLiquidityAgg:    keyLiquidity,
	topicOIAgg:           keyDerivativesOI,
	topicFundingAgg:      keyDerivativesFunding,
	topicLiquidationsAgg: keyDerivativesLiq,
}

// rawTopicFeeds maps every raw topic to its registry feed.
var rawTopicFeeds = map[string]registry.Feed{
	topicTrade:          registry.FeedTrades,
	topicOrderbookSnap:  registry.FeedOrderbook,
	topicOrderbookDelta: registry.FeedOrderbook,
	topicOI:             registry.FeedOI,
	topicFunding:        registry.FeedFunding,
	topicTicker:         registry.FeedMarkPrice,
	topicKline:          registry.FeedKlines,
}

// feedBlock maps a registry feed to the block it contributes to for the
// ExpectedSourcesRaw/ActiveSourcesRaw payload projection (spec.md §12).
var feedBlock = map[registry.Feed]Block{
	registry.FeedTrades:     BlockFlow,
	registry.FeedOrderbook:  BlockLiquidity,
	registry.FeedOI:         BlockDerivatives,
	registry.FeedFunding:    BlockDerivatives,
	registry.FeedKlines:     BlockPrice,
	registry.FeedMarkPrice:  BlockPrice,
	registry.FeedIndexPrice: BlockPrice,
}

func regKey(symbol, marketType string) registry.Key {
	return registry.Key{Symbol: normalizeSymbol(symbol), MarketType: marketType}
}

func regBlock(b Block) registry.Block { return registry.Block(b) }

// toReadinessBlockMap converts a registry.Block-keyed map into one keyed by
// this package's Block, the two being kept in lockstep by construction.
func toReadinessBlockMap(in map[registry.Block][]string) map[Block][]string {
	out := make(map[Block][]string, len(in))
	for b, v := range in {
		out[Block(b)] = v
	}
	return out
}

// rawSourcesByFeedName converts a registry.Feed-keyed map into one keyed by
// the feed's plain string name, for the payload's raw-sources projection.
func rawSourcesByFeedName(in map[registry.Feed][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for f, v := range in {
		out[string(f)] = v
	}
	return out
}

// Aggregator is the top-level wiring of spec.md §4: subscribes to every
// consumed topic, drives ingest -> evaluate -> hysteresis -> emit on every
// aggregated event, and publishes system:market_data_status.
type Aggregator struct {
	cfg Config
	log Logger

	bus   bus.EventBus
	reg   *registry.Registry
	clock BucketClock
	conn  *connectionTracker
	gate  *hysteresisGate
	emit  *Emitter

	mu    sync.Mutex
	cache map[string]*blockRecord

	transientGap      map[Block]bool
	transientLag      map[Block]bool
	transientMismatch map[Block]bool

	lastSymbol     string
	lastMarketType string

	firstBucketTs *int64
	lastBucketTs  int64
	startedAtTs   int64

	currentMinuteStart int64
	minuteWorst        string
	minuteReasons       map[ReasonCode]bool

	warnedMissingConfig map[string]bool

	started bool
	tokens  []subscriptionHandle
}

type subscriptionHandle struct {
	topic string
	token bus.Token
}

// New constructs an Aggregator. reg may be nil, in which case a private
// registry.Registry is created; pass a shared one per spec.md §5 "Shared
// resources" to track multiple aggregators' views of the same exchange
// connection.
func New(cfg Config, b bus.EventBus, reg *registry.Registry, log Logger) *Aggregator {
	cfg = cfg.clamp()
	if reg == nil {
		reg = registry.New(nil)
	}
	if log == nil {
		log = noopLogger{}
	}
	a := &Aggregator{
		cfg:                 cfg,
		log:                 log,
		bus:                 b,
		reg:                 reg,
		clock:               NewBucketClock(cfg.BucketMs),
		conn:                newConnectionTracker(cfg.WSRecoveryWindowMs),
		gate:                newHysteresisGate(cfg),
		cache:               make(map[string]*blockRecord),
		transientGap:        make(map[Block]bool),
		transientLag:        make(map[Block]bool),
		transientMismatch:   make(map[Block]bool),
		minuteReasons:       make(map[ReasonCode]bool),
		warnedMissingConfig: make(map[string]bool),
	}
	a.emit = newEmitter(b, log, cfg)
	return a
}

// Start subscribes every handler. Idempotent: a second call is a no-op.
func (a *Aggregator) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return
	}
	a.started = true
	a.startedAtTs = a.cfg.nowMs()

	for topic, key := range aggTopicKeys {
		key := key
		a.subscribe(topic, func(_ string, payload any) {
			if ev, ok := payload.(AggregatedBlockEvent); ok {
				a.withLock(func() { a.ingestAggregated(key, ev) })
			}
		})
	}
	for topic, feed := range rawTopicFeeds {
		feed := feed
		a.subscribe(topic, func(_ string, payload any) {
			if ev, ok := payload.(RawEvent); ok {
				a.withLock(func() { a.ingestRaw(feed, ev) })
			}
		})
	}
	a.subscribe(topicConnected, func(_ string, payload any) {
		if ev, ok := payload.(ConnectedEvent); ok {
			a.withLock(func() { a.conn.OnConnect(ev.Meta.Ts) })
		}
	})
	a.subscribe(topicDisconnected, func(_ string, payload any) {
		if ev, ok := payload.(DisconnectedEvent); ok {
			a.withLock(func() { a.conn.OnDisconnect(ev.Meta.Ts) })
		}
	})
	a.subscribe(topicConfidence, func(_ string, payload any) {
		if ev, ok := payload.(ConfidenceEvent); ok {
			a.withLock(func() { a.ingestConfidence(ev) })
		}
	})
	a.subscribe(topicMismatch, func(_ string, payload any) {
		if ev, ok := payload.(MismatchEvent); ok {
			a.withLock(func() { a.ingestMismatch(ev) })
		}
	})
	a.subscribe(topicGapDetected, func(_ string, payload any) {
		if ev, ok := payload.(GapEvent); ok {
			a.withLock(func() { a.ingestGap(ev) })
		}
	})
	a.subscribe(topicOutOfOrder, func(_ string, payload any) {
		if ev, ok := payload.(OutOfOrderEvent); ok {
			a.withLock(func() { a.ingestOutOfOrder(ev) })
		}
	})
}

func (a *Aggregator) subscribe(topic string, h bus.Handler) {
	tok := a.bus.Subscribe(topic, h)
	a.tokens = append(a.tokens, subscriptionHandle{topic: topic, token: tok})
}

// withLock serialises one ingest call. The aggregator is logically a
// single-writer state machine (spec.md §1), but bus implementations are
// free to deliver on any goroutine, so every handler funnels through here.
func (a *Aggregator) withLock(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn()
}

// Stop unsubscribes every handler. Idempotent.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return
	}
	for _, h := range a.tokens {
		a.bus.Unsubscribe(h.topic, h.token)
	}
	a.tokens = nil
	a.started = false
}

// advanceBucket updates first/last bucket bookkeeping used by warming
// progress.
func (a *Aggregator) advanceBucket(bucketTs int64) {
	if a.firstBucketTs == nil {
		t := bucketTs
		a.firstBucketTs = &t
	}
	if bucketTs > a.lastBucketTs {
		a.lastBucketTs = bucketTs
	}
}
