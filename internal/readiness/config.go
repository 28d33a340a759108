package readiness

import (
	"os"
	"strings"
	"time"
)

// Thresholds holds the confidence floors from spec.md §6.
type Thresholds struct {
	CriticalBlock float64
	Overall       float64
}

// ExpectedSourcesConfig is the hierarchical per-symbol/market-type config
// consulted by the Expected-Sources Resolver (§4.2 of spec.md, the
// Expected-Sources Resolver component). Layering is: exact (symbol,
// marketType) override, then per-marketType default, then global default.
// Each layer is optional; the first layer that defines the block wins.
type ExpectedSourcesConfig struct {
	Default  map[string]map[Block][]string            // marketType -> block -> sources
	BySymbol map[string]map[string]map[Block][]string // symbol -> marketType -> block -> sources
}

// lookup resolves (symbol, marketType, block) through the layered config.
// The bool return reports whether any layer defined the block at all,
// distinguishing "defined as empty" (block not expected) from "never
// configured" (drives EXPECTED_SOURCES_MISSING_CONFIG upstream).
func (c ExpectedSourcesConfig) lookup(symbol, marketType string, block Block) ([]string, bool) {
	if c.BySymbol != nil {
		if byMarket, ok := c.BySymbol[symbol]; ok {
			if byBlock, ok := byMarket[marketType]; ok {
				if v, ok := byBlock[block]; ok {
					return v, true
				}
			}
		}
	}
	if c.Default != nil {
		if byBlock, ok := c.Default[marketType]; ok {
			if v, ok := byBlock[block]; ok {
				return v, true
			}
		}
	}
	return nil, false
}

// Config bundles every option from spec.md §6's configuration table.
type Config struct {
	BucketMs                 int64
	WarmingWindowMs          int64
	StartupGraceWindowMs     int64
	LogIntervalMs            int64
	WSRecoveryWindowMs       int64
	NoDataWindowMs           int64
	ConfidenceStaleWindowMs  int64
	DerivativesStaleWindowMs int64

	Thresholds Thresholds
	Weights    Weights

	CriticalBlocks map[Block]bool

	ExpectedSources        int
	ExpectedSourcesByBlock map[Block][]string
	ExpectedSourcesConfig  ExpectedSourcesConfig

	ExpectedFlowTypes       map[string]bool // subset of {spot, futures}
	ExpectedDerivativeKinds map[string]bool // subset of {oi, funding, liquidations}

	TargetMarketType string // "" means no filter

	// Hysteresis windows (§4.5). hardFastReasonEnterWindowMs applies to
	// classHardFast reasons; hardReasonEnterWindowMs/ExitWindowMs apply to
	// classHard; soft reasons use the soft windows. All reasons share the
	// same exit-window family as their enter-window family per §4.5 ("fast-
	// enter variant for some hard reasons").
	HardFastReasonEnterWindowMs int64
	HardReasonEnterWindowMs     int64
	HardReasonExitWindowMs      int64
	SoftReasonEnterWindowMs     int64
	SoftReasonExitWindowMs      int64

	// ReadinessStabilityWindowMs and OutOfOrderToleranceMs are referenced by
	// upstream test suites per the Open Question in spec.md §9. They are
	// carried in Config (and loaded by internal/config) but no evaluation
	// step reads them: minute truth counts every tick immediately, and the
	// registry flags any backwards raw timestamp as non-monotonic whatever
	// its size.
	ReadinessStabilityWindowMs int64
	OutOfOrderToleranceMs      int64

	// Now, if non-nil, replaces time.Now for every internal clock read.
	// Exists purely to make tests deterministic (spec.md §9 Open Question:
	// "injected now()").
	Now func() time.Time

	MarketStatusJSON bool
}

// DefaultConfig returns the spec.md §6 defaults, clamped per §4.2 and the
// configuration table's stated minimums.
func DefaultConfig() Config {
	c := Config{
		BucketMs:                 1000,
		WarmingWindowMs:          30 * 60 * 1000,
		StartupGraceWindowMs:     0,
		LogIntervalMs:            60 * 1000,
		WSRecoveryWindowMs:       1000,
		NoDataWindowMs:           0,
		ConfidenceStaleWindowMs:  0, // 0 means "use BucketMs", resolved in clamp()
		DerivativesStaleWindowMs: 0,
		Thresholds:               Thresholds{CriticalBlock: 0.55, Overall: 0.65},
		Weights:                  Weights{Price: 0.4, Flow: 0.25, Liquidity: 0.2, Derivatives: 0.15},
		CriticalBlocks: map[Block]bool{
			BlockPrice: true, BlockFlow: true, BlockLiquidity: true, BlockDerivatives: true,
		},
		ExpectedSources:         0,
		ExpectedSourcesByBlock:  map[Block][]string{},
		ExpectedFlowTypes:       map[string]bool{"spot": true, "futures": true},
		ExpectedDerivativeKinds: map[string]bool{"oi": true, "funding": true, "liquidations": true},

		HardFastReasonEnterWindowMs: 0,
		HardReasonEnterWindowMs:     0,
		HardReasonExitWindowMs:      0,
		SoftReasonEnterWindowMs:     0,
		SoftReasonExitWindowMs:      0,
		ReadinessStabilityWindowMs:  0,
		OutOfOrderToleranceMs:       0,
	}
	return c.clamp()
}

// clamp enforces the minimums the configuration table calls out (bucketMs
// >=100, warmingWindowMs>=1000, wsRecoveryWindowMs>=1000) and resolves the
// confidenceStaleWindowMs default to bucketMs, and reads MARKET_STATUS_JSON
// as a fallback when MarketStatusJSON was left at its zero value. Called
// once at aggregator construction; never touched afterwards.
func (c Config) clamp() Config {
	if c.BucketMs < 100 {
		c.BucketMs = 100
	}
	if c.WarmingWindowMs < 1000 {
		c.WarmingWindowMs = 1000
	}
	if c.WSRecoveryWindowMs < 1000 {
		c.WSRecoveryWindowMs = 1000
	}
	if c.ConfidenceStaleWindowMs <= 0 {
		c.ConfidenceStaleWindowMs = c.BucketMs
	}
	if c.DerivativesStaleWindowMs <= 0 {
		c.DerivativesStaleWindowMs = c.ConfidenceStaleWindowMs
	}
	if c.CriticalBlocks == nil {
		c.CriticalBlocks = map[Block]bool{}
	}
	if c.ExpectedSourcesByBlock == nil {
		c.ExpectedSourcesByBlock = map[Block][]string{}
	}
	if c.ExpectedFlowTypes == nil {
		c.ExpectedFlowTypes = map[string]bool{}
	}
	if c.ExpectedDerivativeKinds == nil {
		c.ExpectedDerivativeKinds = map[string]bool{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if !c.MarketStatusJSON {
		c.MarketStatusJSON = parseBoolEnv(os.Getenv("MARKET_STATUS_JSON"), false)
	}
	return c
}

func (c Config) now() time.Time { return c.Now() }

func (c Config) nowMs() int64 { return c.now().UnixMilli() }

// parseBoolEnv interprets MARKET_STATUS_JSON per spec.md §6: case-
// insensitive {0,1,true,false,on,off}; anything else falls back to def.
func parseBoolEnv(v string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on":
		return true
	case "0", "false", "off":
		return false
	default:
		return def
	}
}
