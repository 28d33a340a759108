// Package config loads the readiness aggregator's YAML configuration file,
// grounded on internal/config/providers.go's LoadProvidersConfig/Validate
// pattern in the teacher repo: read the whole file, unmarshal with
// gopkg.in/yaml.v3, validate, return a typed error on any problem.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/marketready/internal/readiness"
	"github.com/sawpanic/marketready/internal/registry"
)

// ExpectedSourcesFile is the on-disk shape of the layered expected-sources
// config (spec.md §4.2/§6): per-marketType defaults, plus optional
// per-symbol overrides, each a block -> source-id list.
type ExpectedSourcesFile struct {
	Default  map[string]map[string][]string            `yaml:"default"`
	BySymbol map[string]map[string]map[string][]string `yaml:"by_symbol"`
}

// ThresholdsFile mirrors readiness.Thresholds.
type ThresholdsFile struct {
	CriticalBlock float64 `yaml:"critical_block"`
	Overall       float64 `yaml:"overall"`
}

// WeightsFile mirrors readiness.Weights.
type WeightsFile struct {
	Price       float64 `yaml:"price"`
	Flow        float64 `yaml:"flow"`
	Liquidity   float64 `yaml:"liquidity"`
	Derivatives float64 `yaml:"derivatives"`
}

// HysteresisFile mirrors the five hysteresis window fields of
// readiness.Config.
type HysteresisFile struct {
	HardFastReasonEnterWindowMs int64 `yaml:"hard_fast_reason_enter_window_ms"`
	HardReasonEnterWindowMs     int64 `yaml:"hard_reason_enter_window_ms"`
	HardReasonExitWindowMs      int64 `yaml:"hard_reason_exit_window_ms"`
	SoftReasonEnterWindowMs     int64 `yaml:"soft_reason_enter_window_ms"`
	SoftReasonExitWindowMs      int64 `yaml:"soft_reason_exit_window_ms"`
}

// File is the top-level YAML document, covering every option in spec.md
// §6's configuration table.
type File struct {
	BucketMs                 int64    `yaml:"bucket_ms"`
	WarmingWindowMs          int64    `yaml:"warming_window_ms"`
	StartupGraceWindowMs     int64    `yaml:"startup_grace_window_ms"`
	LogIntervalMs            int64    `yaml:"log_interval_ms"`
	WSRecoveryWindowMs       int64    `yaml:"ws_recovery_window_ms"`
	NoDataWindowMs           int64    `yaml:"no_data_window_ms"`
	ConfidenceStaleWindowMs  int64    `yaml:"confidence_stale_window_ms"`
	DerivativesStaleWindowMs int64    `yaml:"derivatives_stale_window_ms"`
	CriticalBlocks           []string `yaml:"critical_blocks"`

	Thresholds ThresholdsFile `yaml:"thresholds"`
	Weights    WeightsFile    `yaml:"weights"`

	ExpectedSources         int                 `yaml:"expected_sources"`
	ExpectedSourcesByBlock  map[string][]string `yaml:"expected_sources_by_block"`
	ExpectedSourcesConfig   ExpectedSourcesFile `yaml:"expected_sources_config"`
	ExpectedFlowTypes       []string            `yaml:"expected_flow_types"`
	ExpectedDerivativeKinds []string            `yaml:"expected_derivative_kinds"`

	TargetMarketType string `yaml:"target_market_type"`

	Hysteresis HysteresisFile `yaml:"hysteresis"`

	ReadinessStabilityWindowMs int64 `yaml:"readiness_stability_window_ms"`
	OutOfOrderToleranceMs      int64 `yaml:"out_of_order_tolerance_ms"`

	MarketStatusJSON *bool `yaml:"market_status_json"`

	SourceRegistry SourceRegistryFile `yaml:"source_registry"`
}

// SourceRegistryFile configures the Source Registry's optional persistence
// (spec.md §5 "Shared resources"). Leaving redis_addr empty keeps the
// registry purely in-memory, which is the default.
type SourceRegistryFile struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisDB       int    `yaml:"redis_db"`
	SnapshotTTLMs int64  `yaml:"snapshot_ttl_ms"`
}

// Load reads and parses path, validates it, and converts it into a
// readiness.Config layered on top of readiness.DefaultConfig() — any field
// left at its YAML zero value keeps the default, except that a weights
// section with any weight set replaces all four default weights (unset
// ones become 0).
func Load(path string) (readiness.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return readiness.Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return readiness.Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return readiness.Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return f.ToReadinessConfig(), nil
}

// LoadSnapshotStore re-reads path's source_registry section and returns a
// registry.SnapshotStore backed by Redis when redis_addr is configured, or
// nil when persistence isn't configured — the registry then stays purely
// in-memory, matching spec.md §1's default.
func LoadSnapshotStore(path string) (registry.SnapshotStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if f.SourceRegistry.RedisAddr == "" {
		return nil, nil
	}

	ttl := time.Duration(f.SourceRegistry.SnapshotTTLMs) * time.Millisecond
	return registry.NewRedisStore(f.SourceRegistry.RedisAddr, f.SourceRegistry.RedisDB, ttl), nil
}

// Validate checks the cross-field invariants the loader itself is
// responsible for; readiness.Config.clamp() still enforces its own
// minimums afterwards.
func (f File) Validate() error {
	if f.Thresholds.CriticalBlock < 0 || f.Thresholds.CriticalBlock > 1 {
		return fmt.Errorf("thresholds.critical_block must be in [0,1], got %f", f.Thresholds.CriticalBlock)
	}
	if f.Thresholds.Overall < 0 || f.Thresholds.Overall > 1 {
		return fmt.Errorf("thresholds.overall must be in [0,1], got %f", f.Thresholds.Overall)
	}
	for _, b := range f.CriticalBlocks {
		if !isKnownBlock(b) {
			return fmt.Errorf("critical_blocks: unknown block %q", b)
		}
	}
	for _, b := range f.ExpectedFlowTypes {
		if b != "spot" && b != "futures" {
			return fmt.Errorf("expected_flow_types: unknown sub-kind %q", b)
		}
	}
	for _, b := range f.ExpectedDerivativeKinds {
		if b != "oi" && b != "funding" && b != "liquidations" {
			return fmt.Errorf("expected_derivative_kinds: unknown sub-kind %q", b)
		}
	}
	return nil
}

func isKnownBlock(name string) bool {
	switch readiness.Block(name) {
	case readiness.BlockPrice, readiness.BlockFlow, readiness.BlockLiquidity, readiness.BlockDerivatives:
		return true
	default:
		return false
	}
}

func blockSetFrom(names []string) map[readiness.Block]bool {
	if names == nil {
		return nil
	}
	out := make(map[readiness.Block]bool, len(names))
	for _, n := range names {
		out[readiness.Block(n)] = true
	}
	return out
}

func stringSetFrom(names []string) map[string]bool {
	if names == nil {
		return nil
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

func blockSourceMap(in map[string][]string) map[readiness.Block][]string {
	if in == nil {
		return nil
	}
	out := make(map[readiness.Block][]string, len(in))
	for k, v := range in {
		out[readiness.Block(k)] = v
	}
	return out
}

func (f ExpectedSourcesFile) toReadiness() readiness.ExpectedSourcesConfig {
	out := readiness.ExpectedSourcesConfig{}
	if f.Default != nil {
		out.Default = make(map[string]map[readiness.Block][]string, len(f.Default))
		for mt, byBlock := range f.Default {
			out.Default[mt] = blockSourceMap(byBlock)
		}
	}
	if f.BySymbol != nil {
		out.BySymbol = make(map[string]map[string]map[readiness.Block][]string, len(f.BySymbol))
		for symbol, byMarket := range f.BySymbol {
			m := make(map[string]map[readiness.Block][]string, len(byMarket))
			for mt, byBlock := range byMarket {
				m[mt] = blockSourceMap(byBlock)
			}
			out.BySymbol[symbol] = m
		}
	}
	return out
}

// ToReadinessConfig converts the parsed file into a readiness.Config,
// layered on readiness.DefaultConfig so unset YAML fields keep spec.md §6's
// defaults (the weights group is replaced as a whole when any weight is
// set). clamp() is applied by readiness.New, not here.
func (f File) ToReadinessConfig() readiness.Config {
	c := readiness.DefaultConfig()

	if f.BucketMs != 0 {
		c.BucketMs = f.BucketMs
	}
	if f.WarmingWindowMs != 0 {
		c.WarmingWindowMs = f.WarmingWindowMs
	}
	if f.StartupGraceWindowMs != 0 {
		c.StartupGraceWindowMs = f.StartupGraceWindowMs
	}
	if f.LogIntervalMs != 0 {
		c.LogIntervalMs = f.LogIntervalMs
	}
	if f.WSRecoveryWindowMs != 0 {
		c.WSRecoveryWindowMs = f.WSRecoveryWindowMs
	}
	if f.NoDataWindowMs != 0 {
		c.NoDataWindowMs = f.NoDataWindowMs
	}
	if f.ConfidenceStaleWindowMs != 0 {
		c.ConfidenceStaleWindowMs = f.ConfidenceStaleWindowMs
	}
	if f.DerivativesStaleWindowMs != 0 {
		c.DerivativesStaleWindowMs = f.DerivativesStaleWindowMs
	}
	if set := blockSetFrom(f.CriticalBlocks); set != nil {
		c.CriticalBlocks = set
	}
	if f.Thresholds.CriticalBlock != 0 {
		c.Thresholds.CriticalBlock = f.Thresholds.CriticalBlock
	}
	if f.Thresholds.Overall != 0 {
		c.Thresholds.Overall = f.Thresholds.Overall
	}
	if f.Weights != (WeightsFile{}) {
		c.Weights = readiness.Weights(f.Weights)
	}
	if f.ExpectedSources != 0 {
		c.ExpectedSources = f.ExpectedSources
	}
	if m := blockSourceMap(f.ExpectedSourcesByBlock); m != nil {
		c.ExpectedSourcesByBlock = m
	}
	if f.ExpectedSourcesConfig.Default != nil || f.ExpectedSourcesConfig.BySymbol != nil {
		c.ExpectedSourcesConfig = f.ExpectedSourcesConfig.toReadiness()
	}
	if set := stringSetFrom(f.ExpectedFlowTypes); set != nil {
		c.ExpectedFlowTypes = set
	}
	if set := stringSetFrom(f.ExpectedDerivativeKinds); set != nil {
		c.ExpectedDerivativeKinds = set
	}
	if f.TargetMarketType != "" {
		c.TargetMarketType = f.TargetMarketType
	}
	if f.Hysteresis != (HysteresisFile{}) {
		c.HardFastReasonEnterWindowMs = f.Hysteresis.HardFastReasonEnterWindowMs
		c.HardReasonEnterWindowMs = f.Hysteresis.HardReasonEnterWindowMs
		c.HardReasonExitWindowMs = f.Hysteresis.HardReasonExitWindowMs
		c.SoftReasonEnterWindowMs = f.Hysteresis.SoftReasonEnterWindowMs
		c.SoftReasonExitWindowMs = f.Hysteresis.SoftReasonExitWindowMs
	}
	if f.ReadinessStabilityWindowMs != 0 {
		c.ReadinessStabilityWindowMs = f.ReadinessStabilityWindowMs
	}
	if f.OutOfOrderToleranceMs != 0 {
		c.OutOfOrderToleranceMs = f.OutOfOrderToleranceMs
	}
	if f.MarketStatusJSON != nil {
		c.MarketStatusJSON = *f.MarketStatusJSON
	}

	return c
}
