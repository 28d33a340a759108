package readiness

// resolveExpectedSources is the Expected-Sources Resolver of spec.md §4.2:
// a pure function mapping (symbol, marketType, block) to an optional
// ordered list of expected source-ids. The "optional" is the second return
// value: false means no layer of the config discovered anything for this
// key at all, which is what drives EXPECTED_SOURCES_MISSING_CONFIG
// upstream — as opposed to a layer explicitly configuring an empty list,
// which means the block simply isn't expected to have sources.
//
// Layering, most specific first:
//  1. cfg.ExpectedSourcesConfig per-symbol/per-marketType override
//  2. cfg.ExpectedSourcesConfig per-marketType default
//  3. cfg.ExpectedSourcesByBlock global per-block fallback
func resolveExpectedSources(cfg Config, symbol, marketType string, block Block) ([]string, bool) {
	if v, ok := cfg.ExpectedSourcesConfig.lookup(symbol, marketType, block); ok {
		return v, true
	}
	if v, ok := cfg.ExpectedSourcesByBlock[block]; ok {
		return v, true
	}
	return nil, false
}
