package main

import (
	"context"

	"github.com/sawpanic/marketready/internal/bus"
	"github.com/sawpanic/marketready/internal/readiness"
	"github.com/sawpanic/marketready/internal/registry"
)

// registryPersister writes the source registry's snapshot back through its
// configured SnapshotStore every time a status tick is published, so a
// restarted process picks up where the prior one left off (spec.md §5
// "Shared resources"). Persist is a no-op when reg has no store configured.
type registryPersister struct {
	reg *registry.Registry
}

func newRegistryPersister(reg *registry.Registry) *registryPersister {
	return &registryPersister{reg: reg}
}

func (p *registryPersister) Subscribe(b bus.EventBus) bus.Token {
	return b.Subscribe("system:market_data_status", func(_ string, payload any) {
		status, ok := payload.(readiness.MarketDataStatusPayload)
		if !ok {
			return
		}
		if err := p.reg.Persist(context.Background(), status.Symbol, status.MarketType); err != nil {
			logger.Warn("registry persist failed", map[string]any{
				"symbol":      status.Symbol,
				"market_type": status.MarketType,
				"error":       err.Error(),
			})
		}
	})
}
