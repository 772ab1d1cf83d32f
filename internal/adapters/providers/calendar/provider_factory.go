package calendar

import (
	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/domain/providers"
	"github.com/proagenda/calendar-engine/pkg/config"
)

// Registry maps source tags to their calendar adapters.
type Registry struct {
	adapters   map[entities.EventSource]providers.CalendarProvider
	refreshers map[entities.EventSource]providers.TokenRefresher
}

// NewRegistry builds the production registry from configuration.
func NewRegistry(cfg *config.ProvidersConfig) *Registry {
	google := NewGoogleAdapter(cfg.GoogleBaseURL, cfg.GoogleTokenURL, cfg.RequestTimeout)
	microsoft := NewMicrosoftAdapter(cfg.MicrosoftBaseURL, cfg.MicrosoftTokenURL, cfg.RequestTimeout)

	registry := NewEmptyRegistry()
	registry.Register(google, google)
	registry.Register(microsoft, microsoft)
	return registry
}

// NewEmptyRegistry builds a registry for tests and dev to populate.
func NewEmptyRegistry() *Registry {
	return &Registry{
		adapters:   make(map[entities.EventSource]providers.CalendarProvider),
		refreshers: make(map[entities.EventSource]providers.TokenRefresher),
	}
}

// Register adds an adapter, with an optional token refresher.
func (r *Registry) Register(adapter providers.CalendarProvider, refresher providers.TokenRefresher) {
	r.adapters[adapter.Source()] = adapter
	if refresher != nil {
		r.refreshers[adapter.Source()] = refresher
	}
}

// Get returns the adapter for a source tag.
func (r *Registry) Get(source entities.EventSource) (providers.CalendarProvider, bool) {
	adapter, ok := r.adapters[source]
	return adapter, ok
}

// Refresher returns the token refresher for a source tag.
func (r *Registry) Refresher(source entities.EventSource) (providers.TokenRefresher, bool) {
	refresher, ok := r.refreshers[source]
	return refresher, ok
}

// Sources returns every registered source tag.
func (r *Registry) Sources() []entities.EventSource {
	sources := make([]entities.EventSource, 0, len(r.adapters))
	for source := range r.adapters {
		sources = append(sources, source)
	}
	return sources
}
