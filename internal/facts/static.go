package facts

import (
	"context"
	"fmt"

	"github.com/daymark/mandalagen/internal/calendar"
)

// StaticProvider serves facts from an in-memory table, keyed by image and
// date. Used by tests and one-off renders with known inputs.
type StaticProvider struct {
	entries map[string]Daily
}

// NewStaticProvider creates an empty static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{entries: make(map[string]Daily)}
}

// Set registers the facts for an (image, date) pair.
func (p *StaticProvider) Set(image string, date calendar.Date, daily Daily) {
	p.entries[image+"/"+date.Compact()] = daily
}

// FactsFor returns the registered facts for the pair.
func (p *StaticProvider) FactsFor(ctx context.Context, image string, date calendar.Date) (Daily, error) {
	daily, ok := p.entries[image+"/"+date.Compact()]
	if !ok {
		return Daily{}, fmt.Errorf("%w: %s@%s", ErrNoObservations, image, date)
	}
	return daily, nil
}

// Close is a no-op.
func (p *StaticProvider) Close() error {
	return nil
}

// Verify StaticProvider implements Provider.
var _ Provider = (*StaticProvider)(nil)
