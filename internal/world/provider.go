package world

import (
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/glyphkeeper/glyphkeeper/internal/tooling"
)

// Provider is the world-state tool group. Every tool resolves names against
// the store and returns JSON-serializable results; mutations go through
// sjson so scenario stats can carry arbitrary shapes.
type Provider struct {
	store *Store
	log   *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewProvider returns a provider over the given store. rng may be nil, in
// which case a time-seeded source is used; tests pass a fixed seed.
func NewProvider(store *Store, rng *rand.Rand, log *zap.Logger) *Provider {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{store: store, rng: rng, log: log}
}

// Definitions returns the world tool group for dispatcher registration.
func (p *Provider) Definitions() []tooling.Definition {
	return []tooling.Definition{
		p.getLocationViewDefinition(),
		p.getLocationStatDefinition(),
		p.moveEntityDefinition(),
		p.inspectTargetDefinition(),
		p.interactWithCharacterDefinition(),
		p.rollDiceDefinition(),
		p.performSkillCheckDefinition(),
	}
}

func (p *Provider) roll(expr string) (RollResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return RollDice(p.rng, expr)
}
