package strategy

import (
	"fmt"
	"sync"

	"github.com/jiaming2012/portfolio-kernel/src/portfolio"
)

// Constructor builds a strategy of a registered kind on top of a portfolio.
type Constructor func(p *portfolio.Portfolio, id, instrumentID int, name string) (*Strategy, error)

var (
	constructorsMu sync.RWMutex
	constructors   = make(map[string]Constructor)
)

// Register makes a strategy kind available to NewFromKind. Registering the
// same kind twice replaces the constructor; plugins re-register on reload.
func Register(kind string, constructor Constructor) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()
	constructors[kind] = constructor
}

// NewFromKind instantiates a registered strategy kind.
func NewFromKind(kind string, p *portfolio.Portfolio, id, instrumentID int, name string) (*Strategy, error) {
	constructorsMu.RLock()
	constructor, found := constructors[kind]
	constructorsMu.RUnlock()

	if !found {
		return nil, fmt.Errorf("NewFromKind: unknown strategy kind %q", kind)
	}
	return constructor(p, id, instrumentID, name)
}

// Kinds lists the registered strategy kinds.
func Kinds() []string {
	constructorsMu.RLock()
	defer constructorsMu.RUnlock()

	kinds := make([]string, 0, len(constructors))
	for kind := range constructors {
		kinds = append(kinds, kind)
	}
	return kinds
}
