// Package pool holds the registered oracle identities.
//
// A Builder collects identities while registration runs; Seal turns it into
// an immutable Pool that any number of goroutines may read without locking.
package pool

import (
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/GPTx-global/flightoracle/oracle/types"
)

type Builder struct {
	mu       sync.Mutex
	maxIndex int
	seen     map[common.Address]struct{}
	items    []types.Identity
	sealed   bool
}

// NewBuilder returns a builder accepting indexes in [0, maxIndex).
func NewBuilder(maxIndex int) *Builder {
	return &Builder{
		maxIndex: maxIndex,
		seen:     make(map[common.Address]struct{}),
		items:    make([]types.Identity, 0),
	}
}

func (b *Builder) Add(identity types.Identity) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return types.ErrPoolSealed
	}

	if _, ok := b.seen[identity.Address]; ok {
		return errorsmod.Wrapf(types.ErrDuplicateIdentity, "%s", identity.Address.Hex())
	}

	if !identity.Indexes.Within(b.maxIndex) {
		return errorsmod.Wrapf(types.ErrInvalidIndexes, "%v not below %d", identity.Indexes, b.maxIndex)
	}

	b.seen[identity.Address] = struct{}{}
	b.items = append(b.items, identity)

	return nil
}

func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.items)
}

// Seal freezes the builder and returns the pool. Later calls return a pool
// with the same contents.
func (b *Builder) Seal() *Pool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sealed = true

	identities := make([]types.Identity, len(b.items))
	copy(identities, b.items)

	return &Pool{identities: identities}
}

type Pool struct {
	identities []types.Identity
}

// New builds a sealed pool directly from identities, skipping validation.
func New(identities ...types.Identity) *Pool {
	b := make([]types.Identity, len(identities))
	copy(b, identities)

	return &Pool{identities: b}
}

func (p *Pool) Size() int {
	return len(p.identities)
}

// All returns a copy of every identity in registration order.
func (p *Pool) All() []types.Identity {
	out := make([]types.Identity, len(p.identities))
	copy(out, p.identities)

	return out
}

// Matching returns, in registration order, every identity holding index.
// An identity is returned once even if several of its indexes are equal.
func (p *Pool) Matching(index uint8) []types.Identity {
	out := make([]types.Identity, 0)
	for _, identity := range p.identities {
		if identity.Indexes.Contains(index) {
			out = append(out, identity)
		}
	}

	return out
}
