package portfolio

import "sync"

// Position is a held quantity of one symbol plus its portfolio weight.
// Count may be fractional. Weight is always derived, never set directly.
type Position struct {
	Symbol string  `json:"symbol"`
	Count  float64 `json:"count"`
	Weight float64 `json:"weight"`
}

// Book tracks positions for one account. It is shared by reference across
// engine instances, so every mutation is an atomic read-modify-write under
// the lock and weights are recomputed before the lock is released.
type Book struct {
	mu        sync.RWMutex
	positions []Position
}

func NewBook(positions []Position) *Book {
	b := &Book{positions: append([]Position(nil), positions...)}
	b.mu.Lock()
	b.reweigh()
	b.mu.Unlock()
	return b
}

// Quotes returns a copy of all positions.
func (b *Book) Quotes() []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Position, len(b.positions))
	copy(out, b.positions)
	return out
}

// Get returns the position for a symbol, if held.
func (b *Book) Get(symbol string) (Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, p := range b.positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Position{}, false
}

// IsHeld reports whether the symbol has a nonzero position.
func (b *Book) IsHeld(symbol string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, p := range b.positions {
		if p.Symbol == symbol && p.Count > 0 {
			return true
		}
	}
	return false
}

// AddPosition adds count shares of a symbol, merging into an existing
// position if one exists.
func (b *Book) AddPosition(symbol string, count float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.positions {
		if b.positions[i].Symbol == symbol {
			b.positions[i].Count += count
			b.reweigh()
			return
		}
	}
	b.positions = append(b.positions, Position{Symbol: symbol, Count: count})
	b.reweigh()
}

// RemovePosition removes up to count shares of a symbol. The position is
// floored at zero and dropped from the book when fully closed.
func (b *Book) RemovePosition(symbol string, count float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.positions {
		if b.positions[i].Symbol != symbol {
			continue
		}
		b.positions[i].Count -= count
		if b.positions[i].Count <= 0 {
			b.positions = append(b.positions[:i], b.positions[i+1:]...)
		}
		b.reweigh()
		return
	}
}

// TotalCount returns the sum of all position counts.
func (b *Book) TotalCount() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.totalCount()
}

func (b *Book) totalCount() float64 {
	total := 0.0
	for _, p := range b.positions {
		total += p.Count
	}
	return total
}

// reweigh recomputes every weight as count/total. Callers hold the lock.
func (b *Book) reweigh() {
	total := b.totalCount()
	for i := range b.positions {
		if total > 0 {
			b.positions[i].Weight = b.positions[i].Count / total
		} else {
			b.positions[i].Weight = 0
		}
	}
}
