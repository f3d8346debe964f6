// Package cart holds the device-local cart: an ordered set of line items
// keyed by product id, written through to local storage on every change.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/fjod/homeservices/pkg/logger"
	"github.com/fjod/homeservices/storefront/domain"
	"github.com/fjod/homeservices/storefront/events"
	"github.com/fjod/homeservices/storefront/localstore"
)

// Store is the cart for one signed-in session. Construct it at start-up,
// Load it, and Close it on logout.
//
// Mutations never fail from the caller's point of view: a failed snapshot
// write is logged and the in-memory state carries on.
type Store struct {
	mu         sync.Mutex
	items      []domain.LineItem
	storage    localstore.Storage
	bus        *events.Bus
	log        *logger.Logger
	generation uint64
	closed     bool
	// fresh: no snapshot and no clear has ever been recorded on this device
	fresh bool
	// cleared: a clear happened whose remote half is not confirmed yet
	cleared bool
}

func NewStore(storage localstore.Storage, bus *events.Bus, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{storage: storage, bus: bus, log: log}
}

// Load replaces the in-memory cart with the persisted snapshot. A missing
// snapshot is an empty cart; an unreadable one is logged and discarded.
func (s *Store) Load(ctx context.Context) error {
	cleared, known := s.loadTombstone(ctx)
	raw, err := s.storage.Get(ctx, localstore.KeyCartItems)
	s.mu.Lock()
	s.cleared = cleared
	s.fresh = errors.Is(err, localstore.ErrNotFound) && known && !cleared
	s.mu.Unlock()
	if errors.Is(err, localstore.ErrNotFound) {
		s.replace(nil)
		return nil
	}
	if err != nil {
		perr := &PersistenceError{Op: "load", Err: err}
		s.log.Warn(ctx, "cart snapshot could not be read, starting empty", perr)
		s.replace(nil)
		return perr
	}

	var items []domain.LineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		s.log.Warn(ctx, "cart snapshot is corrupt, starting empty", err)
		s.replace(nil)
		return nil
	}
	s.replace(sanitize(items))
	return nil
}

// loadTombstone reports whether a clear marker is stored and whether that
// could be determined at all.
func (s *Store) loadTombstone(ctx context.Context) (cleared, known bool) {
	_, err := s.storage.Get(ctx, localstore.KeyCartCleared)
	switch {
	case err == nil:
		return true, true
	case errors.Is(err, localstore.ErrNotFound):
		return false, true
	default:
		s.log.Warn(ctx, "cart clear marker could not be read", err)
		return false, false
	}
}

func (s *Store) replace(items []domain.LineItem) {
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
}

// sanitize drops lines that would break the store's invariants: no product
// id, a non-positive count, or a duplicate product id (first one wins).
func sanitize(items []domain.LineItem) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.ProductID) == "" || it.Count <= 0 {
			continue
		}
		if _, dup := seen[it.ProductID]; dup {
			continue
		}
		seen[it.ProductID] = struct{}{}
		out = append(out, it)
	}
	return out
}

// AddItem merges item into the cart. An existing line with the same product
// id has its count raised by item.Count (1 when unset); its content and
// saved selections, together with the price derived from them, are only
// replaced when item carries them.
func (s *Store) AddItem(ctx context.Context, item domain.LineItem) {
	if strings.TrimSpace(item.ProductID) == "" {
		s.log.Warn(ctx, "ignoring cart item without product id", nil)
		return
	}
	if item.Count <= 0 {
		item.Count = 1
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var result domain.LineItem
	if i := s.indexOf(item.ProductID); i >= 0 {
		line := &s.items[i]
		line.Count += item.Count
		if item.Content != nil || item.SavedSelections != nil {
			if item.Content != nil {
				line.Content = append([]domain.SubService(nil), item.Content...)
			}
			if item.SavedSelections != nil {
				line.SavedSelections = append([]domain.SubService(nil), item.SavedSelections...)
			}
			if item.Price != 0 {
				line.Price = item.Price
			}
		}
		if line.Title == "" {
			line.Title = item.Title
		}
		result = line.Clone()
	} else {
		result = item.Clone()
		s.items = append(s.items, result.Clone())
	}
	s.persistLocked(ctx, "add")
	s.mu.Unlock()

	s.bus.Publish(ctx, events.Event{Type: events.ItemAdded, ProductID: result.ProductID, Item: &result, Count: result.Count})
}

// RemoveItem deletes the line for productID. Unknown ids are ignored.
func (s *Store) RemoveItem(ctx context.Context, productID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	removed, ok := s.removeLocked(productID)
	if ok {
		s.persistLocked(ctx, "remove")
	}
	s.mu.Unlock()

	if ok {
		s.bus.Publish(ctx, events.Event{Type: events.ItemRemoved, ProductID: productID, Item: &removed})
	}
}

// UpdateItem sets the line's count; a count of zero or less removes it.
// Unknown ids are ignored.
func (s *Store) UpdateItem(ctx context.Context, productID string, count int) {
	if count <= 0 {
		s.RemoveItem(ctx, productID)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	i := s.indexOf(productID)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.items[i].Count = count
	updated := s.items[i].Clone()
	s.persistLocked(ctx, "update")
	s.mu.Unlock()

	s.bus.Publish(ctx, events.Event{Type: events.ItemUpdated, ProductID: productID, Item: &updated, Count: count})
}

// Clear empties the cart and deletes the persisted snapshot. It also leaves
// a clear marker, so lines still on the remote cart are not adopted back by
// a later pull. The in-memory cart is always emptied; the returned error
// only reports a snapshot removal that did not go through.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	snapshot := s.items
	s.items = nil
	s.generation++
	s.fresh = false
	s.cleared = true
	var err error
	if !s.closed {
		if merr := s.storage.Set(ctx, localstore.KeyCartCleared, []byte(`"1"`)); merr != nil {
			s.log.Warn(ctx, "cart clear marker write failed", &PersistenceError{Op: "clear", Err: merr})
		}
		if derr := s.storage.Delete(ctx, localstore.KeyCartItems); derr != nil {
			err = &PersistenceError{Op: "clear", Err: derr}
			s.log.Warn(ctx, "cart snapshot could not be removed", err)
		}
	}
	s.mu.Unlock()

	s.bus.Publish(ctx, events.Event{Type: events.ItemsClear, Items: snapshot})
	return err
}

// Items returns a copy of the current lines in insertion order.
func (s *Store) Items() []domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneItems(s.items)
}

// Count is the number of units across all lines, as shown on the cart badge.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		n += it.Count
	}
	return n
}

// Total is the sum of price*count over all lines.
func (s *Store) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ItemTotal(s.items).InexactFloat64()
}

// Line returns the line for productID.
func (s *Store) Line(productID string) (domain.LineItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(productID); i >= 0 {
		return s.items[i].Clone(), true
	}
	return domain.LineItem{}, false
}

// Generation changes every time the cart is cleared or closed. Async work
// captures it up front and hands it back so stale results are dropped.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// AssignServerIDs records remote ids for local lines, keyed by product id.
// It reports false, changing nothing, when generation is stale.
func (s *Store) AssignServerIDs(ctx context.Context, generation uint64, ids map[string]string) bool {
	s.mu.Lock()
	if s.closed || generation != s.generation {
		s.mu.Unlock()
		return false
	}
	changed := false
	for i := range s.items {
		if id, ok := ids[s.items[i].ProductID]; ok && id != "" && s.items[i].ServerID != id {
			s.items[i].ServerID = id
			changed = true
		}
	}
	if changed {
		s.persistLocked(ctx, "assign ids")
	}
	s.mu.Unlock()
	return true
}

// Adopt fills the cart with remote lines on first start on a new device.
// It does nothing once this device has a cart history (a snapshot, even an
// empty one, or a clear), when generation is stale, and reports whether
// the lines were taken.
func (s *Store) Adopt(ctx context.Context, generation uint64, items []domain.LineItem) bool {
	items = sanitize(domain.CloneItems(items))
	s.mu.Lock()
	if s.closed || !s.fresh || generation != s.generation || len(s.items) > 0 || len(items) == 0 {
		s.mu.Unlock()
		return false
	}
	s.items = items
	s.persistLocked(ctx, "adopt")
	s.mu.Unlock()
	return true
}

// Cleared reports whether a clear is waiting for the remote cart to be
// emptied to match.
func (s *Store) Cleared() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleared
}

// AckCleared drops the clear marker once the remote cart no longer holds
// lines from before the clear. It reports false, changing nothing, when
// generation is stale.
func (s *Store) AckCleared(ctx context.Context, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || generation != s.generation {
		return false
	}
	if !s.cleared {
		return true
	}
	if err := s.storage.Delete(ctx, localstore.KeyCartCleared); err != nil && !errors.Is(err, localstore.ErrNotFound) {
		s.log.Warn(ctx, "cart clear marker could not be removed", &PersistenceError{Op: "ack clear", Err: err})
		return false
	}
	s.cleared = false
	return true
}

// Close detaches the store. Later mutations are ignored and pending async
// results are discarded.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.generation++
}

func (s *Store) indexOf(productID string) int {
	for i := range s.items {
		if s.items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) removeLocked(productID string) (domain.LineItem, bool) {
	i := s.indexOf(productID)
	if i < 0 {
		return domain.LineItem{}, false
	}
	removed := s.items[i]
	s.items = append(s.items[:i:i], s.items[i+1:]...)
	return removed, true
}

// persistLocked writes the full line list. Callers hold s.mu so snapshot
// writes land in mutation order.
func (s *Store) persistLocked(ctx context.Context, op string) {
	s.fresh = false
	items := s.items
	if items == nil {
		items = []domain.LineItem{}
	}
	raw, err := json.Marshal(items)
	if err == nil {
		err = s.storage.Set(ctx, localstore.KeyCartItems, raw)
	}
	if err != nil {
		s.log.Warn(ctx, "cart snapshot write failed", &PersistenceError{Op: op, Err: err})
	}
}
