// Package mirror keeps the remote per-user cart in step with the local cart
// store. The store is the source of truth: every local mutation is replayed
// remotely after the fact, and remote failures are logged, never undone.
package mirror

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/fjod/homeservices/pkg/logger"
	"github.com/fjod/homeservices/pkg/metrics"
	"github.com/fjod/homeservices/storefront/apiclient"
	"github.com/fjod/homeservices/storefront/domain"
	"github.com/fjod/homeservices/storefront/events"
)

// LocalCart is the part of cart.Store the syncer reads and annotates.
type LocalCart interface {
	Items() []domain.LineItem
	Line(productID string) (domain.LineItem, bool)
	Generation() uint64
	AssignServerIDs(ctx context.Context, generation uint64, ids map[string]string) bool
	Adopt(ctx context.Context, generation uint64, items []domain.LineItem) bool
	Cleared() bool
	AckCleared(ctx context.Context, generation uint64) bool
}

const queueSize = 256

type job struct {
	ctx context.Context
	run func(context.Context)
}

// Syncer subscribes to cart mutations and mirrors them on one worker
// goroutine, so remote calls leave in the order the mutations happened.
type Syncer struct {
	local   LocalCart
	remote  Remote
	bus     *events.Bus
	log     *logger.Logger
	metrics *metrics.SyncMetrics

	mu    sync.Mutex
	known map[string]string // productID -> serverID

	qmu         sync.Mutex
	queue       chan job
	running     bool
	pending     sync.WaitGroup
	unsubscribe func()
	workerDone  chan struct{}
}

func NewSyncer(local LocalCart, remote Remote, bus *events.Bus, log *logger.Logger, m *metrics.SyncMetrics) *Syncer {
	if log == nil {
		log = logger.Nop()
	}
	return &Syncer{
		local:   local,
		remote:  remote,
		bus:     bus,
		log:     log,
		metrics: m,
		known:   make(map[string]string),
	}
}

// Start begins mirroring store mutations.
func (s *Syncer) Start() {
	s.qmu.Lock()
	if s.running {
		s.qmu.Unlock()
		return
	}
	s.queue = make(chan job, queueSize)
	s.workerDone = make(chan struct{})
	s.running = true
	s.qmu.Unlock()

	go s.work(s.queue, s.workerDone)
	s.unsubscribe = s.bus.Subscribe(s.onMutation,
		events.ItemAdded, events.ItemUpdated, events.ItemRemoved, events.ItemsClear)
}

// Stop stops listening and waits for queued calls to finish. Their results
// are dropped by the store if it was cleared or closed meanwhile.
func (s *Syncer) Stop() {
	s.qmu.Lock()
	if !s.running {
		s.qmu.Unlock()
		return
	}
	s.running = false
	close(s.queue)
	done := s.workerDone
	s.qmu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	<-done
}

// Flush blocks until every queued call has completed.
func (s *Syncer) Flush() {
	s.pending.Wait()
}

func (s *Syncer) work(queue <-chan job, done chan<- struct{}) {
	defer close(done)
	for j := range queue {
		j.run(j.ctx)
		s.pending.Done()
	}
}

func (s *Syncer) enqueue(ctx context.Context, run func(context.Context)) {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	if !s.running {
		return
	}
	s.pending.Add(1)
	// the caller's cancellation must not abort a mirror call already owed
	s.queue <- job{ctx: context.WithoutCancel(ctx), run: run}
}

func (s *Syncer) onMutation(ctx context.Context, e events.Event) {
	if e.Item != nil && e.Item.ServerID != "" {
		s.remember(e.Item.ProductID, e.Item.ServerID)
	}
	switch e.Type {
	case events.ItemAdded:
		item := e.Item.Clone()
		s.enqueue(ctx, func(ctx context.Context) { s.PushAdd(ctx, item) })
	case events.ItemUpdated:
		productID, count := e.ProductID, e.Count
		s.enqueue(ctx, func(ctx context.Context) { s.PushUpdate(ctx, productID, count) })
	case events.ItemRemoved:
		productID := e.ProductID
		s.enqueue(ctx, func(ctx context.Context) { s.PushRemove(ctx, productID) })
	case events.ItemsClear:
		items := domain.CloneItems(e.Items)
		s.enqueue(ctx, func(ctx context.Context) { _ = s.RemoveLines(ctx, items) })
	}
}

// PushAdd mirrors a line that was added or merged locally. The line is
// created remotely unless its remote id is already known.
func (s *Syncer) PushAdd(ctx context.Context, item domain.LineItem) {
	generation := s.local.Generation()
	serverID := s.serverIDFor(item.ProductID, item.ServerID)

	if serverID != "" {
		count := item.Count
		_, err := s.remote.Update(ctx, serverID, Patch{Count: &count, Content: item.Content})
		if err == nil {
			s.succeed(ctx, "push_add")
			return
		}
		if !apiclient.IsStatus(err, http.StatusNotFound) {
			s.fail(ctx, "push_add", item.ProductID, err)
			return
		}
		// the remote line is gone, create it again
		s.forget(item.ProductID)
	}

	s.create(ctx, "push_add", generation, item)
}

// PushUpdate mirrors a count change. Lines without a known remote id are
// created with their current local state.
func (s *Syncer) PushUpdate(ctx context.Context, productID string, count int) {
	if count <= 0 {
		s.PushRemove(ctx, productID)
		return
	}
	generation := s.local.Generation()
	line, ok := s.local.Line(productID)
	if !ok {
		// removed locally since; the removal is mirrored on its own
		return
	}

	serverID := s.serverIDFor(productID, line.ServerID)
	if serverID != "" {
		_, err := s.remote.Update(ctx, serverID, Patch{Count: &count})
		if err == nil {
			s.succeed(ctx, "push_update")
			return
		}
		if !apiclient.IsStatus(err, http.StatusNotFound) {
			s.fail(ctx, "push_update", productID, err)
			return
		}
		s.forget(productID)
	}

	line.Count = count
	s.create(ctx, "push_update", generation, line)
}

// PushRemove deletes the remote line for productID, looking its id up
// remotely when it was never learned locally.
func (s *Syncer) PushRemove(ctx context.Context, productID string) {
	if err := s.removeRemote(ctx, productID, ""); err != nil {
		s.fail(ctx, "push_remove", productID, err)
		return
	}
	s.succeed(ctx, "push_remove")
}

// RemoveLines deletes every given line remotely and reports the failures.
func (s *Syncer) RemoveLines(ctx context.Context, items []domain.LineItem) error {
	var errs []error
	for _, it := range items {
		if err := s.removeRemote(ctx, it.ProductID, it.ServerID); err != nil {
			syncErr := &SyncError{Op: "remove_lines", ProductID: it.ProductID, Err: err}
			s.log.Warn(ctx, "remote cart line removal failed", syncErr)
			s.metrics.Failure("remove_lines")
			errs = append(errs, syncErr)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if len(items) > 0 {
		s.succeed(ctx, "remove_lines")
	}
	return nil
}

// PullAll fetches the remote cart and reconciles it with the local one.
// A cart never used on this device adopts the remote lines; otherwise local
// lines only learn their remote ids, matched by product id and then by
// title. After a local clear, remote lines matching no local line are left
// over from before it and are deleted.
func (s *Syncer) PullAll(ctx context.Context) {
	generation := s.local.Generation()
	remote, err := s.remote.List(ctx)
	if err != nil {
		s.fail(ctx, "pull_all", "", err)
		return
	}

	for _, r := range remote {
		if r.ServerID != "" {
			s.remember(r.ProductID, r.ServerID)
		}
	}

	if s.local.Adopt(ctx, generation, remote) {
		s.succeed(ctx, "pull_all")
		return
	}

	ids := matchServerIDs(s.local.Items(), remote)
	if !s.local.AssignServerIDs(ctx, generation, ids) {
		s.log.Debug(ctx, "discarding stale cart pull")
		return
	}
	for productID, serverID := range ids {
		s.remember(productID, serverID)
	}
	if s.local.Cleared() {
		if err := s.dropCleared(ctx, generation, remote, ids); err != nil {
			s.fail(ctx, "pull_all", "", err)
			return
		}
	}
	s.succeed(ctx, "pull_all")
}

// dropCleared deletes the remote lines no local line claims and, when all
// of them are gone, lets the store forget its clear.
func (s *Syncer) dropCleared(ctx context.Context, generation uint64, remote []domain.LineItem, claimed map[string]string) error {
	inUse := make(map[string]bool, len(claimed))
	for _, serverID := range claimed {
		inUse[serverID] = true
	}
	var stale []domain.LineItem
	for _, r := range remote {
		if r.ServerID != "" && !inUse[r.ServerID] {
			stale = append(stale, r)
		}
	}
	if err := s.RemoveLines(ctx, stale); err != nil {
		return err
	}
	s.local.AckCleared(ctx, generation)
	return nil
}

func matchServerIDs(local, remote []domain.LineItem) map[string]string {
	ids := make(map[string]string, len(local))
	used := make(map[int]bool, len(remote))

	for _, l := range local {
		for i, r := range remote {
			if !used[i] && r.ServerID != "" && r.ProductID == l.ProductID {
				ids[l.ProductID] = r.ServerID
				used[i] = true
				break
			}
		}
	}
	for _, l := range local {
		if _, ok := ids[l.ProductID]; ok || l.Title == "" {
			continue
		}
		for i, r := range remote {
			if !used[i] && r.ServerID != "" && r.Title == l.Title {
				ids[l.ProductID] = r.ServerID
				used[i] = true
				break
			}
		}
	}
	return ids
}

func (s *Syncer) create(ctx context.Context, op string, generation uint64, item domain.LineItem) {
	created, err := s.remote.Create(ctx, item)
	if err != nil {
		s.fail(ctx, op, item.ProductID, err)
		return
	}
	if created.ServerID != "" {
		// remembered even when stale so a queued removal can still find it
		s.remember(item.ProductID, created.ServerID)
		s.local.AssignServerIDs(ctx, generation, map[string]string{item.ProductID: created.ServerID})
	}
	s.succeed(ctx, op)
}

func (s *Syncer) removeRemote(ctx context.Context, productID, serverID string) error {
	serverID = s.serverIDFor(productID, serverID)
	if serverID == "" {
		remote, err := s.remote.List(ctx)
		if err != nil {
			return err
		}
		for _, r := range remote {
			if r.ProductID == productID {
				serverID = r.ServerID
				break
			}
		}
	}
	if serverID == "" {
		// never reached the remote cart
		return nil
	}
	err := s.remote.Delete(ctx, serverID)
	if err != nil && !apiclient.IsStatus(err, http.StatusNotFound) {
		return err
	}
	s.forget(productID)
	return nil
}

func (s *Syncer) serverIDFor(productID, hint string) string {
	if hint != "" {
		return hint
	}
	s.mu.Lock()
	id := s.known[productID]
	s.mu.Unlock()
	if id != "" {
		return id
	}
	if line, ok := s.local.Line(productID); ok {
		return line.ServerID
	}
	return ""
}

func (s *Syncer) remember(productID, serverID string) {
	s.mu.Lock()
	s.known[productID] = serverID
	s.mu.Unlock()
}

func (s *Syncer) forget(productID string) {
	s.mu.Lock()
	delete(s.known, productID)
	s.mu.Unlock()
}

func (s *Syncer) succeed(ctx context.Context, op string) {
	s.metrics.Success(op)
	s.bus.Publish(ctx, events.Event{Type: events.CartUpdated, Items: s.local.Items()})
}

func (s *Syncer) fail(ctx context.Context, op, productID string, err error) {
	s.metrics.Failure(op)
	s.log.Warn(ctx, "cart mirror call failed", &SyncError{Op: op, ProductID: productID, Err: err})
}
