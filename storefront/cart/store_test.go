package cart

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/fjod/homeservices/storefront/domain"
	"github.com/fjod/homeservices/storefront/events"
	"github.com/fjod/homeservices/storefront/localstore"
	"github.com/fjod/homeservices/storefront/price"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *localstore.Memory, *events.Bus) {
	t.Helper()
	mem := localstore.NewMemory()
	bus := events.NewBus()
	s := NewStore(mem, bus, nil)
	require.NoError(t, s.Load(context.Background()))
	return s, mem, bus
}

func persisted(t *testing.T, mem *localstore.Memory) []domain.LineItem {
	t.Helper()
	raw, err := mem.Get(context.Background(), localstore.KeyCartItems)
	require.NoError(t, err)
	var items []domain.LineItem
	require.NoError(t, json.Unmarshal(raw, &items))
	return items
}

func TestStore_AddItemToEmptyCart(t *testing.T) {
	s, mem, _ := newTestStore(t)

	s.AddItem(context.Background(), domain.LineItem{
		ProductID: "p1",
		Price:     price.Amount(price.Normalize("₹499")),
		Count:     1,
	})

	assert.Equal(t, 499.0, s.Total())
	assert.Equal(t, 1, s.Count())
	assert.Len(t, persisted(t, mem), 1)
}

func TestStore_AddItemMergesByProductID(t *testing.T) {
	s, mem, _ := newTestStore(t)
	ctx := context.Background()

	s.AddItem(ctx, domain.LineItem{ProductID: "p1", Price: 499, Count: 1})
	s.AddItem(ctx, domain.LineItem{ProductID: "p1", Price: 499, Count: 1})

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Count)
	assert.Equal(t, 998.0, s.Total())
	assert.Equal(t, 2, persisted(t, mem)[0].Count)
}

func TestStore_AddItemDefaultsCountToOne(t *testing.T) {
	s, _, _ := newTestStore(t)

	s.AddItem(context.Background(), domain.LineItem{ProductID: "p1", Price: 100})
	s.AddItem(context.Background(), domain.LineItem{ProductID: "p1", Price: 100, Count: -4})

	line, ok := s.Line("p1")
	require.True(t, ok)
	assert.Equal(t, 2, line.Count)
}

func TestStore_AddItemKeepsContentUnlessProvided(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	content := []domain.SubService{{Details: "Deep clean", Price: 300}}
	extras := []domain.SubService{{Details: "Balcony", Price: 99}}

	s.AddItem(ctx, domain.LineItem{ProductID: "p1", Title: "Bathroom", Price: 399, Content: content, SavedSelections: extras})
	s.AddItem(ctx, domain.LineItem{ProductID: "p1", Price: 1})

	line, _ := s.Line("p1")
	assert.Equal(t, content, line.Content)
	assert.Equal(t, extras, line.SavedSelections)
	assert.Equal(t, price.Amount(399), line.Price)
	assert.Equal(t, "Bathroom", line.Title)

	edited := []domain.SubService{{Details: "Deep clean", Price: 300}, {Details: "Exhaust fan", Price: 150}}
	s.AddItem(ctx, domain.LineItem{ProductID: "p1", Price: 450, SavedSelections: edited})

	line, _ = s.Line("p1")
	assert.Equal(t, 3, line.Count)
	assert.Equal(t, edited, line.SavedSelections)
	assert.Equal(t, content, line.Content)
	assert.Equal(t, price.Amount(450), line.Price)
}

func TestStore_AddItemIgnoresMissingProductID(t *testing.T) {
	s, _, _ := newTestStore(t)

	s.AddItem(context.Background(), domain.LineItem{ProductID: "  ", Price: 10})

	assert.Empty(t, s.Items())
}

func TestStore_UpdateItem(t *testing.T) {
	tests := []struct {
		name      string
		productID string
		count     int
		want      []domain.LineItem
	}{
		{
			name:      "sets count",
			productID: "p1",
			count:     3,
			want:      []domain.LineItem{{ProductID: "p1", Price: 100, Count: 3}, {ProductID: "p2", Price: 50, Count: 1}},
		},
		{
			name:      "zero removes",
			productID: "p1",
			count:     0,
			want:      []domain.LineItem{{ProductID: "p2", Price: 50, Count: 1}},
		},
		{
			name:      "negative removes",
			productID: "p2",
			count:     -1,
			want:      []domain.LineItem{{ProductID: "p1", Price: 100, Count: 1}},
		},
		{
			name:      "unknown id is a no-op",
			productID: "nope",
			count:     2,
			want:      []domain.LineItem{{ProductID: "p1", Price: 100, Count: 1}, {ProductID: "p2", Price: 50, Count: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mem, _ := newTestStore(t)
			ctx := context.Background()
			s.AddItem(ctx, domain.LineItem{ProductID: "p1", Price: 100, Count: 1})
			s.AddItem(ctx, domain.LineItem{ProductID: "p2", Price: 50, Count: 1})

			s.UpdateItem(ctx, tt.productID, tt.count)

			assert.Equal(t, tt.want, s.Items())
			assert.Equal(t, tt.want, persisted(t, mem))
		})
	}
}

func TestStore_CountsStayPositive(t *testing.T) {
	s, mem, _ := newTestStore(t)
	ctx := context.Background()
	s.AddItem(ctx, domain.LineItem{ProductID: "a", Price: 10, Count: 2})
	s.AddItem(ctx, domain.LineItem{ProductID: "b", Price: 20, Count: 1})
	s.AddItem(ctx, domain.LineItem{ProductID: "c", Price: 30, Count: 3})

	ops := []func(){
		func() { s.UpdateItem(ctx, "a", 1) },
		func() { s.UpdateItem(ctx, "b", -3) },
		func() { s.RemoveItem(ctx, "b") },
		func() { s.UpdateItem(ctx, "c", 0) },
		func() { s.UpdateItem(ctx, "a", 5) },
		func() { s.RemoveItem(ctx, "zzz") },
		func() { s.UpdateItem(ctx, "a", -1) },
	}
	for _, op := range ops {
		op()
		for _, it := range s.Items() {
			assert.Positive(t, it.Count, it.ProductID)
		}
		for _, it := range persisted(t, mem) {
			assert.Positive(t, it.Count, it.ProductID)
		}
	}
	assert.Empty(t, s.Items())
}

func TestStore_TotalIsSumOfLines(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	assert.Zero(t, s.Total())

	s.AddItem(ctx, domain.LineItem{ProductID: "a", Price: price.Amount(price.Normalize("₹1,299")), Count: 2})
	s.AddItem(ctx, domain.LineItem{ProductID: "b", Price: 0.1, Count: 3})
	s.AddItem(ctx, domain.LineItem{ProductID: "c", Price: 0.2, Count: 1})

	assert.InDelta(t, 2598.5, s.Total(), 1e-9)
	assert.Equal(t, 6, s.Count())
}

func TestStore_ClearIsAbsorbing(t *testing.T) {
	s, mem, bus := newTestStore(t)
	ctx := context.Background()
	s.AddItem(ctx, domain.LineItem{ProductID: "a", Price: 10, Count: 2})
	s.AddItem(ctx, domain.LineItem{ProductID: "b", ServerID: "srv-b", Price: 20, Count: 1})

	var cleared []domain.LineItem
	bus.Subscribe(func(_ context.Context, e events.Event) { cleared = e.Items }, events.ItemsClear)

	before := s.Generation()
	require.NoError(t, s.Clear(ctx))

	assert.Empty(t, s.Items())
	assert.Zero(t, s.Count())
	assert.Zero(t, s.Total())
	assert.Greater(t, s.Generation(), before)
	require.Len(t, cleared, 2)
	assert.Equal(t, "srv-b", cleared[1].ServerID)

	_, err := mem.Get(ctx, localstore.KeyCartItems)
	assert.ErrorIs(t, err, localstore.ErrNotFound)

	require.NoError(t, s.Clear(ctx))
	assert.Empty(t, s.Items())
}

func TestStore_ClearReportsSnapshotFailure(t *testing.T) {
	s, mem, _ := newTestStore(t)
	ctx := context.Background()
	s.AddItem(ctx, domain.LineItem{ProductID: "a", Price: 10})
	mem.FailOn("delete", errors.New("disk gone"))

	err := s.Clear(ctx)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "clear", perr.Op)
	assert.Empty(t, s.Items())
}

func TestStore_PersistenceFailureKeepsMemoryState(t *testing.T) {
	s, mem, _ := newTestStore(t)
	ctx := context.Background()
	mem.FailOn("set", errors.New("quota exceeded"))

	s.AddItem(ctx, domain.LineItem{ProductID: "a", Price: 10, Count: 2})
	s.UpdateItem(ctx, "a", 3)

	assert.Equal(t, 3, s.Count())
	_, err := mem.Get(ctx, localstore.KeyCartItems)
	assert.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestStore_LoadRestoresSnapshot(t *testing.T) {
	mem := localstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, localstore.KeyCartItems, []byte(`[
		{"productId":"p1","title":"AC service","price":"₹1,499","count":2},
		{"productId":"p1","price":5,"count":1},
		{"productId":"","price":5,"count":1},
		{"productId":"p2","price":100,"count":0},
		{"productId":"p3","id":"srv-3","price":250,"count":1}
	]`)))

	s := NewStore(mem, events.NewBus(), nil)
	require.NoError(t, s.Load(ctx))

	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "p1", items[0].ProductID)
	assert.Equal(t, price.Amount(1499), items[0].Price)
	assert.Equal(t, "srv-3", items[1].ServerID)
	assert.Equal(t, 3248.0, s.Total())
}

func TestStore_LoadDiscardsCorruptSnapshot(t *testing.T) {
	mem := localstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, localstore.KeyCartItems, []byte(`{not json`)))

	s := NewStore(mem, events.NewBus(), nil)
	require.NoError(t, s.Load(ctx))
	assert.Empty(t, s.Items())
}

func TestStore_LoadReadFailure(t *testing.T) {
	mem := localstore.NewMemory()
	mem.FailOn("get", errors.New("locked"))

	s := NewStore(mem, events.NewBus(), nil)
	err := s.Load(context.Background())

	var perr *PersistenceError
	assert.ErrorAs(t, err, &perr)
	assert.Empty(t, s.Items())
}

func TestStore_PublishesMutations(t *testing.T) {
	s, _, bus := newTestStore(t)
	ctx := context.Background()

	var got []events.Event
	bus.Subscribe(func(_ context.Context, e events.Event) { got = append(got, e) })

	s.AddItem(ctx, domain.LineItem{ProductID: "p1", Price: 10})
	s.UpdateItem(ctx, "p1", 2)
	s.RemoveItem(ctx, "p1")
	s.RemoveItem(ctx, "p1")

	require.Len(t, got, 3)
	assert.Equal(t, events.ItemAdded, got[0].Type)
	assert.Equal(t, events.ItemUpdated, got[1].Type)
	assert.Equal(t, 2, got[1].Count)
	assert.Equal(t, events.ItemRemoved, got[2].Type)
	assert.Equal(t, "p1", got[2].Item.ProductID)
}

func TestStore_StaleGenerationIsDiscarded(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	s.AddItem(ctx, domain.LineItem{ProductID: "p1", Price: 10})

	gen := s.Generation()
	require.True(t, s.AssignServerIDs(ctx, gen, map[string]string{"p1": "srv-1"}))
	line, _ := s.Line("p1")
	assert.Equal(t, "srv-1", line.ServerID)

	require.NoError(t, s.Clear(ctx))
	assert.False(t, s.AssignServerIDs(ctx, gen, map[string]string{"p1": "srv-2"}))
	assert.False(t, s.Adopt(ctx, gen, []domain.LineItem{{ProductID: "p9", Price: 1, Count: 1}}))
	assert.Empty(t, s.Items())
}

func TestStore_AdoptOnlyIntoEmptyCart(t *testing.T) {
	s, mem, _ := newTestStore(t)
	ctx := context.Background()
	remote := []domain.LineItem{{ProductID: "r1", ServerID: "srv-r1", Price: 40, Count: 2}}

	require.True(t, s.Adopt(ctx, s.Generation(), remote))
	assert.Equal(t, remote, s.Items())
	assert.Equal(t, remote, persisted(t, mem))

	assert.False(t, s.Adopt(ctx, s.Generation(), []domain.LineItem{{ProductID: "r2", Price: 1, Count: 1}}))
	assert.Len(t, s.Items(), 1)
}

func TestStore_ClearLeavesMarkerThatBlocksAdopt(t *testing.T) {
	mem := localstore.NewMemory()
	ctx := context.Background()
	s := NewStore(mem, events.NewBus(), nil)
	require.NoError(t, s.Load(ctx))
	s.AddItem(ctx, domain.LineItem{ProductID: "p1", Price: 10})
	require.NoError(t, s.Clear(ctx))

	assert.True(t, s.Cleared())
	_, err := mem.Get(ctx, localstore.KeyCartCleared)
	require.NoError(t, err)

	// a restart sees the marker and keeps the remote lines out
	s.Close()
	s = NewStore(mem, events.NewBus(), nil)
	require.NoError(t, s.Load(ctx))
	assert.True(t, s.Cleared())
	assert.False(t, s.Adopt(ctx, s.Generation(), []domain.LineItem{{ProductID: "p1", ServerID: "srv-1", Price: 10, Count: 1}}))
	assert.Empty(t, s.Items())

	require.True(t, s.AckCleared(ctx, s.Generation()))
	assert.False(t, s.Cleared())
	_, err = mem.Get(ctx, localstore.KeyCartCleared)
	assert.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestStore_AdoptRefusedOverEmptiedSnapshot(t *testing.T) {
	mem := localstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, localstore.KeyCartItems, []byte(`[]`)))

	s := NewStore(mem, events.NewBus(), nil)
	require.NoError(t, s.Load(ctx))

	assert.False(t, s.Adopt(ctx, s.Generation(), []domain.LineItem{{ProductID: "p1", Price: 10, Count: 1}}))
	assert.Empty(t, s.Items())
}

func TestStore_AckClearedStaleGeneration(t *testing.T) {
	s, mem, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Clear(ctx))
	gen := s.Generation()
	require.NoError(t, s.Clear(ctx))

	assert.False(t, s.AckCleared(ctx, gen))
	assert.True(t, s.Cleared())
	_, err := mem.Get(ctx, localstore.KeyCartCleared)
	assert.NoError(t, err)
}

func TestStore_CloseIgnoresLaterMutations(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	s.AddItem(ctx, domain.LineItem{ProductID: "p1", Price: 10})
	gen := s.Generation()

	s.Close()
	s.AddItem(ctx, domain.LineItem{ProductID: "p2", Price: 10})
	s.UpdateItem(ctx, "p1", 3)

	assert.Equal(t, 1, s.Count())
	assert.False(t, s.AssignServerIDs(ctx, gen, map[string]string{"p1": "x"}))
}
