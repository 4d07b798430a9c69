package migration

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"cartengine/internal/cart"
	"cartengine/internal/config"
	"cartengine/internal/domain"
	"cartengine/internal/storage"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, e domain.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
}

func (d *recordingDispatcher) merged() []domain.Merged {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.Merged
	for _, e := range d.events {
		if m, ok := e.(domain.Merged); ok {
			out = append(out, m)
		}
	}
	return out
}

func newTestService(t *testing.T, strategy string) (*Service, *recordingDispatcher) {
	t.Helper()
	dispatcher := &recordingDispatcher{}
	return New(storage.NewMemory(), dispatcher, cart.Options{}, strategy, nil), dispatcher
}

func item(id string, price string, qty int) domain.CartItem {
	return domain.CartItem{ID: id, Name: "Item " + id, Price: decimal.RequireFromString(price), Quantity: qty}
}

func mustAdd(t *testing.T, c *cart.Cart, it domain.CartItem) {
	t.Helper()
	if _, err := c.Add(context.Background(), it); err != nil {
		t.Fatalf("add %s: %v", it.ID, err)
	}
}

func TestMigrateEmptyGuestCartIsNoop(t *testing.T) {
	ctx := context.Background()
	svc, dispatcher := newTestService(t, "")

	migrated, err := svc.MigrateGuestCartToUser(ctx, "guest-1", "user-1")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if migrated {
		t.Fatal("empty guest cart must report false")
	}
	if len(dispatcher.merged()) != 0 {
		t.Fatal("empty guest cart must not emit merged event")
	}
}

func TestMigrateIntoAbsentUserCartSwapsIdentifier(t *testing.T) {
	ctx := context.Background()
	svc, dispatcher := newTestService(t, "")

	guest := svc.Cart("guest-1")
	mustAdd(t, guest, item("tee", "10", 2))
	guestID, err := guest.ID(ctx)
	if err != nil {
		t.Fatalf("guest id: %v", err)
	}

	migrated, err := svc.MigrateGuestCartToUser(ctx, "guest-1", "user-1")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !migrated {
		t.Fatal("expected migration to report true")
	}

	empty, _ := guest.IsEmpty(ctx)
	if !empty {
		t.Fatal("expected guest cart gone")
	}

	user := svc.Cart("user-1")
	items, _ := user.Items(ctx)
	if len(items) != 1 || items[0].ID != "tee" || items[0].Quantity != 2 {
		t.Fatalf("unexpected user items: %v", items)
	}
	userID, _ := user.ID(ctx)
	if userID != guestID {
		t.Fatal("identifier swap must preserve the opaque cart id")
	}

	events := dispatcher.merged()
	if len(events) != 1 || events[0].TotalMerged != 1 || events[0].HadConflicts {
		t.Fatalf("unexpected merged event: %+v", events)
	}
}

func TestMigrateAddQuantities(t *testing.T) {
	ctx := context.Background()
	svc, dispatcher := newTestService(t, config.MergeAddQuantities)

	guest := svc.Cart("guest-1")
	mustAdd(t, guest, item("tee", "10", 2))
	mustAdd(t, guest, item("mug", "5", 1))

	user := svc.Cart("user-1")
	mustAdd(t, user, item("tee", "10", 1))

	migrated, err := svc.MigrateGuestCartToUser(ctx, "guest-1", "user-1")
	if err != nil || !migrated {
		t.Fatalf("migrate: migrated=%t err=%v", migrated, err)
	}

	items, _ := user.Items(ctx)
	byID := map[string]domain.CartItem{}
	for _, it := range items {
		byID[it.ID] = it
	}
	if byID["tee"].Quantity != 3 {
		t.Fatalf("expected summed quantity 3, got %d", byID["tee"].Quantity)
	}
	if byID["mug"].Quantity != 1 {
		t.Fatalf("expected mug carried over, got %+v", byID["mug"])
	}

	empty, _ := guest.IsEmpty(ctx)
	if !empty {
		t.Fatal("guest cart must be cleared after migration")
	}

	events := dispatcher.merged()
	if len(events) != 1 || !events[0].HadConflicts {
		t.Fatalf("expected merged event with conflicts, got %+v", events)
	}
}

func TestMigrateKeepHighestQuantity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, config.MergeKeepHighestQuantity)

	guest := svc.Cart("guest-1")
	mustAdd(t, guest, item("tee", "10", 5))
	mustAdd(t, guest, item("mug", "5", 1))

	user := svc.Cart("user-1")
	mustAdd(t, user, item("tee", "10", 2))
	mustAdd(t, user, item("mug", "5", 4))

	if _, err := svc.MigrateGuestCartToUser(ctx, "guest-1", "user-1"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	items, _ := user.Items(ctx)
	byID := map[string]int{}
	for _, it := range items {
		byID[it.ID] = it.Quantity
	}
	if byID["tee"] != 5 {
		t.Fatalf("expected guest's higher quantity 5, got %d", byID["tee"])
	}
	if byID["mug"] != 4 {
		t.Fatalf("expected user's higher quantity 4, got %d", byID["mug"])
	}
}

func TestMigrateKeepUserCart(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, config.MergeKeepUserCart)

	guest := svc.Cart("guest-1")
	mustAdd(t, guest, item("tee", "12", 9))

	user := svc.Cart("user-1")
	mustAdd(t, user, item("tee", "10", 2))

	if _, err := svc.MigrateGuestCartToUser(ctx, "guest-1", "user-1"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	items, _ := user.Items(ctx)
	if len(items) != 1 || items[0].Quantity != 2 || !items[0].Price.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected user line untouched, got %+v", items)
	}
}

func TestMigrateReplaceWithGuest(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, config.MergeReplaceWithGuest)

	guestItem := item("tee", "12", 9)
	guestItem.AssociatedModel = "sku-guest"
	guest := svc.Cart("guest-1")
	mustAdd(t, guest, guestItem)

	userItem := item("tee", "10", 2)
	userItem.AssociatedModel = "sku-user"
	user := svc.Cart("user-1")
	mustAdd(t, user, userItem)

	if _, err := svc.MigrateGuestCartToUser(ctx, "guest-1", "user-1"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	items, _ := user.Items(ctx)
	if len(items) != 1 || items[0].Quantity != 9 || !items[0].Price.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("expected guest line to replace user's, got %+v", items)
	}
	if items[0].AssociatedModel != "sku-guest" {
		t.Fatalf("expected guest model reference to replace user's, got %q", items[0].AssociatedModel)
	}
}

func TestMigrateCopiesConditionsTargetWins(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, "")

	guest := svc.Cart("guest-1")
	mustAdd(t, guest, item("tee", "10", 1))
	if err := guest.AddCondition(ctx, domain.CartCondition{Name: "promo", Type: "discount", Target: domain.TargetSubtotal, Value: "-5"}); err != nil {
		t.Fatalf("guest condition: %v", err)
	}
	if err := guest.AddCondition(ctx, domain.CartCondition{Name: "gift-wrap", Type: "fee", Target: domain.TargetTotal, Value: "2"}); err != nil {
		t.Fatalf("guest condition: %v", err)
	}

	user := svc.Cart("user-1")
	mustAdd(t, user, item("mug", "5", 1))
	if err := user.AddCondition(ctx, domain.CartCondition{Name: "promo", Type: "discount", Target: domain.TargetSubtotal, Value: "-10"}); err != nil {
		t.Fatalf("user condition: %v", err)
	}

	if _, err := svc.MigrateGuestCartToUser(ctx, "guest-1", "user-1"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	conds, _ := user.Conditions(ctx)
	byName := map[string]domain.CartCondition{}
	for _, c := range conds {
		byName[c.Name] = c
	}
	if byName["promo"].Value != "-10" {
		t.Fatalf("existing user condition must win, got %v", byName["promo"])
	}
	if byName["gift-wrap"].Value != "2" {
		t.Fatalf("expected guest-only condition carried over, got %v", byName["gift-wrap"])
	}
}

func TestBackupUserCartToGuest(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, "")

	backed, err := svc.BackupUserCartToGuest(ctx, "user-1", "guest-1")
	if err != nil || backed {
		t.Fatalf("empty user cart must report false, got backed=%t err=%v", backed, err)
	}

	user := svc.Cart("user-1")
	mustAdd(t, user, item("tee", "10", 2))

	backed, err = svc.BackupUserCartToGuest(ctx, "user-1", "guest-1")
	if err != nil || !backed {
		t.Fatalf("backup: backed=%t err=%v", backed, err)
	}

	// Backup copies without clearing the source.
	items, _ := user.Items(ctx)
	if len(items) != 1 {
		t.Fatalf("user cart must keep its items, got %v", items)
	}
	guestItems, _ := svc.Cart("guest-1").Items(ctx)
	if len(guestItems) != 1 || guestItems[0].ID != "tee" {
		t.Fatalf("expected copied guest items, got %v", guestItems)
	}
}

func TestActiveCart(t *testing.T) {
	svc, _ := newTestService(t, "")

	if got := svc.ActiveCart(true, "user-1", "session-1"); got.Identifier() != "user-1" {
		t.Fatalf("expected user cart when authenticated, got %s", got.Identifier())
	}
	if got := svc.ActiveCart(false, "user-1", "session-1"); got.Identifier() != "session-1" {
		t.Fatalf("expected session cart when anonymous, got %s", got.Identifier())
	}
}

func TestForgetIdentifier(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, "")

	c := svc.Cart("user-1")
	mustAdd(t, c, item("tee", "10", 1))
	mustAdd(t, c.SetInstance("wishlist"), item("mug", "5", 1))

	if err := svc.ForgetIdentifier(ctx, "user-1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	empty, _ := c.IsEmpty(ctx)
	if !empty {
		t.Fatal("expected default instance gone")
	}
	empty, _ = c.SetInstance("wishlist").IsEmpty(ctx)
	if !empty {
		t.Fatal("expected wishlist instance gone")
	}
}
