package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"cartengine/internal/domain"
)

func postgresPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("ping db: %v", err)
	}
	return pool
}

func resetCarts(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(ctx, `TRUNCATE carts`); err != nil {
		t.Fatalf("truncate carts: %v", err)
	}
}

func TestPostgres_IntegrationReadWrite(t *testing.T) {
	ctx := context.Background()
	pool := postgresPool(ctx, t)
	defer pool.Close()
	resetCarts(ctx, t, pool)

	s := NewPostgres(pool, PostgresOptions{})

	v, err := s.PutItems(ctx, "user-1", "default", []domain.CartItem{testItem("a", 2)}, VersionAny)
	if err != nil {
		t.Fatalf("put items: %v", err)
	}
	if v != 1 {
		t.Fatalf("expected version 1, got %d", v)
	}

	items, err := s.GetItems(ctx, "user-1", "default")
	if err != nil {
		t.Fatalf("get items: %v", err)
	}
	if len(items) != 1 || items[0].ID != "a" || items[0].Quantity != 2 {
		t.Fatalf("unexpected items: %+v", items)
	}
	if !items[0].Price.Equal(testItem("a", 2).Price) {
		t.Fatalf("price must round-trip through jsonb, got %s", items[0].Price)
	}

	conds := ConditionSet{
		Cart: []domain.CartCondition{{Name: "vat", Type: "tax", Target: domain.TargetTotal, Value: "10%"}},
	}
	if _, err := s.PutConditions(ctx, "user-1", "default", conds, v); err != nil {
		t.Fatalf("put conditions: %v", err)
	}
	got, err := s.GetConditions(ctx, "user-1", "default")
	if err != nil {
		t.Fatalf("get conditions: %v", err)
	}
	if len(got.Cart) != 1 || got.Cart[0].Name != "vat" {
		t.Fatalf("unexpected conditions: %+v", got)
	}
}

func TestPostgres_IntegrationVersionConflict(t *testing.T) {
	ctx := context.Background()
	pool := postgresPool(ctx, t)
	defer pool.Close()
	resetCarts(ctx, t, pool)

	s := NewPostgres(pool, PostgresOptions{})

	v, err := s.PutItems(ctx, "user-1", "default", []domain.CartItem{testItem("a", 1)}, VersionAny)
	if err != nil {
		t.Fatalf("put items: %v", err)
	}
	if _, err := s.PutItems(ctx, "user-1", "default", []domain.CartItem{testItem("a", 2)}, v); err != nil {
		t.Fatalf("put with matching version: %v", err)
	}

	_, err = s.PutItems(ctx, "user-1", "default", nil, v)
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestPostgres_IntegrationMetadataAndSwap(t *testing.T) {
	ctx := context.Background()
	pool := postgresPool(ctx, t)
	defer pool.Close()
	resetCarts(ctx, t, pool)

	s := NewPostgres(pool, PostgresOptions{})

	if err := s.PutMetadata(ctx, "guest-1", "default", "note", "gift"); err != nil {
		t.Fatalf("put metadata: %v", err)
	}
	v, ok, err := s.GetMetadata(ctx, "guest-1", "default", "note")
	if err != nil || !ok || v != "gift" {
		t.Fatalf("expected note=gift, got %v ok=%t err=%v", v, ok, err)
	}

	swapped, err := s.SwapIdentifier(ctx, "guest-1", "user-1", "default")
	if err != nil || !swapped {
		t.Fatalf("swap: swapped=%t err=%v", swapped, err)
	}
	has, _ := s.Has(ctx, "guest-1", "default")
	if has {
		t.Fatal("expected old identifier gone")
	}
	v, ok, _ = s.GetMetadata(ctx, "user-1", "default", "note")
	if !ok || v != "gift" {
		t.Fatalf("expected metadata under new identifier, got %v ok=%t", v, ok)
	}

	if err := s.DeleteMetadata(ctx, "user-1", "default", "note"); err != nil {
		t.Fatalf("delete metadata: %v", err)
	}
	_, ok, _ = s.GetMetadata(ctx, "user-1", "default", "note")
	if ok {
		t.Fatal("expected metadata removed")
	}
}

func TestPostgres_IntegrationDeleteAbandoned(t *testing.T) {
	ctx := context.Background()
	pool := postgresPool(ctx, t)
	defer pool.Close()
	resetCarts(ctx, t, pool)

	s := NewPostgres(pool, PostgresOptions{})

	if _, err := s.PutItems(ctx, "user-1", "default", []domain.CartItem{testItem("a", 1)}, VersionAny); err != nil {
		t.Fatalf("put items: %v", err)
	}

	deleted, err := s.DeleteAbandoned(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("delete abandoned: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("fresh cart must survive, deleted %d", deleted)
	}

	deleted, err = s.DeleteAbandoned(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("delete abandoned: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected one cart swept, got %d", deleted)
	}
}
