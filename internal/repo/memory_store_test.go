package repo

import (
	"context"
	"errors"
	"sync"
	"testing"

	"wgwarden/internal/models"
)

func peer(name, addr, pub string) *models.Peer {
	return &models.Peer{
		Username:   name,
		Address:    addr,
		PublicKey:  pub,
		PrivateKey: "priv-" + name,
		OwnerID:    100,
		Enabled:    true,
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	s := NewMemoryStore(RetentionPurge)
	ctx := context.Background()

	if err := s.Create(ctx, peer("alice", "10.0.0.2", "pk-a")); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.Address != "10.0.0.2" || !got.Enabled {
		t.Fatalf("got %+v", got)
	}
	if _, err := s.GetByUsername(ctx, "ghost"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreUniqueness(t *testing.T) {
	s := NewMemoryStore(RetentionPurge)
	ctx := context.Background()

	if err := s.Create(ctx, peer("alice", "10.0.0.2", "pk-a")); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(ctx, peer("alice", "10.0.0.3", "pk-b")); !errors.Is(err, models.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
	if err := s.Create(ctx, peer("bob", "10.0.0.2", "pk-b")); !errors.Is(err, models.ErrDuplicateAddress) {
		t.Fatalf("expected ErrDuplicateAddress, got %v", err)
	}
	if err := s.Create(ctx, peer("bob", "10.0.0.3", "pk-a")); !errors.Is(err, models.ErrKeyCollision) {
		t.Fatalf("expected ErrKeyCollision, got %v", err)
	}
}

func TestMemoryStoreConcurrentCreateSameUsername(t *testing.T) {
	s := NewMemoryStore(RetentionPurge)
	ctx := context.Background()

	const n = 16
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Create(ctx, peer("alice", "10.0.0.2", "pk-a"))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	if ok != 1 {
		t.Fatalf("%d creations succeeded, want exactly 1", ok)
	}
	all, _ := s.List(ctx)
	if len(all) != 1 {
		t.Fatalf("store holds %d rows, want 1", len(all))
	}
}

func TestMemoryStoreEnableDisableKeepsIdentity(t *testing.T) {
	s := NewMemoryStore(RetentionPurge)
	ctx := context.Background()

	if err := s.Create(ctx, peer("alice", "10.0.0.2", "pk-a")); err != nil {
		t.Fatal(err)
	}
	if err := s.SetEnabled(ctx, "alice", false); err != nil {
		t.Fatal(err)
	}
	enabled, _ := s.ListEnabled(ctx)
	if len(enabled) != 0 {
		t.Fatal("disabled peer still in enabled set")
	}
	// адрес остаётся занят и у выключенного пира
	used, _ := s.UsedAddresses(ctx)
	if len(used) != 1 || used[0] != "10.0.0.2" {
		t.Fatalf("used = %v", used)
	}
	if err := s.SetEnabled(ctx, "alice", true); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetByUsername(ctx, "alice")
	if got.Address != "10.0.0.2" || got.PublicKey != "pk-a" || got.PrivateKey != "priv-alice" {
		t.Fatal("identity changed across disable/enable")
	}
}

func TestMemoryStoreDeleteFreesAddress(t *testing.T) {
	s := NewMemoryStore(RetentionPurge)
	ctx := context.Background()

	if err := s.Create(ctx, peer("alice", "10.0.0.2", "pk-a")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	used, _ := s.UsedAddresses(ctx)
	if len(used) != 0 {
		t.Fatalf("used = %v", used)
	}
	// адрес и имя можно занять заново
	if err := s.Create(ctx, peer("alice", "10.0.0.2", "pk-b")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "ghost"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreArchiveRetention(t *testing.T) {
	s := NewMemoryStore(RetentionArchive)
	ctx := context.Background()

	p := peer("alice", "10.0.0.2", "pk-a")
	if err := s.Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	rx, tx := int64(1024), int64(2048)
	if err := s.UpdateStats(ctx, "pk-a", nil, rx, tx, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	arch, err := s.ListArchived(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(arch) != 1 {
		t.Fatalf("archived %d rows, want 1", len(arch))
	}
	a := arch[0]
	if a.Username != "alice" || a.BytesReceived != rx || a.BytesSent != tx {
		t.Fatalf("archive row %+v", a)
	}
	// адрес свободен несмотря на архив
	used, _ := s.UsedAddresses(ctx)
	if len(used) != 0 {
		t.Fatalf("used = %v", used)
	}
}

func TestMemoryStoreUpdateStatsUnknownKey(t *testing.T) {
	s := NewMemoryStore(RetentionPurge)
	if err := s.UpdateStats(context.Background(), "nope", nil, 1, 2, nil); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
