package data

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/giygas/dosecurve-api/config"
	"github.com/giygas/dosecurve-api/interfaces"
	"github.com/giygas/dosecurve-api/logging"
	"github.com/giygas/dosecurve-api/pharmacokinetics"
)

func TestMain(m *testing.M) {
	logging.InitLoggerWithOptions(logging.Options{Env: config.EnvTest})
	os.Exit(m.Run())
}

// exerciseStore runs the DoseStore contract against any backend
func exerciseStore(t *testing.T, store interfaces.DoseStore, key string) {
	t.Helper()
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	if _, found, err := store.Get(ctx, key); err != nil || found {
		t.Fatalf("Expected missing key, got found=%v err=%v", found, err)
	}

	if err := store.Set(ctx, key, `[{"date":"2024-01-01","amount":"10"}]`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, found, err := store.Get(ctx, key)
	if err != nil || !found {
		t.Fatalf("Expected stored key, got found=%v err=%v", found, err)
	}
	if value != `[{"date":"2024-01-01","amount":"10"}]` {
		t.Errorf("Unexpected value %q", value)
	}

	if err := store.Set(ctx, key, "overwritten"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if value, _, _ := store.Get(ctx, key); value != "overwritten" {
		t.Errorf("Expected overwritten value, got %q", value)
	}

	found, err = store.Update(ctx, key, func(current string) (string, error) {
		return current + "+1", nil
	})
	if err != nil || !found {
		t.Fatalf("Update failed: found=%v err=%v", found, err)
	}
	if value, _, _ := store.Get(ctx, key); value != "overwritten+1" {
		t.Errorf("Expected updated value, got %q", value)
	}

	errRejected := errors.New("rejected")
	if _, err := store.Update(ctx, key, func(string) (string, error) { return "", errRejected }); !errors.Is(err, errRejected) {
		t.Errorf("Expected the edit error back, got %v", err)
	}
	if value, _, _ := store.Get(ctx, key); value != "overwritten+1" {
		t.Errorf("A failed edit must not write, got %q", value)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found, _ := store.Get(ctx, key); found {
		t.Error("Key should be gone after Delete")
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("Deleting a missing key should not fail: %v", err)
	}

	called := false
	found, err = store.Update(ctx, key, func(string) (string, error) {
		called = true
		return "recreated", nil
	})
	if err != nil || found || called {
		t.Errorf("Update of a missing key: found=%v called=%v err=%v", found, called, err)
	}
	if _, found, _ := store.Get(ctx, key); found {
		t.Error("Update must not create a missing key")
	}
}

// exerciseConcurrentUpdates checks that concurrent read-modify-write cycles
// on one key do not lose writes
func exerciseConcurrentUpdates(t *testing.T, store interfaces.DoseStore, key string) {
	t.Helper()
	ctx := context.Background()

	if err := store.Set(ctx, key, ""); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	defer func() { _ = store.Delete(ctx, key) }()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, key, func(current string) (string, error) {
				return current + "x", nil
			})
			if err != nil {
				t.Errorf("Update failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if value, _, _ := store.Get(ctx, key); len(value) != writers {
		t.Errorf("Expected %d appended marks, got %q", writers, value)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if store.Backend() != "memory" {
		t.Errorf("Expected backend memory, got %s", store.Backend())
	}
	if !store.GetLastUpdated().IsZero() {
		t.Error("New store should have zero lastUpdated time")
	}

	exerciseStore(t, store, "doses:test")
	exerciseConcurrentUpdates(t, store, "doses:concurrent")

	if store.GetLastUpdated().IsZero() {
		t.Error("lastUpdated should be set after writes")
	}
	if store.Len() != 0 {
		t.Errorf("Expected empty store, got %d keys", store.Len())
	}
}

func TestMemoryStoreSnapshotIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.Set(ctx, "a", "1")
	before := store.snapshot()

	_ = store.Set(ctx, "b", "2")

	if _, ok := before["b"]; ok {
		t.Error("Earlier snapshot must not see later writes")
	}
	if store.Len() != 2 {
		t.Errorf("Expected 2 keys, got %d", store.Len())
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = store.Set(ctx, fmt.Sprintf("k%d", i), "v")
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _, _ = store.Get(ctx, fmt.Sprintf("k%d", i))
		}(i)
	}
	wg.Wait()

	if store.Len() != 50 {
		t.Errorf("Expected 50 keys after concurrent writes, got %d", store.Len())
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	store, err := NewRedisStore(context.Background(), addr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	exerciseStore(t, store, "doses:redis-store-test")
	exerciseConcurrentUpdates(t, store, "doses:redis-store-concurrent")
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	store, err := NewPostgresStore(context.Background(), dsn)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	exerciseStore(t, store, "doses:postgres-store-test")
	exerciseConcurrentUpdates(t, store, "doses:postgres-store-concurrent")
}

func TestOpenMemoryBackend(t *testing.T) {
	store, err := Open(context.Background(), &config.Config{StorageBackend: config.StorageMemory})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.Backend() != "memory" {
		t.Errorf("Expected memory backend, got %s", store.Backend())
	}

	if _, err := Open(context.Background(), &config.Config{StorageBackend: "mongo"}); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestProfiles(t *testing.T) {
	ctx := context.Background()
	profiles := NewProfiles(NewMemoryStore())

	if _, err := profiles.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := profiles.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on delete, got %v", err)
	}

	saved, err := profiles.Save(ctx, "p1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 1 || saved[0] != (pharmacokinetics.RawDose{}) {
		t.Errorf("Empty list should be stored as one blank entry, got %+v", saved)
	}

	doses := []pharmacokinetics.RawDose{
		{Date: "2024-01-08", Amount: "5"},
		{Date: "2024-01-01", Amount: "10"},
	}
	if _, err := profiles.Save(ctx, "p1", doses); err != nil {
		t.Fatal(err)
	}

	loaded, err := profiles.Load(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 || loaded[0] != doses[0] || loaded[1] != doses[1] {
		t.Errorf("Expected entries stored as entered, got %+v", loaded)
	}

	if err := profiles.Delete(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := profiles.Exists(ctx, "p1"); ok {
		t.Error("Profile should be gone after Delete")
	}
}

func TestProfilesUpdate(t *testing.T) {
	ctx := context.Background()
	profiles := NewProfiles(NewMemoryStore())

	edit := func(doses []pharmacokinetics.RawDose) ([]pharmacokinetics.RawDose, error) {
		return append(doses, pharmacokinetics.RawDose{Date: "2024-01-01", Amount: "5"}), nil
	}
	if _, err := profiles.Update(ctx, "missing", edit); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if ok, _ := profiles.Exists(ctx, "missing"); ok {
		t.Error("Update must not create a profile")
	}

	if _, err := profiles.Save(ctx, "p1", []pharmacokinetics.RawDose{{Date: "2024-01-08", Amount: "5"}}); err != nil {
		t.Fatal(err)
	}

	saved, err := profiles.Update(ctx, "p1", edit)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 2 || saved[1].Date != "2024-01-01" {
		t.Errorf("Expected appended entry, got %+v", saved)
	}

	saved, err = profiles.Update(ctx, "p1", func([]pharmacokinetics.RawDose) ([]pharmacokinetics.RawDose, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 1 || saved[0] != (pharmacokinetics.RawDose{}) {
		t.Errorf("Emptied list should be stored as one blank entry, got %+v", saved)
	}

	errFull := errors.New("full")
	if _, err := profiles.Update(ctx, "p1", func([]pharmacokinetics.RawDose) ([]pharmacokinetics.RawDose, error) {
		return nil, errFull
	}); err != errFull {
		t.Errorf("Expected the edit error unchanged, got %v", err)
	}
}

func TestProfilesCorruptValue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Set(ctx, "doses:bad", "not json")

	if _, err := NewProfiles(store).Load(ctx, "bad"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Expected decode error, got %v", err)
	}
}
