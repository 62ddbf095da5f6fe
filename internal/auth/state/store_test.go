package state

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/oauth-mail-sync/internal/db/models"
	"gorm.io/gorm"
)

func newTestStateDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := gdb.AutoMigrate(&models.LinkState{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	// One connection keeps concurrent consumers off SQLITE_BUSY; the
	// delete under test stays atomic either way.
	if sqlDB, err := gdb.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	return gdb
}

func TestIssueConsumeOnce(t *testing.T) {
	store := NewStore(newTestStateDB(t), 0)

	token, err := store.Issue(42, "google")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	userID, provider, err := store.Consume(token)
	if err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if userID != 42 || provider != "google" {
		t.Fatalf("expected (42, google), got (%d, %s)", userID, provider)
	}

	if _, _, err := store.Consume(token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second consume: expected ErrNotFound, got %v", err)
	}
}

func TestConsumeUnknownToken(t *testing.T) {
	store := NewStore(newTestStateDB(t), 0)
	if _, _, err := store.Consume("no-such-token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	store := NewStore(newTestStateDB(t), 0)
	token, err := store.Issue(42, "google")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const consumers = 2
	results := make([]error, consumers)
	var wg sync.WaitGroup
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID, provider, err := store.Consume(token)
			if err == nil && (userID != 42 || provider != "google") {
				results[i] = fmt.Errorf("wrong payload (%d, %s)", userID, provider)
				return
			}
			results[i] = err
		}(i)
	}
	wg.Wait()

	wins, misses := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrNotFound):
			misses++
		default:
			t.Fatalf("unexpected consume error: %v", err)
		}
	}
	if wins != 1 || misses != consumers-1 {
		t.Fatalf("expected exactly one winner, got %d wins / %d misses", wins, misses)
	}
}

func TestConsumeExpiredState(t *testing.T) {
	gdb := newTestStateDB(t)
	store := NewStore(gdb, time.Minute)

	token, err := store.Issue(7, "google")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	stale := time.Now().UTC().Add(-2 * time.Minute)
	if err := gdb.Model(&models.LinkState{}).Where("token = ?", token).Update("created_at", stale).Error; err != nil {
		t.Fatalf("backdate state: %v", err)
	}

	if _, _, err := store.Consume(token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired state, got %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	gdb := newTestStateDB(t)
	store := NewStore(gdb, time.Minute)

	fresh, _ := store.Issue(1, "google")
	stale, _ := store.Issue(2, "google")
	backdated := time.Now().UTC().Add(-5 * time.Minute)
	if err := gdb.Model(&models.LinkState{}).Where("token = ?", stale).Update("created_at", backdated).Error; err != nil {
		t.Fatalf("backdate state: %v", err)
	}

	purged, err := store.PurgeExpired(time.Now().UTC())
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged row, got %d", purged)
	}

	pending, err := store.Pending(fresh)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if !pending {
		t.Fatal("fresh state should survive purge")
	}
}
