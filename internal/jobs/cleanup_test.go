package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
	"github.com/tbourn/cbo-bro-backend/internal/repo"
)

func newJobsDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:jobs_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestPurgeIdempotency_RemovesOnlyExpired(t *testing.T) {
	db := newJobsDB(t)
	ctx := context.Background()

	if _, err := repo.CreateIdempotency(ctx, db, "u1", "s1", "old", "{}", 200, time.Millisecond); err != nil {
		t.Fatalf("create old: %v", err)
	}
	if _, err := repo.CreateIdempotency(ctx, db, "u1", "s1", "fresh", "{}", 200, time.Hour); err != nil {
		t.Fatalf("create fresh: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	sc, err := NewScheduler(db, time.Hour)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	t.Cleanup(func() { _ = sc.Shutdown() })

	n, err := sc.PurgeIdempotency(ctx)
	if err != nil || n != 1 {
		t.Fatalf("purge: n=%d err=%v", n, err)
	}
	if _, err := repo.GetIdempotency(ctx, db, "u1", "s1", "fresh", time.Now().UTC()); err != nil {
		t.Fatalf("fresh record should survive: %v", err)
	}
}

func TestScheduler_RunsPurgeOnInterval(t *testing.T) {
	db := newJobsDB(t)
	ctx := context.Background()

	if _, err := repo.CreateIdempotency(ctx, db, "u1", "s1", "old", "{}", 200, time.Millisecond); err != nil {
		t.Fatalf("create: %v", err)
	}

	sc, err := NewScheduler(db, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	sc.Start()
	t.Cleanup(func() { _ = sc.Shutdown() })

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var count int64
		db.Model(&domain.Idempotency{}).Count(&count)
		if count == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expired record was not purged by the scheduled job")
}

func TestNewScheduler_RejectsBadInterval(t *testing.T) {
	if _, err := NewScheduler(nil, 0); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}
