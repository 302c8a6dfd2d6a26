package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestIdempotency_Migration_UniqueKey(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	if !m.HasTable(&Idempotency{}) {
		t.Fatalf("expected table %q to exist", Idempotency{}.TableName())
	}
	if !m.HasIndex(&Idempotency{}, "ux_user_session_key") {
		t.Fatalf("expected composite index ux_user_session_key to exist")
	}

	now := time.Now().UTC()
	rec := &Idempotency{
		ID: "id-1", UserID: "u1", SessionID: "s1", Key: "k1",
		Response: `{"text":"hi"}`, Status: 200, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert valid: %v", err)
	}

	var got Idempotency
	if err := db.First(&got, "id = ?", "id-1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.SessionID != "s1" || got.Response != `{"text":"hi"}` || got.Status != 200 {
		t.Fatalf("unexpected row: %+v", got)
	}

	dup := &Idempotency{
		ID: "id-2", UserID: "u1", SessionID: "s1", Key: "k1",
		Response: "{}", Status: 200, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected UNIQUE violation on (user_id, session_id, key)")
	}

	// Same key in another session is a different operation.
	other := &Idempotency{
		ID: "id-3", UserID: "u1", SessionID: "s2", Key: "k1",
		Response: "{}", Status: 200, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(other).Error; err != nil {
		t.Fatalf("insert other session: %v", err)
	}
}

func TestIdempotency_Expired(t *testing.T) {
	now := time.Now().UTC()
	r := Idempotency{ExpiresAt: now.Add(time.Minute)}
	if r.Expired(now) {
		t.Fatalf("record expiring in the future should not be expired")
	}
	if !r.Expired(now.Add(time.Minute)) {
		t.Fatalf("record should be expired at its ExpiresAt")
	}
}
