package audit

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/khanghh/kgate/model"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestLog(t *testing.T) (*Log, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := model.AutoMigrate(db); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	return NewLog(NewAuthLogRepository(db), nil), db
}

func countRecords(t *testing.T, db *gorm.DB) int64 {
	var n int64
	if err := db.Model(&model.AuthLogRecord{}).Count(&n).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return n
}

func TestBeginWithoutUserIsDeniedAndStored(t *testing.T) {
	log, db := newTestLog(t)
	ctx := context.Background()

	record, err := log.Begin(ctx, Attempt{Username: "mallory", IPAddress: "10.0.0.1", RequestTime: time.Now()}, nil)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if !record.IsDenied || record.DenialReason != DenialCredentials {
		t.Fatalf("expected denied CREDENTIALS record, got %+v", record)
	}
	if countRecords(t, db) != 1 {
		t.Fatalf("expected the denied record to be stored immediately")
	}
}

func TestBeginWithUserStaysInMemoryUntilCommit(t *testing.T) {
	log, db := newTestLog(t)
	ctx := context.Background()
	user := &model.User{ID: 7, Username: "alice"}

	record, err := log.Begin(ctx, Attempt{IPAddress: "10.0.0.1", RequestTime: time.Now()}, user)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if record.Username != "alice" || record.UserID != 7 {
		t.Fatalf("expected username fallback and user id, got %+v", record)
	}
	if countRecords(t, db) != 0 {
		t.Fatalf("record should not be stored before commit")
	}

	log.AttachToken(record, "token-1")
	if err := log.Commit(ctx, record); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	latest, err := log.LatestForToken(ctx, "token-1")
	if err != nil || latest == nil || latest.ID != record.ID {
		t.Fatalf("LatestForToken = %+v, %v", latest, err)
	}
	if latest.IsDenied {
		t.Fatalf("committed record should not be denied")
	}
}

func TestDenyKeepsFirstReason(t *testing.T) {
	log, db := newTestLog(t)
	ctx := context.Background()

	record, _ := log.Begin(ctx, Attempt{IPAddress: "10.0.0.1", RequestTime: time.Now()}, &model.User{ID: 1, Username: "bob"})
	if err := log.Deny(ctx, record, DenialInactiveUser); err != nil {
		t.Fatalf("Deny failed: %v", err)
	}
	if err := log.Deny(ctx, record, DenialIsPortalUser); err != nil {
		t.Fatalf("second Deny failed: %v", err)
	}

	var stored model.AuthLogRecord
	if err := db.First(&stored, "id = ?", record.ID).Error; err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if !stored.IsDenied || stored.DenialReason != DenialInactiveUser {
		t.Fatalf("unexpected stored record %+v", stored)
	}
	if err := log.Deny(ctx, nil, DenialInactiveUser); err != nil {
		t.Fatalf("Deny(nil) should be a no-op, got %v", err)
	}
}

func TestCountDeniedWindow(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		log.Begin(ctx, Attempt{IPAddress: "10.0.0.1", RequestTime: now.Add(-10 * time.Second)}, nil)
	}
	log.Begin(ctx, Attempt{IPAddress: "10.0.0.1", RequestTime: now.Add(-5 * time.Minute)}, nil)
	log.Begin(ctx, Attempt{IPAddress: "10.0.0.2", RequestTime: now}, nil)
	ok, _ := log.Begin(ctx, Attempt{IPAddress: "10.0.0.1", RequestTime: now}, &model.User{ID: 1})
	log.Commit(ctx, ok)

	count, err := log.CountDenied(ctx, "10.0.0.1", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountDenied failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("CountDenied = %d, want 3", count)
	}
}

func TestLatestForTokenMissing(t *testing.T) {
	log, _ := newTestLog(t)
	record, err := log.LatestForToken(context.Background(), "nope")
	if err != nil || record != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", record, err)
	}
}
