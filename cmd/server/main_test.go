package main

import (
	"testing"

	"go.uber.org/zap"

	"github.com/cuappdev/clicker-backend/internal/config"
	"github.com/cuappdev/clicker-backend/internal/models"
)

func TestInitDatabaseSQLite(t *testing.T) {
	db, err := initDatabase(&config.Config{DBDriver: "sqlite", DBDSN: "file:main_test?mode=memory&cache=shared"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql DB: %v", err)
	}
	defer sqlDB.Close()

	for _, m := range []any{&models.Group{}, &models.Poll{}, &models.Draft{}} {
		if !db.Migrator().HasTable(m) {
			t.Fatalf("expected table for %T", m)
		}
	}
}

func TestInitDatabaseUnsupportedDriver(t *testing.T) {
	if _, err := initDatabase(&config.Config{DBDriver: "mysql", DBDSN: "x"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestInitRedisUnreachable(t *testing.T) {
	cfg := &config.Config{RedisAddr: "127.0.0.1:1"}
	if rdb := initRedis(cfg, zap.NewNop()); rdb != nil {
		t.Fatal("expected nil client when redis is unreachable")
	}
}
