package postgres

import (
	"context"
	"io/fs"
	"strings"
	"testing"
	"time"
)

func TestNewPoolWithConfigDefaults(t *testing.T) {
	ctx := context.Background()

	// using invalid URL should return error
	if _, err := NewPoolWithConfig(ctx, PoolConfig{DatabaseURL: "not-a-url"}); err == nil {
		t.Fatalf("expected error when parsing invalid URL")
	}
}

func TestNewPoolWithConfigPingFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cfg := PoolConfig{
		DatabaseURL:    "postgres://invalid:5432/db",
		MaxConns:       1,
		MinConns:       0,
		ConnectTimeout: time.Second,
	}

	_, err := NewPoolWithConfig(ctx, cfg)
	if err == nil {
		t.Fatalf("expected error when pool cannot connect")
	}
}

func TestNewPoolWithConfigSkipPing(t *testing.T) {
	pool, err := NewPoolWithConfig(context.Background(), PoolConfig{
		DatabaseURL:    "postgres://invalid:5432/db",
		MaxConns:       1,
		MinConns:       0,
		ConnectTimeout: time.Second,
		SkipPing:       true,
	})
	if err != nil {
		t.Fatalf("expected lazy pool, got %v", err)
	}
	pool.Close()
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}

	ups, downs := 0, 0
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups++
		case strings.HasSuffix(name, ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Fatalf("expected paired up/down migrations, got %d up and %d down", ups, downs)
	}
}

func TestEmbeddedMigrationDefinesChangeFeed(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/000001_init.up.sql")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	sql := string(data)
	for _, want := range []string{"ledgersync_changes", "applied_operations", "CHECK (balance >= 0)"} {
		if !strings.Contains(sql, want) {
			t.Fatalf("expected migration to contain %q", want)
		}
	}
}

func TestNewMigrateRejectsBadURL(t *testing.T) {
	if _, err := newMigrate("://bad", ""); err == nil {
		t.Fatal("expected error for malformed database URL")
	}
}
