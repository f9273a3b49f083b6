package postgres

import (
	"context"
	"testing"
	"time"
)

var (
	commerceCoreTables = []string{"products", "cart_items", "orders", "order_items", "payments"}
	eventTables        = []string{"outbox_messages", "timeline_events", "idempotency_keys"}
)

func tableExists(t *testing.T, ctx context.Context, store *Store, table string) bool {
	t.Helper()

	var exists bool
	if err := store.DB().QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, "public."+table).Scan(&exists); err != nil {
		t.Fatalf("check table %s: %v", table, err)
	}
	return exists
}

// Каждый шаг миграций проверяется по версии и по набору таблиц в схеме.
func TestMigrator_PostgresSchemaSteps(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := store.MigrateDown(ctx, 100); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	steps := []struct {
		name        string
		apply       func() error
		wantVersion int64
		present     []string
		absent      []string
	}{
		{
			name:        "empty schema",
			apply:       func() error { return nil },
			wantVersion: 0,
			absent:      append(append([]string{}, commerceCoreTables...), eventTables...),
		},
		{
			name:        "commerce core only",
			apply:       func() error { return store.MigrateUp(ctx, 1) },
			wantVersion: 1,
			present:     commerceCoreTables,
			absent:      eventTables,
		},
		{
			name:        "up to latest",
			apply:       func() error { return store.MigrateUp(ctx, 0) },
			wantVersion: 2,
			present:     append(append([]string{}, commerceCoreTables...), eventTables...),
		},
		{
			name:        "repeated up keeps schema",
			apply:       func() error { return store.MigrateUp(ctx, 0) },
			wantVersion: 2,
			present:     append(append([]string{}, commerceCoreTables...), eventTables...),
		},
		{
			name:        "default down rolls back outbox and idempotency",
			apply:       func() error { return store.MigrateDown(ctx, 0) },
			wantVersion: 1,
			present:     commerceCoreTables,
			absent:      eventTables,
		},
		{
			name:        "down beyond applied steps stops at empty schema",
			apply:       func() error { return store.MigrateDown(ctx, 5) },
			wantVersion: 0,
			absent:      commerceCoreTables,
		},
	}

	for _, step := range steps {
		if err := step.apply(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		version, count, err := store.MigrationStatus(ctx)
		if err != nil {
			t.Fatalf("%s: status: %v", step.name, err)
		}
		if version != step.wantVersion || count != int(step.wantVersion) {
			t.Fatalf("%s: version=%d count=%d, want %d", step.name, version, count, step.wantVersion)
		}
		for _, table := range step.present {
			if !tableExists(t, ctx, store, table) {
				t.Errorf("%s: table %s must exist", step.name, table)
			}
		}
		for _, table := range step.absent {
			if tableExists(t, ctx, store, table) {
				t.Errorf("%s: table %s must not exist", step.name, table)
			}
		}
	}

	// Остальные интеграционные тесты пакета ждут полную схему.
	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("restore schema: %v", err)
	}
}

func TestMigrator_NilStoreAndUnknownDirection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var nilStore *Store
	for name, call := range map[string]func() error{
		"up":   func() error { return nilStore.MigrateUp(ctx, 0) },
		"down": func() error { return nilStore.MigrateDown(ctx, 1) },
		"status": func() error {
			_, _, err := nilStore.MigrationStatus(ctx)
			return err
		},
	} {
		if err := call(); err == nil {
			t.Errorf("%s on nil store must fail", name)
		}
	}

	store := openRawPostgresStoreForIntegrationTest(t)
	if err := store.migrate(ctx, migrationDirection("sideways"), 0); err == nil {
		t.Fatal("expected unsupported direction error")
	}
}
