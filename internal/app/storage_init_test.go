package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestInitStorage_Memory(t *testing.T) {
	t.Parallel()

	st, err := initStorage(context.Background(), StorageDriverMemory, "", false, log.WithField("test", "memory-storage"))
	if err != nil {
		t.Fatalf("initStorage(memory) failed: %v", err)
	}
	if st.orders == nil || st.carts == nil || st.stock == nil || st.products == nil {
		t.Fatal("expected order, cart, stock and product repositories")
	}
	if st.outbox == nil || st.timeline == nil || st.idempotency == nil {
		t.Fatal("expected outbox, timeline and idempotency repositories")
	}
	if st.store != nil {
		t.Fatal("memory storage must not open a postgres store")
	}
	st.close(log.WithField("test", "memory-storage"))
}

func TestInitStorage_EmptyDriverMeansMemory(t *testing.T) {
	t.Parallel()

	st, err := initStorage(context.Background(), "", "", false, log.WithField("test", "default-storage"))
	if err != nil {
		t.Fatalf("initStorage(\"\") failed: %v", err)
	}
	if st.orders == nil {
		t.Fatal("expected memory repositories")
	}
}

func TestInitStorage_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initStorage(context.Background(), StorageDriverPostgres, "", true, log.WithField("test", "postgres-missing-dsn"))
	if err == nil {
		t.Fatal("expected error when postgres driver is selected without DSN")
	}
}

func TestInitStorage_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initStorage(context.Background(), "sqlite", "", false, log.WithField("test", "unsupported-driver"))
	if err == nil {
		t.Fatal("expected error for unsupported storage driver")
	}
}
