package pgward_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jfelczak/pgward"
	"github.com/jfelczak/pgward/internal/pgerr"
)

func TestStress_ConcurrentReads(t *testing.T) {
	t.Parallel()
	gw := newLiveGateway(t, liveConfig())

	const goroutines = 50
	const requestsPerGoroutine = 20

	var wg sync.WaitGroup
	var errCount atomic.Int64
	start := time.Now()

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < requestsPerGoroutine; j++ {
				_, err := gw.Execute(context.Background(), pgward.OperationRequest{
					Name:     "stress_read",
					Template: fmt.Sprintf("SELECT %d AS id, %d AS iter", id, j),
					Class:    pgward.ClassRead,
				})
				if err != nil {
					errCount.Add(1)
					t.Errorf("goroutine %d iter %d: %v", id, j, err)
				}
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	if errCount.Load() > 0 {
		t.Fatalf("%d errors in concurrent reads", errCount.Load())
	}
	if leased := gw.Leased(); leased != 0 {
		t.Fatalf("expected every lease returned, %d outstanding", leased)
	}
	t.Logf("completed %d requests in %v (%d goroutines)", goroutines*requestsPerGoroutine, elapsed, goroutines)
}

func TestStress_PoolContention(t *testing.T) {
	t.Parallel()
	config := liveConfig()
	config.Pool.MaxConns = 3
	gw := newLiveGateway(t, config)

	const goroutines = 20
	var wg sync.WaitGroup
	var errCount atomic.Int64

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gw.Execute(context.Background(), pgward.OperationRequest{
				Name:     "stress_sleep",
				Template: "SELECT pg_sleep(0.1)",
				Class:    pgward.ClassRead,
			})
			if err != nil {
				errCount.Add(1)
				t.Errorf("request error: %v", err)
			}
		}()
	}

	wg.Wait()

	// 20 goroutines over 3 connections: the acquire timeout (5s default)
	// comfortably covers the queue, so contention must surface as waiting,
	// never as errors or stuck leases.
	if errCount.Load() > 0 {
		t.Fatalf("%d errors under pool contention", errCount.Load())
	}
	if leased := gw.Leased(); leased != 0 {
		t.Fatalf("expected every lease returned, %d outstanding", leased)
	}
}

func TestStress_MixedCatalogOperations(t *testing.T) {
	t.Parallel()
	gw := newLiveGateway(t, liveConfig())

	operations := []struct {
		name string
		args map[string]any
	}{
		{"server_version", nil},
		{"list_schemas", nil},
		{"list_tables", nil},
		{"index_usage", map[string]any{"schema": "pg_catalog"}},
		{"table_sizes", map[string]any{"limit": 5}},
		{"cache_hit_ratio", nil},
		{"connection_activity", nil},
	}

	const goroutines = 16
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				op := operations[(id+j)%len(operations)]
				if _, err := gw.ExecuteOperation(context.Background(), op.name, op.args); err != nil {
					t.Errorf("operation %s: %v", op.name, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if leased := gw.Leased(); leased != 0 {
		t.Fatalf("expected every lease returned, %d outstanding", leased)
	}
}

func TestStress_DeadlineStorm(t *testing.T) {
	t.Parallel()
	gw := newLiveGateway(t, liveConfig())

	// Every request times out and poisons its connection. The pool must
	// replace them all and keep serving.
	const goroutines = 10
	var wg sync.WaitGroup
	var wrongKind atomic.Int64

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gw.Execute(context.Background(), pgward.OperationRequest{
				Name:     "stress_timeout",
				Template: "SELECT pg_sleep(2)",
				Class:    pgward.ClassRead,
				Timeout:  50 * time.Millisecond,
			})
			if !pgerr.IsKind(err, pgerr.KindDeadlineExceeded) {
				wrongKind.Add(1)
				t.Errorf("expected deadline_exceeded, got %v", err)
			}
		}()
	}
	wg.Wait()

	if wrongKind.Load() > 0 {
		t.Fatalf("%d requests failed with the wrong error kind", wrongKind.Load())
	}
	if leased := gw.Leased(); leased != 0 {
		t.Fatalf("expected every lease returned, %d outstanding", leased)
	}

	result := mustExec(t, gw, pgward.ClassRead, "SELECT 1")
	if result.RowCount != 1 {
		t.Fatal("expected pool to recover after poisoned releases")
	}
}
