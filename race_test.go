package pgward_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jfelczak/pgward/internal/bind"
	"github.com/jfelczak/pgward/internal/classify"
	"github.com/jfelczak/pgward/internal/deadline"
	"github.com/jfelczak/pgward/internal/pgerr"
	"github.com/jfelczak/pgward/internal/scrub"

	"github.com/jackc/pgx/v5/pgconn"
)

// These tests assert nothing beyond "no data race": the pipeline stages are
// shared across every in-flight request and must tolerate the race detector
// hammering them from many goroutines.

func TestRace_ConcurrentScrubbing(t *testing.T) {
	s, err := scrub.New([]scrub.Rule{
		{Pattern: `\d{3}-\d{4}`, Replacement: "***-****"},
		{Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`, Replacement: "[REDACTED]"},
	})
	if err != nil {
		t.Fatalf("failed to build scrubber: %v", err)
	}

	messages := []string{
		"password=hunter2 connection to server failed",
		"FATAL: password authentication failed for user \"app\"",
		"dial tcp 10.0.0.5:5432: connect: connection refused",
		"call 555-1234 or mail ops@example.com",
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.String(messages[(id+j)%len(messages)])
			}
		}(i)
	}
	wg.Wait()
}

func TestRace_ConcurrentClassification(t *testing.T) {
	statements := []string{
		"SELECT * FROM users",
		"INSERT INTO users (name) VALUES ('test')",
		"UPDATE users SET name = 'test' WHERE id = 1",
		"DELETE FROM users WHERE id = 1",
		"DROP TABLE users",
		"CREATE TABLE foo (id int)",
		"VACUUM (ANALYZE) users",
		"EXPLAIN ANALYZE SELECT 1",
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sql := statements[(id+j)%len(statements)]
				_, _ = classify.Detect(sql)
			}
		}(i)
	}
	wg.Wait()
}

func TestRace_ConcurrentBinding(t *testing.T) {
	templates := []struct {
		sql    string
		idents map[string]string
	}{
		{"SELECT * FROM {{table}} WHERE id = $1", map[string]string{"table": "public.users"}},
		{"VACUUM (VERBOSE) {{table}};", map[string]string{"table": "app.orders"}},
		{"REINDEX TABLE {{table}};", map[string]string{"table": "events"}},
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tpl := templates[(id+j)%len(templates)]
				if _, err := bind.Expand(tpl.sql, tpl.idents); err != nil {
					t.Errorf("unexpected expand error: %v", err)
					return
				}
				_, _ = bind.Placeholders(tpl.sql)
			}
		}(i)
	}
	wg.Wait()
}

func TestRace_ConcurrentDeadlineResolution(t *testing.T) {
	r := deadline.NewResolver(deadline.Config{
		Read:  30 * time.Second,
		Write: 60 * time.Second,
		Admin: 300 * time.Second,
		Max:   600 * time.Second,
	})

	classes := []classify.Class{classify.ClassRead, classify.ClassWrite, classify.ClassAdmin}
	requests := []time.Duration{0, time.Second, time.Hour}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				class := classes[(id+j)%len(classes)]
				if got := r.Resolve(class, requests[j%len(requests)]); got <= 0 {
					t.Errorf("non-positive deadline %v for class %s", got, class)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestRace_ConcurrentErrorClassification(t *testing.T) {
	s, err := scrub.New(nil)
	if err != nil {
		t.Fatalf("failed to build scrubber: %v", err)
	}
	c := pgerr.NewClassifier(s)

	inputs := []error{
		&pgconn.PgError{Code: "42501", Message: "permission denied for table users"},
		&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"},
		&pgconn.PgError{Code: "42601", Message: "syntax error at or near SELECT"},
		errors.New("write: broken pipe"),
		context.DeadlineExceeded,
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Classify(inputs[(id+j)%len(inputs)])
			}
		}(i)
	}
	wg.Wait()
}
