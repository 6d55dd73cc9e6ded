// Package deadline resolves the execution deadline for a statement from
// its class and an optional caller override.
package deadline

import (
	"time"

	"github.com/jfelczak/pgward/internal/classify"
)

// Config holds the per-class defaults and the global cap.
type Config struct {
	Read  time.Duration
	Write time.Duration
	Admin time.Duration
	// Max caps caller-requested deadlines. Zero means uncapped.
	Max time.Duration
}

// Resolver picks effective deadlines. Safe for concurrent use.
type Resolver struct {
	cfg Config
}

// NewResolver builds a Resolver from cfg.
func NewResolver(cfg Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve returns the deadline for a statement of the given class. A
// positive requested duration wins over the class default; both are
// clamped to the configured maximum. Requests can shorten their deadline
// freely but can never escape the cap.
func (r *Resolver) Resolve(class classify.Class, requested time.Duration) time.Duration {
	d := requested
	if d <= 0 {
		switch class {
		case classify.ClassWrite:
			d = r.cfg.Write
		case classify.ClassAdmin:
			d = r.cfg.Admin
		default:
			d = r.cfg.Read
		}
	}
	if r.cfg.Max > 0 && d > r.cfg.Max {
		d = r.cfg.Max
	}
	return d
}
