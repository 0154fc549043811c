// Package id generates the identifiers that tie a harness run's logs,
// reports and metrics together.
//
// IDs are prefixed ULIDs: run_01J... for a suite run, probe_01J... for a
// single probe. ULIDs sort by creation time, so a directory of reports lists
// in run order, and the prefix says what an ID names when it turns up in a
// log line.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunID identifies one suite run.
type RunID string

// ProbeID identifies one probe execution.
type ProbeID string

const (
	RunPrefix   = "run"
	ProbePrefix = "probe"
)

// Generator produces monotonic ULIDs: IDs made within the same millisecond
// still sort in generation order.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(rand.Reader)
}

// NewGeneratorWithEntropy creates a generator reading entropy from r, e.g. a
// seeded source for deterministic tests.
func NewGeneratorWithEntropy(r io.Reader) *Generator {
	return &Generator{entropy: ulid.Monotonic(r, 0)}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefix_ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate())
}

// NewRunID generates a run ID.
func NewRunID() RunID {
	return RunID(Default().GenerateWithPrefix(RunPrefix))
}

// NewProbeID generates a probe ID.
func NewProbeID() ProbeID {
	return ProbeID(Default().GenerateWithPrefix(ProbePrefix))
}

func (id RunID) String() string   { return string(id) }
func (id ProbeID) String() string { return string(id) }

// Timestamp extracts the creation time of a prefixed or bare ID.
func Timestamp(id string) (time.Time, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse id %q: %w", id, err)
	}
	return ulid.Time(parsed.Time()), nil
}

// IsValid reports whether id is a ULID, optionally prefixed.
func IsValid(id string) bool {
	_, err := Timestamp(id)
	return err == nil
}
