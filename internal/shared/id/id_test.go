package id

import (
	"math/rand"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIsUnique(t *testing.T) {
	gen := NewGenerator()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := gen.Generate().String()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestGenerateIsMonotonic(t *testing.T) {
	gen := NewGeneratorWithEntropy(rand.New(rand.NewSource(1)))

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = gen.Generate().String()
	}
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestTypedIDs(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		prefix string
	}{
		{"run", NewRunID().String(), "run_"},
		{"probe", NewProbeID().String(), "probe_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, strings.HasPrefix(tt.id, tt.prefix))
			assert.Len(t, strings.TrimPrefix(tt.id, tt.prefix), 26)
			assert.True(t, IsValid(tt.id))
		})
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := Timestamp(NewRunID().String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))

	_, err = Timestamp("run_not-a-ulid")
	assert.Error(t, err)
	assert.False(t, IsValid(""))
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		seen = make(map[string]bool)
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := gen.GenerateWithPrefix(ProbePrefix)
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}
