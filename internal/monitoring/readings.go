package monitoring

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/isdelr/ender-monitor-be/internal/models"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ReadingSource produces the raw values of one tick. The sampler stamps the
// returned reading itself.
type ReadingSource interface {
	Read(ctx context.Context) (models.Reading, error)
}

// Ranges of the generated values.
const (
	maxCPU         = 100.0
	minMemGB       = 4.0
	maxMemGB       = 16.0
	maxConnections = 100
	maxQueryCount  = 1000
)

// SyntheticSource draws every value from a random generator.
type SyntheticSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSyntheticSource creates a source; a nil rng gets a time-seeded generator.
func NewSyntheticSource(rng *rand.Rand) *SyntheticSource {
	if rng == nil {
		rng = newRand()
	}
	return &SyntheticSource{rng: rng}
}

func (s *SyntheticSource) Read(context.Context) (models.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sample := models.Reading{
		CPU: round2(s.rng.Float64() * maxCPU),
		Mem: round2(minMemGB + s.rng.Float64()*(maxMemGB-minMemGB)),
	}
	s.fillCounters(&sample)
	return sample, nil
}

// fillCounters draws the database counters. Callers hold s.mu.
func (s *SyntheticSource) fillCounters(sample *models.Reading) {
	sample.Connections = s.rng.IntN(maxConnections)
	sample.QueryCount = s.rng.IntN(maxQueryCount)
	sample.CacheHitRatio = s.rng.Float64()
}

// HostSource reads CPU and memory usage of the local machine. The database
// counters stay synthetic.
type HostSource struct {
	counters *SyntheticSource
}

func NewHostSource(rng *rand.Rand) *HostSource {
	return &HostSource{counters: NewSyntheticSource(rng)}
}

func (h *HostSource) Read(ctx context.Context) (models.Reading, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return models.Reading{}, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	if len(percents) == 0 {
		return models.Reading{}, fmt.Errorf("failed to read cpu usage: no samples")
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return models.Reading{}, fmt.Errorf("failed to read memory usage: %w", err)
	}

	sample := models.Reading{
		CPU: round2(math.Min(math.Max(percents[0], 0), maxCPU)),
		Mem: round2(float64(vm.Used) / (1 << 30)),
	}
	h.counters.mu.Lock()
	h.counters.fillCounters(&sample)
	h.counters.mu.Unlock()
	return sample, nil
}

// NewSource returns the reading source named by kind ("synthetic" or "host").
func NewSource(kind string, rng *rand.Rand) (ReadingSource, error) {
	switch kind {
	case "", "synthetic":
		return NewSyntheticSource(rng), nil
	case "host":
		return NewHostSource(rng), nil
	default:
		return nil, fmt.Errorf("unknown sample source %q", kind)
	}
}

func newRand() *rand.Rand {
	seed := uint64(time.Now().UnixNano())
	return rand.New(rand.NewPCG(seed, seed>>32|1))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
