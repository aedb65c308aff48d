// Package insights holds the anomaly and optimization contract the sampler
// reports on every tick. The shipped implementations are random placeholders;
// a trained model can replace them without touching persistence or broadcast.
package insights

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/isdelr/ender-monitor-be/internal/models"
)

// AnomalyDetector produces the anomaly verdict for a reading.
type AnomalyDetector interface {
	Detect(r models.Reading) models.Anomaly
}

// OptimizationAdvisor produces an optimization suggestion for a reading.
type OptimizationAdvisor interface {
	Suggest(r models.Reading) models.Optimization
}

// Suggestions is the fixed set the random advisor picks from.
var Suggestions = []models.Optimization{
	{Suggestion: "Reduce CPU-intensive batch jobs", Impact: 0.15},
	{Suggestion: "Optimize database queries", Impact: 0.1},
	{Suggestion: "Increase memory cache size", Impact: 0.2},
	{Suggestion: "Schedule heavy tasks during off-peak hours", Impact: 0.12},
}

// anomalyCutoff is the draw above which a reading is flagged.
const anomalyCutoff = 0.8

// RandomDetector flags roughly one reading in five, independently of its values.
type RandomDetector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomDetector creates a detector; a nil rng gets a time-seeded generator.
func NewRandomDetector(rng *rand.Rand) *RandomDetector {
	return &RandomDetector{rng: orSeeded(rng)}
}

func (d *RandomDetector) Detect(models.Reading) models.Anomaly {
	d.mu.Lock()
	flag, score := d.rng.Float64(), d.rng.Float64()
	d.mu.Unlock()
	return models.Anomaly{
		Anomaly: flag > anomalyCutoff,
		Score:   round2(score),
	}
}

// RandomAdvisor picks uniformly from Suggestions.
type RandomAdvisor struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomAdvisor creates an advisor; a nil rng gets a time-seeded generator.
func NewRandomAdvisor(rng *rand.Rand) *RandomAdvisor {
	return &RandomAdvisor{rng: orSeeded(rng)}
}

func (a *RandomAdvisor) Suggest(models.Reading) models.Optimization {
	a.mu.Lock()
	i := a.rng.IntN(len(Suggestions))
	a.mu.Unlock()
	return Suggestions[i]
}

// Current holds the most recent anomaly and optimization so they can be
// served between ticks.
type Current struct {
	mu           sync.RWMutex
	anomaly      models.Anomaly
	optimization models.Optimization
}

// NewCurrent starts with no anomaly and the first suggestion.
func NewCurrent() *Current {
	return &Current{optimization: Suggestions[0]}
}

func (c *Current) Set(a models.Anomaly, o models.Optimization) {
	c.mu.Lock()
	c.anomaly, c.optimization = a, o
	c.mu.Unlock()
}

func (c *Current) Anomaly() models.Anomaly {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.anomaly
}

func (c *Current) Optimization() models.Optimization {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.optimization
}

func orSeeded(rng *rand.Rand) *rand.Rand {
	if rng != nil {
		return rng
	}
	seed := uint64(time.Now().UnixNano())
	return rand.New(rand.NewPCG(seed, seed>>32|1))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
