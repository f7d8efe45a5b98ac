package game

import (
	"fmt"
	mathrand "math/rand"
	"sync"
	"time"
)

type RateEntry struct {
	Level    int   `json:"level"`
	Success  int   `json:"success"`
	Maintain int   `json:"maintain"`
	Destroy  int   `json:"destroy"`
	Cost     int64 `json:"cost"`
}

// Costs are in gold. Level 20 has no entry.
var rateTable = [MaxLevel]RateEntry{
	{0, 100, 0, 0, 1_000},
	{1, 95, 3, 2, 2_000},
	{2, 90, 7, 3, 5_000},
	{3, 85, 10, 5, 10_000},
	{4, 80, 10, 10, 50_000},
	{5, 65, 22, 13, 150_000},
	{6, 60, 24, 16, 500_000},
	{7, 55, 26, 19, 1_000_000},
	{8, 50, 28, 22, 2_000_000},
	{9, 45, 30, 25, 3_000_000},
	{10, 40, 30, 30, 5_000_000},
	{11, 35, 30, 35, 7_500_000},
	{12, 30, 30, 40, 10_000_000},
	{13, 25, 30, 45, 15_000_000},
	{14, 20, 30, 50, 20_000_000},
	{15, 15, 30, 55, 30_000_000},
	{16, 10, 30, 60, 40_000_000},
	{17, 8, 30, 62, 50_000_000},
	{18, 5, 30, 65, 75_000_000},
	{19, 2, 30, 68, 100_000_000},
}

// RateFor returns the enhancement odds and cost for a weapon at level.
func RateFor(level int) (RateEntry, error) {
	if level >= MaxLevel {
		return RateEntry{}, ErrMaxLevelReached
	}
	if level < 0 {
		return RateEntry{}, fmt.Errorf("%w: rate lookup for level %d", ErrInvariant, level)
	}
	return rateTable[level], nil
}

func RateTable() []RateEntry {
	out := make([]RateEntry, len(rateTable))
	copy(out, rateTable[:])
	return out
}

// Classify maps a roll in [0, 100) onto the entry's outcome bands.
// Bands are half-open: [0, success), [success, success+maintain), [success+maintain, 100).
func Classify(entry RateEntry, roll float64) (Outcome, int) {
	switch {
	case roll < float64(entry.Success):
		return OutcomeSuccess, entry.Level + 1
	case roll < float64(entry.Success+entry.Maintain):
		return OutcomeMaintain, entry.Level
	default:
		return OutcomeDestroy, 0
	}
}

// RandomSource yields uniform draws in [0, 1).
type RandomSource interface {
	Float64() float64
}

type lockedRand struct {
	mu sync.Mutex
	r  *mathrand.Rand
}

func NewRandomSource(seed int64) RandomSource {
	return &lockedRand{r: mathrand.New(mathrand.NewSource(seed))}
}

func NewTimeSeededSource() RandomSource {
	return NewRandomSource(time.Now().UnixNano())
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// Roll draws once from src and classifies the attempt.
func Roll(src RandomSource, entry RateEntry) (Outcome, int, float64) {
	roll := src.Float64() * 100
	outcome, next := Classify(entry, roll)
	return outcome, next, roll
}
