// File: bloom/bloom.go
package bloom

import (
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/cespare/xxhash/v2"
)

const (
	seedA = 0x9e3779b97f4a7c15
	seedB = 0xc2b2ae3d27d4eb4f
)

// Filter is a probabilistic duplicate pre-check over credential and voter
// digests. It never reports false negatives; a positive result must be
// confirmed against the authoritative store before acting on it. The
// filter only grows; there is no delete.
//
// Not internally locked: the orchestrator serializes Add with the rest of
// the ledger mutation path, and concurrent MightContain/Stats calls are
// taken under the same read lock.
type Filter struct {
	bits      *bitset.BitSet
	m         uint64
	k         uint64
	capacity  uint64
	errorRate float64
	count     uint64
}

// New sizes the filter for the expected number of elements n and the
// target false-positive rate p:
//
//	m = -(n * ln p) / (ln 2)^2
//	k = (m / n) * ln 2
func New(capacity uint64, errorRate float64) *Filter {
	if capacity == 0 {
		capacity = 1
	}
	if errorRate <= 0 || errorRate >= 1 {
		errorRate = 0.01
	}
	m := uint64(math.Ceil(-float64(capacity) * math.Log(errorRate) / (math.Ln2 * math.Ln2)))
	if m == 0 {
		m = 1
	}
	k := uint64(math.Round(float64(m) / float64(capacity) * math.Ln2))
	if k == 0 {
		k = 1
	}
	return &Filter{
		bits:      bitset.New(uint(m)),
		m:         m,
		k:         k,
		capacity:  capacity,
		errorRate: errorRate,
	}
}

// positions derives the k bit positions for a key by double hashing two
// seeded xxhash digests.
func (f *Filter) positions(key string) (uint64, uint64) {
	h := xxhash.New()
	h.Write([]byte(key))
	a := h.Sum64() ^ seedA
	h.Reset()
	h.Write([]byte{0xff})
	h.Write([]byte(key))
	b := h.Sum64() ^ seedB
	if b == 0 {
		b = seedB
	}
	return a, b
}

// Add sets the k positions derived from key.
func (f *Filter) Add(key string) {
	a, b := f.positions(key)
	for i := uint64(0); i < f.k; i++ {
		f.bits.Set(uint((a + i*b) % f.m))
	}
	f.count++
}

// MightContain reports whether key may have been added. False means
// definitely absent; true may be a false positive and must be followed by
// an authoritative lookup before any state change.
func (f *Filter) MightContain(key string) bool {
	a, b := f.positions(key)
	for i := uint64(0); i < f.k; i++ {
		if !f.bits.Test(uint((a + i*b) % f.m)) {
			return false
		}
	}
	return true
}

// Count returns the number of keys added so far.
func (f *Filter) Count() uint64 {
	return f.count
}

// Stats describes the filter's configuration and current saturation.
type Stats struct {
	Capacity         uint64  `json:"capacity"`
	ItemCount        uint64  `json:"item_count"`
	BitSize          uint64  `json:"bit_size"`
	HashCount        uint64  `json:"hash_count"`
	ErrorRate        float64 `json:"error_rate"`
	CurrentErrorRate float64 `json:"current_error_rate"`
	FillRatio        float64 `json:"fill_ratio"`
}

// Stats reports the configured parameters plus the estimated current
// false-positive rate (1 - e^(-k*n/m))^k and the fraction of set bits.
func (f *Filter) Stats() Stats {
	current := 0.0
	if f.count > 0 {
		current = math.Pow(
			1-math.Exp(-float64(f.k)*float64(f.count)/float64(f.m)),
			float64(f.k),
		)
	}
	return Stats{
		Capacity:         f.capacity,
		ItemCount:        f.count,
		BitSize:          f.m,
		HashCount:        f.k,
		ErrorRate:        f.errorRate,
		CurrentErrorRate: current,
		FillRatio:        float64(f.bits.Count()) / float64(f.m),
	}
}
