// Package bloom implements a fixed-capacity Bloom filter used as the
// approximate, stage-1 membership test ahead of an authoritative lookup
// for URL deduplication. The slice-sizing math and binary
// serialization layout mirror a classic capacity/error-rate Bloom filter:
// k = log2(1/errorRate) slices, each sized so that k*bitsPerSlice bits hold
// capacity items at errorRate false-positive probability.
package bloom

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Filter is a fixed-capacity, k-slice Bloom filter over a packed bit array.
type Filter struct {
	errorRate     float64
	numSlices     int
	bitsPerSlice  int
	capacity      int
	count         int
	bits          []uint64 // packed, numSlices*bitsPerSlice bits total
}

// New creates an empty Filter sized for capacity items at errorRate false
// positive probability (0 < errorRate < 1, capacity > 0).
func New(capacity int, errorRate float64) (*Filter, error) {
	if !(errorRate > 0 && errorRate < 1) {
		return nil, fmt.Errorf("bloom: error rate must be between 0 and 1")
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("bloom: capacity must be > 0")
	}

	numSlices := int(math.Ceil(math.Log2(1.0 / errorRate)))
	if numSlices < 1 {
		numSlices = 1
	}
	bitsPerSlice := int(math.Ceil(
		(float64(capacity) * math.Abs(math.Log(errorRate))) /
			(float64(numSlices) * math.Pow(math.Ln2, 2)),
	))
	if bitsPerSlice < 1 {
		bitsPerSlice = 1
	}

	return newFilter(errorRate, numSlices, bitsPerSlice, capacity, 0), nil
}

func newFilter(errorRate float64, numSlices, bitsPerSlice, capacity, count int) *Filter {
	numBits := numSlices * bitsPerSlice
	return &Filter{
		errorRate:    errorRate,
		numSlices:    numSlices,
		bitsPerSlice: bitsPerSlice,
		capacity:     capacity,
		count:        count,
		bits:         make([]uint64, (numBits+63)/64),
	}
}

// Count returns the number of keys added so far.
func (f *Filter) Count() int { return f.count }

// Capacity returns the filter's configured capacity.
func (f *Filter) Capacity() int { return f.capacity }

// Contains tests approximate membership: a false return is certain, a true
// return may be a false positive.
func (f *Filter) Contains(key string) bool {
	for _, bit := range f.slicedOffsets(key) {
		if !f.getBit(bit) {
			return false
		}
	}
	return true
}

// Add inserts key into the filter and reports whether it already appeared
// to be a member (i.e. every slice bit was already set) before insertion.
// A true return is a candidate for "already seen" (subject to the filter's
// false-positive rate); a false return is a certain first sighting.
func (f *Filter) Add(key string) (alreadyPresent bool) {
	offsets := f.slicedOffsets(key)
	foundAll := true
	for _, bit := range offsets {
		if !f.getBit(bit) {
			foundAll = false
		}
		f.setBit(bit)
	}
	if !foundAll {
		f.count++
	}
	return foundAll
}

// slicedOffsets derives numSlices bit offsets for key, each within its own
// slice of bitsPerSlice bits, by hashing key salted with the slice index.
func (f *Filter) slicedOffsets(key string) []uint64 {
	offsets := make([]uint64, f.numSlices)
	buf := make([]byte, 4)
	for i := 0; i < f.numSlices; i++ {
		binary.BigEndian.PutUint32(buf, uint32(i))
		h := sha256.New()
		h.Write(buf)
		h.Write([]byte(key))
		digest := h.Sum(nil)
		v := binary.BigEndian.Uint64(digest[:8])
		offsets[i] = uint64(i)*uint64(f.bitsPerSlice) + v%uint64(f.bitsPerSlice)
	}
	return offsets
}

func (f *Filter) getBit(pos uint64) bool {
	return f.bits[pos/64]&(1<<(pos%64)) != 0
}

func (f *Filter) setBit(pos uint64) {
	f.bits[pos/64] |= 1 << (pos % 64)
}

// header is the fixed-size, little-endian serialization preamble:
// error rate (float64), numSlices, bitsPerSlice, capacity, count (uint64 x4).
const headerSize = 8 + 8*4

// WriteTo serializes the filter as header + packed bit array.
func (f *Filter) WriteTo(w io.Writer) (int64, error) {
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(header[0:8], math.Float64bits(f.errorRate))
	binary.LittleEndian.PutUint64(header[8:16], uint64(f.numSlices))
	binary.LittleEndian.PutUint64(header[16:24], uint64(f.bitsPerSlice))
	binary.LittleEndian.PutUint64(header[24:32], uint64(f.capacity))
	binary.LittleEndian.PutUint64(header[32:40], uint64(f.count))
	n, err := w.Write(header)
	if err != nil {
		return int64(n), err
	}

	body := make([]byte, len(f.bits)*8)
	for i, word := range f.bits {
		binary.LittleEndian.PutUint64(body[i*8:i*8+8], word)
	}
	m, err := w.Write(body)
	return int64(n + m), err
}

// ReadFrom deserializes a filter previously written by WriteTo.
func ReadFrom(r io.Reader) (*Filter, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("bloom: read header: %w", err)
	}
	errorRate := math.Float64frombits(binary.LittleEndian.Uint64(header[0:8]))
	numSlices := int(binary.LittleEndian.Uint64(header[8:16]))
	bitsPerSlice := int(binary.LittleEndian.Uint64(header[16:24]))
	capacity := int(binary.LittleEndian.Uint64(header[24:32]))
	count := int(binary.LittleEndian.Uint64(header[32:40]))

	f := newFilter(errorRate, numSlices, bitsPerSlice, capacity, count)
	body := make([]byte, len(f.bits)*8)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("bloom: read bits: %w", err)
	}
	for i := range f.bits {
		f.bits[i] = binary.LittleEndian.Uint64(body[i*8 : i*8+8])
	}
	return f, nil
}
