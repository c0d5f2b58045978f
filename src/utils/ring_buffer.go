package utils

import (
	"market-sentinel/src/models"
	"sync"
)

// -----------------------------------------------------------------------------
// SignalBuffer is a fixed-size circular buffer of the most recent signals.
// When full, appending overwrites the oldest entry.
// -----------------------------------------------------------------------------

type SignalBuffer struct {
	data     []models.MSignal
	capacity int
	index    int // Next write position
	size     int // Current number of elements
	mu       sync.RWMutex
}

// -----------------------------------------------------------------------------

// NewSignalBuffer creates a new buffer with fixed capacity
func NewSignalBuffer(capacity int) *SignalBuffer {
	if capacity <= 0 {
		capacity = DefaultSignalBufferSize
	}

	return &SignalBuffer{
		data:     make([]models.MSignal, capacity),
		capacity: capacity,
	}
}

// -----------------------------------------------------------------------------

// Append adds a signal, dropping the oldest one when the buffer is full.
func (sb *SignalBuffer) Append(signal models.MSignal) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.data[sb.index] = signal
	sb.index = (sb.index + 1) % sb.capacity

	if sb.size < sb.capacity {
		sb.size++
	}
}

// -----------------------------------------------------------------------------

// Snapshot returns all signals in insertion order (oldest to newest)
func (sb *SignalBuffer) Snapshot() []models.MSignal {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	result := make([]models.MSignal, sb.size)
	if sb.size == 0 {
		return result
	}

	// Buffer full: oldest sits at the write position
	startIdx := 0
	if sb.size == sb.capacity {
		startIdx = sb.index
	}

	for i := 0; i < sb.size; i++ {
		result[i] = sb.data[(startIdx+i)%sb.capacity]
	}
	return result
}

// -----------------------------------------------------------------------------

// Latest returns up to n most recent signals, oldest first.
func (sb *SignalBuffer) Latest(n int) []models.MSignal {
	all := sb.Snapshot()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// -----------------------------------------------------------------------------

func (sb *SignalBuffer) Len() int {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.size
}

// -----------------------------------------------------------------------------

func (sb *SignalBuffer) Capacity() int {
	return sb.capacity
}

// -----------------------------------------------------------------------------

// Clear resets the buffer
func (sb *SignalBuffer) Clear() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.data = make([]models.MSignal, sb.capacity)
	sb.index = 0
	sb.size = 0
}
