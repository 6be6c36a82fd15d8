package main

import (
	"fmt"
	"sync"
)

// RingBuffer keeps the most recent samples for every channel. The sample
// source pushes blocks at its own pace; the broadcaster takes snapshots at
// tick time. One mutex covers each push/snapshot pair so a snapshot never
// observes a block half-written across channels.
type RingBuffer struct {
	mu       sync.Mutex
	channels [][]float64 // circular storage, one ring per channel
	capacity int
	head     int // next write position
	size     int // valid samples, <= capacity
}

// NewRingBuffer creates a buffer holding capacity samples per channel
func NewRingBuffer(numChannels, capacity int) *RingBuffer {
	if numChannels < 1 || capacity < 1 {
		panic(fmt.Sprintf("invalid ring buffer dimensions: %d channels, capacity %d", numChannels, capacity))
	}
	channels := make([][]float64, numChannels)
	for i := range channels {
		channels[i] = make([]float64, capacity)
	}
	return &RingBuffer{
		channels: channels,
		capacity: capacity,
	}
}

// Capacity returns the per-channel capacity
func (rb *RingBuffer) Capacity() int {
	return rb.capacity
}

// Len returns the number of valid samples per channel
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size
}

// Push appends a block of new readings, evicting the oldest samples once
// capacity is reached. Blocks whose channel count does not match the buffer
// are rejected so the channels stay length-synchronized.
func (rb *RingBuffer) Push(block SampleBlock) error {
	if len(block.Samples) != len(rb.channels) {
		return fmt.Errorf("block has %d channels, buffer has %d", len(block.Samples), len(rb.channels))
	}
	n := len(block.Samples[0])
	for _, ch := range block.Samples {
		if len(ch) != n {
			return fmt.Errorf("block channels have unequal lengths")
		}
	}
	if n == 0 {
		return nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	// A block larger than the whole buffer only keeps its tail
	start := 0
	if n > rb.capacity {
		start = n - rb.capacity
	}

	for i := start; i < n; i++ {
		for ch := range rb.channels {
			rb.channels[ch][rb.head] = block.Samples[ch][i]
		}
		rb.head = (rb.head + 1) % rb.capacity
	}

	rb.size += n - start
	if rb.size > rb.capacity {
		rb.size = rb.capacity
	}
	return nil
}

// Snapshot copies out the most recent n samples per channel, oldest first.
// During warm-up fewer than n samples exist and the result is shorter; it
// never blocks and never errors.
func (rb *RingBuffer) Snapshot(n int) [][]float64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if n > rb.size {
		n = rb.size
	}
	out := make([][]float64, len(rb.channels))
	if n <= 0 {
		for ch := range out {
			out[ch] = []float64{}
		}
		return out
	}

	start := (rb.head - n + rb.capacity*2) % rb.capacity
	for ch := range rb.channels {
		data := make([]float64, n)
		if start+n <= rb.capacity {
			copy(data, rb.channels[ch][start:start+n])
		} else {
			first := rb.capacity - start
			copy(data, rb.channels[ch][start:])
			copy(data[first:], rb.channels[ch][:n-first])
		}
		out[ch] = data
	}
	return out
}
