package main

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

// Broadcaster runs the periodic pipeline: snapshot the ring buffer, extract
// features, serialize once, fan out to every client. One goroutine, fixed
// tick rate, no tick backlog — when a cycle overruns the ticker simply
// fires again immediately without compounding drift.
type Broadcaster struct {
	ring      *RingBuffer
	clients   *ClientManager
	extractor *Extractor
	metrics   *Metrics

	sampleRate    int
	windowSamples int
	interval      time.Duration

	// alwaysExtract keeps the latest frame fresh even with no websocket
	// clients, for the MQTT publisher
	alwaysExtract bool

	lastMu    sync.RWMutex
	lastFrame *FeatureFrame

	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBroadcaster creates the scheduler. Tick rate and window length come
// from the stream config; the sample rate from the board metadata.
func NewBroadcaster(ring *RingBuffer, clients *ClientManager, extractor *Extractor,
	cfg *StreamConfig, sampleRate int, metrics *Metrics) (*Broadcaster, error) {
	if cfg.UpdateRateHz <= 0 {
		return nil, fmt.Errorf("invalid update rate %.2f Hz", cfg.UpdateRateHz)
	}
	return &Broadcaster{
		ring:          ring,
		clients:       clients,
		extractor:     extractor,
		metrics:       metrics,
		sampleRate:    sampleRate,
		windowSamples: cfg.WindowSamples(sampleRate),
		interval:      time.Duration(float64(time.Second) / cfg.UpdateRateHz),
		stopChan:      make(chan struct{}),
	}, nil
}

// SetAlwaysExtract makes every tick extract even with no clients connected
func (b *Broadcaster) SetAlwaysExtract(v bool) {
	b.alwaysExtract = v
}

// Start begins the tick loop
func (b *Broadcaster) Start() {
	b.running = true
	b.wg.Add(1)
	go b.tickLoop()
	log.Printf("Broadcast loop started at %.1f Hz (window: %d samples)",
		float64(time.Second)/float64(b.interval), b.windowSamples)
}

// Stop halts the tick loop. Idempotent.
func (b *Broadcaster) Stop() {
	if !b.running {
		return
	}
	b.running = false
	b.stopOnce.Do(func() {
		close(b.stopChan)
	})
	b.wg.Wait()
	log.Println("Broadcast loop stopped")
}

// LatestFrame returns the most recently extracted frame, or nil before the
// first successful tick
func (b *Broadcaster) LatestFrame() *FeatureFrame {
	b.lastMu.RLock()
	defer b.lastMu.RUnlock()
	return b.lastFrame
}

func (b *Broadcaster) tickLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.tick()
		}
	}
}

// tick runs one broadcast cycle. A panic anywhere in extraction or
// serialization skips this tick and the loop carries on; a momentary
// computation failure must never take the stream down.
func (b *Broadcaster) tick() {
	if b.metrics != nil {
		b.metrics.IncTicks()
	}

	// Idle when nobody is listening, unless something downstream wants
	// the latest frame regardless
	if b.clients.Count() == 0 && !b.alwaysExtract {
		return
	}

	payload, frame, ok := b.extract()
	if !ok {
		if b.metrics != nil {
			b.metrics.IncTicksSkipped()
		}
		return
	}

	b.lastMu.Lock()
	b.lastFrame = frame
	b.lastMu.Unlock()

	b.clients.Broadcast(payload)
}

func (b *Broadcaster) extract() (payload []byte, frame *FeatureFrame, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: Skipping tick, feature extraction panicked: %v", r)
			payload, frame, ok = nil, nil, false
		}
	}()

	start := time.Now()

	window := b.ring.Snapshot(b.windowSamples)

	quality := make(map[string]float64, len(b.extractor.ChannelNames))
	for i, name := range b.extractor.ChannelNames {
		if i < len(window) {
			quality[name] = SignalQuality(window[i], b.sampleRate)
		}
	}

	f := b.extractor.Extract(window, b.sampleRate, quality)
	f.Timestamp = float64(time.Now().UnixNano()) / 1e9

	data, err := json.Marshal(f)
	if err != nil {
		log.Printf("ERROR: Skipping tick, frame serialization failed: %v", err)
		return nil, nil, false
	}

	elapsed := time.Since(start)
	if b.metrics != nil {
		b.metrics.ObserveExtractDuration(elapsed)
	}
	if DebugMode && elapsed > b.interval {
		log.Printf("DEBUG: Tick overran its interval: %v > %v", elapsed, b.interval)
	}
	return data, &f, true
}
