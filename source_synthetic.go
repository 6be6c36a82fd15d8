package main

import (
	"log"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Synthetic generator timing: one block every 20 ms at the native rate
const syntheticBlockInterval = 20 * time.Millisecond

// SyntheticSource generates plausible EEG-like data when no hardware is
// available. Each channel is a mix of band-limited sinusoids (a dominant
// posterior alpha rhythm plus weaker theta and beta components) over a
// noise floor. Deterministic for a fixed seed.
type SyntheticSource struct {
	sampleRate int
	seed       int64
	push       PushFunc

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewSyntheticSource creates a synthetic sample source. A seed of 0 selects
// a time-based seed.
func NewSyntheticSource(sampleRate int, seed int64, push PushFunc) *SyntheticSource {
	return &SyntheticSource{
		sampleRate: sampleRate,
		seed:       seed,
		push:       push,
		stopChan:   make(chan struct{}),
	}
}

// Metadata returns the board descriptor
func (s *SyntheticSource) Metadata() BoardMetadata {
	return BoardMetadata{
		ChannelNames: museChannelNames,
		SampleRate:   s.sampleRate,
		Synthetic:    true,
	}
}

// Start begins the generator goroutine
func (s *SyntheticSource) Start() error {
	s.running = true
	s.wg.Add(1)
	go s.generateLoop()
	log.Printf("Synthetic board started: rate=%d Hz, channels=%v", s.sampleRate, museChannelNames)
	return nil
}

// Stop halts the generator. Safe to call more than once.
func (s *SyntheticSource) Stop() {
	if !s.running {
		return
	}
	s.running = false
	close(s.stopChan)
	s.wg.Wait()
	log.Println("Synthetic board stopped")
}

// channelProfile holds per-channel oscillation parameters. Temporal sites
// (TP9/TP10) carry more alpha than the frontal sites, which roughly matches
// real recordings.
type channelProfile struct {
	alphaAmp float64 // 8-13 Hz
	thetaAmp float64 // 4-8 Hz
	betaAmp  float64 // 13-30 Hz
	noiseAmp float64
}

var syntheticProfiles = []channelProfile{
	{alphaAmp: 18, thetaAmp: 6, betaAmp: 3, noiseAmp: 4}, // TP9
	{alphaAmp: 9, thetaAmp: 8, betaAmp: 5, noiseAmp: 4},  // AF7
	{alphaAmp: 9, thetaAmp: 8, betaAmp: 5, noiseAmp: 4},  // AF8
	{alphaAmp: 18, thetaAmp: 6, betaAmp: 3, noiseAmp: 4}, // TP10
}

func (s *SyntheticSource) generateLoop() {
	defer s.wg.Done()

	seed := s.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	blockSize := int(float64(s.sampleRate) * syntheticBlockInterval.Seconds())
	if blockSize < 1 {
		blockSize = 1
	}

	ticker := time.NewTicker(syntheticBlockInterval)
	defer ticker.Stop()

	sampleIndex := int64(0)
	dt := 1.0 / float64(s.sampleRate)

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			block := SampleBlock{
				Timestamp: time.Now(),
				Samples:   make([][]float64, len(museChannelNames)),
			}
			for ch := range museChannelNames {
				p := syntheticProfiles[ch%len(syntheticProfiles)]
				data := make([]float64, blockSize)
				for i := 0; i < blockSize; i++ {
					t := float64(sampleIndex+int64(i)) * dt
					data[i] = p.alphaAmp*math.Sin(2*math.Pi*10.0*t) +
						p.thetaAmp*math.Sin(2*math.Pi*6.0*t) +
						p.betaAmp*math.Sin(2*math.Pi*20.0*t) +
						p.noiseAmp*rng.NormFloat64()
				}
				block.Samples[ch] = data
			}
			sampleIndex += int64(blockSize)
			s.push(block)
		}
	}
}
