package main

import (
	"log"
	"time"
)

// museChannelNames are the electrode sites of the Muse 2 headband, in
// display order
var museChannelNames = []string{"TP9", "AF7", "AF8", "TP10"}

// BoardMetadata describes the sample source. Written once at startup,
// read-only afterwards.
type BoardMetadata struct {
	ChannelNames []string
	SampleRate   int
	Synthetic    bool
}

// SampleBlock is a batch of new readings per channel plus a capture timestamp
type SampleBlock struct {
	Timestamp time.Time
	Samples   [][]float64 // one slice per channel, all the same length
}

// PushFunc receives sample blocks on the source's delivery goroutine
type PushFunc func(SampleBlock)

// SampleSource abstracts the EEG board. Implementations deliver sample
// blocks asynchronously at their native rate by invoking the PushFunc they
// were constructed with.
type SampleSource interface {
	Metadata() BoardMetadata
	Start() error
	Stop()
}

// StartSource creates and starts the configured sample source. When the live
// source fails to start it falls back to the synthetic generator unless the
// config forbids it.
func StartSource(cfg *BoardConfig, push PushFunc) (SampleSource, error) {
	if cfg.Mode == ModeSynthetic {
		src := NewSyntheticSource(cfg.SampleRate, cfg.SyntheticSeed, push)
		if err := src.Start(); err != nil {
			return nil, err
		}
		return src, nil
	}

	live, err := NewUDPSource(cfg.LiveListen, cfg.LiveMulticastIface, cfg.SampleRate, push)
	if err == nil {
		err = live.Start()
	}
	if err != nil {
		if cfg.NoFallback {
			return nil, err
		}
		log.Printf("Warning: live source failed (%v), falling back to synthetic board", err)
		src := NewSyntheticSource(cfg.SampleRate, cfg.SyntheticSeed, push)
		if err := src.Start(); err != nil {
			return nil, err
		}
		return src, nil
	}
	return live, nil
}
