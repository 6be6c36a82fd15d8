package main

import "encoding/json"

// FeatureFrame is the unit of output: one frame per broadcast tick. The
// JSON field names and the five band names are the wire contract with the
// frontend and must not change.
type FeatureFrame struct {
	Timestamp     float64                       `json:"timestamp"` // unix seconds, fractional
	Raw           map[string][]float64          `json:"raw"`
	FFT           FFTPayload                    `json:"fft"`
	BandPowers    map[string]map[string]float64 `json:"band_powers"`
	SignalQuality map[string]float64            `json:"signal_quality"`
}

// FFTPayload carries the shared frequency axis plus one PSD vector per
// channel. It marshals as a flat object: {"freqs": [...], "TP9": [...], ...}
type FFTPayload struct {
	Freqs    []float64
	Channels map[string][]float64
}

// MarshalJSON flattens the payload into a single object keyed by "freqs"
// and the channel names
func (p FFTPayload) MarshalJSON() ([]byte, error) {
	obj := make(map[string][]float64, len(p.Channels)+1)
	if p.Freqs != nil {
		obj["freqs"] = p.Freqs
	} else {
		obj["freqs"] = []float64{}
	}
	for name, psd := range p.Channels {
		if psd == nil {
			psd = []float64{}
		}
		obj[name] = psd
	}
	return json.Marshal(obj)
}

// UnmarshalJSON splits a flat fft object back into the frequency axis and
// per-channel vectors
func (p *FFTPayload) UnmarshalJSON(data []byte) error {
	var obj map[string][]float64
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	p.Freqs = obj["freqs"]
	delete(obj, "freqs")
	p.Channels = obj
	return nil
}

// Extractor turns analysis windows into feature frames. Configured once at
// startup; Extract itself is pure and safe for concurrent use.
type Extractor struct {
	ChannelNames []string
	MaxFreqHz    float64 // PSD display range upper bound
	RawTail      int     // raw samples per channel per frame, 0 = all
}

// Extract computes the feature frame for one analysis window. The window
// holds one slice per channel, aligned with ChannelNames; missing or short
// channel data yields zero-valued features, never an error. Quality scores
// are passed through clamped to [0, 1], defaulting to 0 for channels with
// no score. The caller stamps the frame time.
func (e *Extractor) Extract(window [][]float64, sampleRate int, quality map[string]float64) FeatureFrame {
	frame := FeatureFrame{
		Raw:           make(map[string][]float64, len(e.ChannelNames)),
		FFT:           FFTPayload{Freqs: []float64{}, Channels: make(map[string][]float64, len(e.ChannelNames))},
		BandPowers:    make(map[string]map[string]float64, len(e.ChannelNames)),
		SignalQuality: make(map[string]float64, len(e.ChannelNames)),
	}

	freqsSet := false
	for i, name := range e.ChannelNames {
		var data []float64
		if i < len(window) {
			data = window[i]
		}

		frame.Raw[name] = rawTail(data, e.RawTail)

		fullFreqs, fullPSD := WelchPSD(data, sampleRate)
		frame.BandPowers[name] = BandPowers(fullFreqs, fullPSD)

		freqs, psd := truncateToMaxFreq(fullFreqs, fullPSD, e.MaxFreqHz)
		if !freqsSet && len(freqs) > 0 {
			frame.FFT.Freqs = freqs
			freqsSet = true
		}
		if psd == nil {
			psd = []float64{}
		}
		frame.FFT.Channels[name] = psd
		frame.SignalQuality[name] = clampQuality(quality[name])
	}

	return frame
}

// rawTail returns the most recent tail samples, copied so the frame stays
// immutable after the snapshot is reused
func rawTail(data []float64, tail int) []float64 {
	if tail > 0 && len(data) > tail {
		data = data[len(data)-tail:]
	}
	out := make([]float64, len(data))
	copy(out, data)
	return out
}
