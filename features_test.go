package main

import (
	"encoding/json"
	"reflect"
	"testing"
)

func testWindow(n, channels int, freq float64, sampleRate int) [][]float64 {
	window := make([][]float64, channels)
	for ch := range window {
		window[ch] = scaled(sine(n, freq, sampleRate), 20)
	}
	return window
}

func TestExtractWirePayloadShape(t *testing.T) {
	e := &Extractor{ChannelNames: museChannelNames, MaxFreqHz: 60, RawTail: 0}
	frame := e.Extract(testWindow(512, 4, 10, 256), 256, map[string]float64{"TP9": 0.8})
	frame.Timestamp = 1234.5

	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatal(err)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"timestamp", "raw", "fft", "band_powers", "signal_quality"} {
		if _, ok := obj[key]; !ok {
			t.Errorf("payload missing field %q", key)
		}
	}
	if len(obj) != 5 {
		t.Errorf("payload has %d top-level fields, want exactly 5", len(obj))
	}

	var fft map[string][]float64
	if err := json.Unmarshal(obj["fft"], &fft); err != nil {
		t.Fatal(err)
	}
	if _, ok := fft["freqs"]; !ok {
		t.Error("fft payload missing freqs")
	}
	for _, name := range museChannelNames {
		psd, ok := fft[name]
		if !ok {
			t.Errorf("fft payload missing channel %q", name)
			continue
		}
		if len(psd) != len(fft["freqs"]) {
			t.Errorf("channel %q PSD has %d bins, freqs has %d", name, len(psd), len(fft["freqs"]))
		}
	}

	var bands map[string]map[string]float64
	if err := json.Unmarshal(obj["band_powers"], &bands); err != nil {
		t.Fatal(err)
	}
	for _, name := range museChannelNames {
		for _, band := range []string{"delta", "theta", "alpha", "beta", "gamma"} {
			if _, ok := bands[name][band]; !ok {
				t.Errorf("channel %q missing band %q", name, band)
			}
		}
	}
}

func TestExtractScenario(t *testing.T) {
	// 300 samples per channel at 250 Hz into a 1024-capacity buffer,
	// snapshot 256, extract at 250 Hz
	rb := NewRingBuffer(4, 1024)
	samples := make([][]float64, 4)
	for ch := range samples {
		samples[ch] = scaled(sine(300, 10, 250), 20)
	}
	if err := rb.Push(SampleBlock{Samples: samples}); err != nil {
		t.Fatal(err)
	}

	window := rb.Snapshot(256)
	for ch := range window {
		if len(window[ch]) != 256 {
			t.Fatalf("channel %d window = %d samples, want 256", ch, len(window[ch]))
		}
	}

	e := &Extractor{ChannelNames: museChannelNames, MaxFreqHz: 60, RawTail: 0}
	// No quality metadata supplied at all
	frame := e.Extract(window, 250, nil)

	if len(frame.FFT.Freqs) == 0 {
		t.Fatal("expected non-empty frequency axis")
	}
	for _, f := range frame.FFT.Freqs {
		if f > 60 {
			t.Errorf("frequency bin %v Hz above the 60 Hz display range", f)
		}
	}
	for _, name := range museChannelNames {
		if len(frame.BandPowers[name]) != 5 {
			t.Errorf("channel %q has %d band powers, want 5", name, len(frame.BandPowers[name]))
		}
		if frame.SignalQuality[name] != 0 {
			t.Errorf("channel %q quality = %v, want default 0 with no metadata", name, frame.SignalQuality[name])
		}
	}
}

func TestExtractDeterministic(t *testing.T) {
	e := &Extractor{ChannelNames: museChannelNames, MaxFreqHz: 60, RawTail: 21}
	window := testWindow(512, 4, 10, 256)
	quality := map[string]float64{"TP9": 0.9, "AF7": 0.5}

	f1 := e.Extract(window, 256, quality)
	f2 := e.Extract(window, 256, quality)
	if !reflect.DeepEqual(f1, f2) {
		t.Error("identical inputs produced different frames")
	}
}

func TestExtractRawTail(t *testing.T) {
	e := &Extractor{ChannelNames: museChannelNames, MaxFreqHz: 60, RawTail: 21}
	frame := e.Extract(testWindow(512, 4, 10, 256), 256, nil)
	for _, name := range museChannelNames {
		if len(frame.Raw[name]) != 21 {
			t.Errorf("channel %q raw tail = %d samples, want 21", name, len(frame.Raw[name]))
		}
	}

	// Tail larger than the window sends everything
	e.RawTail = 10000
	frame = e.Extract(testWindow(512, 4, 10, 256), 256, nil)
	if len(frame.Raw["TP9"]) != 512 {
		t.Errorf("raw = %d samples, want full window of 512", len(frame.Raw["TP9"]))
	}
}

func TestExtractQualityClamping(t *testing.T) {
	e := &Extractor{ChannelNames: museChannelNames, MaxFreqHz: 60}
	frame := e.Extract(testWindow(512, 4, 10, 256), 256, map[string]float64{
		"TP9": 1.7, "AF7": -0.3, "AF8": 0.6,
	})
	if frame.SignalQuality["TP9"] != 1 {
		t.Errorf("TP9 quality = %v, want clamped to 1", frame.SignalQuality["TP9"])
	}
	if frame.SignalQuality["AF7"] != 0 {
		t.Errorf("AF7 quality = %v, want clamped to 0", frame.SignalQuality["AF7"])
	}
	if frame.SignalQuality["AF8"] != 0.6 {
		t.Errorf("AF8 quality = %v, want pass-through 0.6", frame.SignalQuality["AF8"])
	}
	if frame.SignalQuality["TP10"] != 0 {
		t.Errorf("TP10 quality = %v, want default 0", frame.SignalQuality["TP10"])
	}
}

func TestExtractShortWindowDegradesGracefully(t *testing.T) {
	e := &Extractor{ChannelNames: museChannelNames, MaxFreqHz: 60}
	frame := e.Extract(testWindow(16, 4, 10, 256), 256, nil)

	if len(frame.FFT.Freqs) != 0 {
		t.Errorf("expected empty frequency axis for a 16-sample window")
	}
	for _, name := range museChannelNames {
		if len(frame.Raw[name]) != 16 {
			t.Errorf("channel %q raw = %d samples, want 16", name, len(frame.Raw[name]))
		}
		for band, p := range frame.BandPowers[name] {
			if p != 0 {
				t.Errorf("channel %q band %q = %v, want 0", name, band, p)
			}
		}
	}
}

func TestExtractMissingChannelData(t *testing.T) {
	e := &Extractor{ChannelNames: museChannelNames, MaxFreqHz: 60}
	// Window only has data for the first two channels
	frame := e.Extract(testWindow(512, 2, 10, 256), 256, nil)

	for _, name := range []string{"AF8", "TP10"} {
		if len(frame.Raw[name]) != 0 {
			t.Errorf("channel %q raw should be empty", name)
		}
		if len(frame.FFT.Channels[name]) != 0 {
			t.Errorf("channel %q PSD should be empty", name)
		}
	}
	// Channels with data are unaffected
	if len(frame.FFT.Channels["TP9"]) == 0 {
		t.Error("channel TP9 PSD should be populated")
	}
}
