package main

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// BandDef is one named EEG frequency band
type BandDef struct {
	Name string
	Low  float64 // Hz, inclusive
	High float64 // Hz, inclusive
}

// eegBands are the canonical EEG frequency bands. These boundaries are the
// single source of truth for band power aggregation.
var eegBands = []BandDef{
	{"delta", 0.5, 4.0},
	{"theta", 4.0, 8.0},
	{"alpha", 8.0, 13.0},
	{"beta", 13.0, 30.0},
	{"gamma", 30.0, 50.0},
}

const (
	// welchMinSegment is the smallest usable FFT size; windows shorter
	// than this produce an empty estimate rather than a noisy one
	welchMinSegment = 64
	// welchMaxSegment caps the segment size so long windows average over
	// several segments instead of producing one jittery periodogram
	welchMaxSegment = 256
)

// largestPowerOfTwo returns the largest power of 2 <= n, or 0 for n <= 0
func largestPowerOfTwo(n int) int {
	if n <= 0 {
		return 0
	}
	p := 1
	for p*2 <= n {
		p <<= 1
	}
	return p
}

// hannWindow returns an n-point Hann taper
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// WelchPSD estimates the one-sided power spectral density of data using
// Welch's method: Hann-tapered segments with 50% overlap, power averaged
// across segments. The segment size is the largest power of two that fits
// the data, capped at welchMaxSegment; a window shorter than one segment
// degrades to a single-segment periodogram. Returns nil slices when the
// data is too short for any estimate.
//
// Frequency bins are spaced at sampleRate/segment Hz from 0 to Nyquist.
func WelchPSD(data []float64, sampleRate int) (freqs, psd []float64) {
	segLen := largestPowerOfTwo(len(data))
	if segLen > welchMaxSegment {
		segLen = welchMaxSegment
	}
	if segLen < welchMinSegment || sampleRate <= 0 {
		return nil, nil
	}

	step := segLen / 2
	numSegments := (len(data)-segLen)/step + 1

	window := hannWindow(segLen)
	windowPower := 0.0
	for _, w := range window {
		windowPower += w * w
	}

	fft := fourier.NewFFT(segLen)
	numBins := segLen/2 + 1
	psd = make([]float64, numBins)
	windowed := make([]float64, segLen)

	for seg := 0; seg < numSegments; seg++ {
		offset := seg * step
		for i := 0; i < segLen; i++ {
			windowed[i] = data[offset+i] * window[i]
		}
		coeffs := fft.Coefficients(nil, windowed)
		for i := 0; i < numBins; i++ {
			re := real(coeffs[i])
			im := imag(coeffs[i])
			psd[i] += re*re + im*im
		}
	}

	// Normalize to power density: average across segments, divide by the
	// window's power and the sample rate, double everything except DC and
	// Nyquist to fold in the negative frequencies
	norm := 1.0 / (float64(numSegments) * windowPower * float64(sampleRate))
	for i := range psd {
		psd[i] *= norm
		if i != 0 && i != numBins-1 {
			psd[i] *= 2
		}
	}

	df := float64(sampleRate) / float64(segLen)
	freqs = make([]float64, numBins)
	for i := range freqs {
		freqs[i] = float64(i) * df
	}
	return freqs, psd
}

// BandPower integrates the PSD over [low, high] Hz using the trapezoidal
// rule. Returns 0 when fewer than two bins fall inside the band.
func BandPower(freqs, psd []float64, low, high float64) float64 {
	lo := -1
	hi := -1
	for i, f := range freqs {
		if f >= low && lo == -1 {
			lo = i
		}
		if f <= high {
			hi = i
		}
	}
	if lo == -1 || hi <= lo {
		return 0
	}

	power := 0.0
	for i := lo; i < hi; i++ {
		power += 0.5 * (psd[i] + psd[i+1]) * (freqs[i+1] - freqs[i])
	}
	if power < 0 {
		power = 0
	}
	return power
}

// BandPowers returns the power in every canonical band. All five band names
// are always present, zero-valued when the estimate is empty.
func BandPowers(freqs, psd []float64) map[string]float64 {
	powers := make(map[string]float64, len(eegBands))
	for _, band := range eegBands {
		powers[band.Name] = BandPower(freqs, psd, band.Low, band.High)
	}
	return powers
}

// truncateToMaxFreq drops bins above maxFreq from both axes
func truncateToMaxFreq(freqs, psd []float64, maxFreq float64) ([]float64, []float64) {
	n := 0
	for n < len(freqs) && freqs[n] <= maxFreq {
		n++
	}
	return freqs[:n], psd[:n]
}
