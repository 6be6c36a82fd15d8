package main

import "math"

// Signal quality thresholds. Amplitudes are in microvolts, matching the
// scale the headband delivers.
const (
	qualityRMSMin            = 0.5   // below this, likely flatline
	qualityRMSMax            = 200.0 // above this, likely motion artifact
	qualityFlatlineStd       = 0.1
	qualityLineNoiseRatioMax = 0.4 // 50/60 Hz power as fraction of total
)

// SignalQuality scores one channel's window from 0.0 (unusable) to 1.0
// (good contact). The heuristic penalizes out-of-range RMS amplitude,
// flatlined electrodes and mains hum contamination. Windows shorter than
// one FFT segment score 0.
func SignalQuality(data []float64, sampleRate int) float64 {
	if len(data) < welchMinSegment {
		return 0.0
	}

	score := 1.0

	sum := 0.0
	sumSq := 0.0
	for _, v := range data {
		sum += v
		sumSq += v * v
	}
	n := float64(len(data))
	rms := math.Sqrt(sumSq / n)
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	std := math.Sqrt(variance)

	if rms < qualityRMSMin {
		score *= 0.2
	} else if rms > qualityRMSMax {
		score *= 0.3
	}

	if std < qualityFlatlineStd {
		score *= 0.1
	}

	// Mains hum check: power around 50 Hz and 60 Hz relative to the whole
	// spectrum
	freqs, psd := WelchPSD(data, sampleRate)
	if len(psd) > 0 {
		total := BandPower(freqs, psd, 0, freqs[len(freqs)-1])
		if total > 0 {
			noise := BandPower(freqs, psd, 48.0, 52.0) + BandPower(freqs, psd, 58.0, 62.0)
			if noise/total > qualityLineNoiseRatioMax {
				score *= 0.5
			}
		}
	}

	return clampQuality(score)
}

// clampQuality bounds a score to [0, 1]
func clampQuality(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
