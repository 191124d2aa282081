package services

import "math"

// NominalPatternSize is the byte length of every generated pattern.
const NominalPatternSize = 1024

// maxEntropyPerByte is log2(256), the entropy of a perfectly uniform byte stream.
const maxEntropyPerByte = 8.0

// MeasureEffectiveness scores a blob by the Shannon entropy of its byte
// histogram, normalised to [0,1].
func MeasureEffectiveness(data []byte) float64 {
	return math.Min(1, ShannonEntropy(data)/maxEntropyPerByte)
}

// ShannonEntropy returns the entropy of the byte-value distribution in bits per byte.
func ShannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}

	var frequency [256]int
	for _, b := range data {
		frequency[b]++
	}

	total := float64(len(data))
	entropy := 0.0
	for _, freq := range frequency {
		if freq > 0 {
			p := float64(freq) / total
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}

// MeasureResourceUsage is the blob length relative to NominalPatternSize.
func MeasureResourceUsage(data []byte) float64 {
	return math.Min(1, float64(len(data))/NominalPatternSize)
}
