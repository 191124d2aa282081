package services

import (
	"crypto/rand"
	"math"
	"testing"
)

func TestMeasureEffectiveness(t *testing.T) {
	uniform := make([]byte, 256)
	for i := range uniform {
		uniform[i] = byte(i)
	}

	twoValues := make([]byte, 1024)
	for i := range twoValues {
		twoValues[i] = byte(i % 2)
	}

	tests := []struct {
		name     string
		data     []byte
		expected float64
	}{
		{"empty", nil, 0},
		{"single byte", []byte{7}, 0},
		{"constant", make([]byte, NominalPatternSize), 0},
		{"two equiprobable values (1 bit)", twoValues, 1.0 / 8},
		{"every byte value once (8 bits)", uniform, 1},
		{"word 'invalid'", []byte("invalid"), shannon([]float64{2, 1, 1, 1, 1, 1}, 7) / 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MeasureEffectiveness(tt.data)
			if math.Abs(got-tt.expected) > 1e-12 {
				t.Errorf("Expected effectiveness %.6f, got %.6f", tt.expected, got)
			}
		})
	}
}

// shannon computes entropy from raw counts for cross-checking
func shannon(counts []float64, total float64) float64 {
	h := 0.0
	for _, c := range counts {
		p := c / total
		h -= p * math.Log2(p)
	}
	return h
}

func TestMeasureEffectiveness_RandomDataIsBounded(t *testing.T) {
	for i := 0; i < 50; i++ {
		data := make([]byte, NominalPatternSize)
		if _, err := rand.Read(data); err != nil {
			t.Fatalf("Failed to read random bytes: %v", err)
		}
		score := MeasureEffectiveness(data)
		if score < 0 || score > 1 {
			t.Fatalf("Effectiveness out of range: %f", score)
		}
		// 1 KiB of uniform random bytes sits well above 7 bits/byte
		if score < 0.85 {
			t.Errorf("Random data scored suspiciously low: %f", score)
		}
	}
}

func TestMeasureEffectiveness_Deterministic(t *testing.T) {
	data := []byte("the same bytes always score the same")
	first := MeasureEffectiveness(data)
	for i := 0; i < 10; i++ {
		if got := MeasureEffectiveness(data); got != first {
			t.Fatalf("Expected identical score %v, got %v", first, got)
		}
	}
}

func TestMeasureResourceUsage(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		expected float64
	}{
		{"empty", 0, 0},
		{"half", NominalPatternSize / 2, 0.5},
		{"nominal", NominalPatternSize, 1},
		{"oversized is clamped", NominalPatternSize * 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MeasureResourceUsage(make([]byte, tt.size))
			if got != tt.expected {
				t.Errorf("Expected resource usage %v, got %v", tt.expected, got)
			}
		})
	}
}
