package vad

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"
)

// defaultWindowSize is the number of samples per classification window,
// 32ms at 16kHz.
const defaultWindowSize = 512

// Interval is a contiguous run of speech within a classified buffer,
// expressed as offsets from the buffer start.
type Interval struct {
	Start time.Duration
	End   time.Duration
}

// Detector is a windowed energy-based voice activity detector.
type Detector struct {
	threshold  float64
	windowSize int
	sampleRate int

	mu           sync.Mutex
	lastProb     float64
	totalWindows uint64
	voiceWindows uint64
}

// NewDetector creates a detector. threshold is the speech probability
// cutoff in [0, 1].
func NewDetector(threshold float64, sampleRate int) (*Detector, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	return &Detector{
		threshold:  threshold,
		windowSize: defaultWindowSize,
		sampleRate: sampleRate,
	}, nil
}

// IsSpeech reports whether any window of the buffer crosses the speech
// threshold.
func (d *Detector) IsSpeech(pcm []byte) bool {
	speech, _ := d.Classify(pcm)
	return speech
}

// Classify scans the buffer window by window and returns whether speech
// was detected along with the speech intervals found. Incomplete trailing
// windows are skipped.
func (d *Detector) Classify(pcm []byte) (bool, []Interval) {
	d.mu.Lock()
	defer d.mu.Unlock()

	windowBytes := d.windowSize * 2
	windowDur := time.Duration(d.windowSize) * time.Second / time.Duration(d.sampleRate)

	var intervals []Interval
	var open *Interval
	speech := false

	for off := 0; off+windowBytes <= len(pcm); off += windowBytes {
		prob := d.windowProbability(pcm[off : off+windowBytes])
		d.totalWindows++

		start := time.Duration(off/2) * time.Second / time.Duration(d.sampleRate)
		if prob >= d.threshold {
			speech = true
			d.voiceWindows++
			if open == nil {
				open = &Interval{Start: start}
			}
			open.End = start + windowDur
		} else if open != nil {
			intervals = append(intervals, *open)
			open = nil
		}
	}
	if open != nil {
		intervals = append(intervals, *open)
	}
	return speech, intervals
}

// windowProbability computes a smoothed, normalized RMS energy for one
// window. A real model would run inference here; the normalization
// constant approximates conversational speech levels.
func (d *Detector) windowProbability(window []byte) float64 {
	var energy float64
	n := len(window) / 2
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(window[i*2:]))
		energy += float64(s) * float64(s)
	}
	energy = math.Sqrt(energy / float64(n))

	prob := energy / 10000.0
	if prob > 1 {
		prob = 1
	}

	// Light smoothing against window-boundary flicker.
	const smoothing = 0.1
	if d.totalWindows > 0 {
		prob = (1-smoothing)*prob + smoothing*d.lastProb
	}
	d.lastProb = prob
	return prob
}
