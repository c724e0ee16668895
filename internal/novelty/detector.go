// Package novelty scores observation frames by their distance to the most
// similar frame seen so far.
package novelty

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch is returned when a frame's dimensions differ from the
// frames already stored by the detector.
var ErrShapeMismatch = errors.New("novelty: frame shape mismatch")

const (
	// MaxScore is returned for the first frame a detector sees.
	MaxScore = 1.0

	// pixelRange normalises mean absolute differences of 8-bit pixels.
	pixelRange = 256.0

	DefaultThreshold = 0.1
)

// Options configure a Detector.
type Options struct {
	// Threshold is the score a frame must exceed to be stored.
	Threshold float64
	// MaxFrames caps the store. Zero keeps every novel frame.
	MaxFrames int
	// Rand drives reservoir replacement once MaxFrames is reached.
	Rand *rand.Rand
}

// Detector keeps novel frames and scores new ones by nearest-neighbour
// distance. Frames are retained across episodes.
type Detector struct {
	mu        sync.RWMutex
	threshold float64
	maxFrames int
	rng       *rand.Rand

	rows, cols int
	frames     []*mat.Dense
	accepted   int
}

// NewDetector creates a detector. A non-positive threshold selects
// DefaultThreshold.
func NewDetector(opts Options) *Detector {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Detector{
		threshold: opts.Threshold,
		maxFrames: opts.MaxFrames,
		rng:       rng,
	}
}

// Threshold returns the storage threshold.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// Observe returns how different frame is from the closest stored frame, in
// [0, 1]. The frame is stored when the score exceeds the threshold.
func (d *Detector) Observe(frame mat.Matrix) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, c := frame.Dims()
	if len(d.frames) > 0 && (r != d.rows || c != d.cols) {
		return 0, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrShapeMismatch, r, c, d.rows, d.cols)
	}

	score := d.nearest(frame, r, c)
	if score > d.threshold {
		d.store(frame, r, c)
	}
	return score, nil
}

// Len returns the number of stored frames.
func (d *Detector) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.frames)
}

// Reset drops every stored frame.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = nil
	d.accepted = 0
	d.rows, d.cols = 0, 0
}

func (d *Detector) nearest(frame mat.Matrix, r, c int) float64 {
	if len(d.frames) == 0 {
		return MaxScore
	}

	n := float64(r * c)
	best := MaxScore
	var diff mat.Dense
	for _, stored := range d.frames {
		diff.Reset()
		diff.Sub(frame, stored)
		score := floats.Norm(diff.RawMatrix().Data, 1) / n / pixelRange
		if score < best {
			best = score
		}
	}
	return best
}

func (d *Detector) store(frame mat.Matrix, r, c int) {
	d.rows, d.cols = r, c
	d.accepted++
	cp := mat.DenseCopyOf(frame)

	if d.maxFrames <= 0 || len(d.frames) < d.maxFrames {
		d.frames = append(d.frames, cp)
		return
	}
	// Reservoir sampling keeps a uniform sample of every accepted frame.
	if j := d.rng.Intn(d.accepted); j < d.maxFrames {
		d.frames[j] = cp
	}
}
