// Package facematch decides whether a probe face descriptor belongs to one
// of the enrolled identities.
//
// The matcher is a pure function over a caller-supplied snapshot: it does
// not log, persist or hold state between calls, so a single Matcher can
// serve concurrent requests.
package facematch

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
)

const (
	// DefaultThreshold is the acceptance distance of the dlib/face-api
	// ResNet embedding the browser client ships with.
	DefaultThreshold = 0.6
	// DefaultDimensions is the length of that model's descriptors.
	DefaultDimensions = 128
)

// ErrInvalidDescriptor is returned for a probe that is missing, has the
// wrong length or contains non-finite values.
var ErrInvalidDescriptor = errors.New("invalid face descriptor")

// Descriptor is a face embedding.
type Descriptor []float64

// Candidate is an enrolled identity. A nil Descriptor means the user has
// not enrolled a face and is skipped.
type Candidate struct {
	ID         string
	Descriptor Descriptor
}

// Result is the outcome of one match.
type Result struct {
	Matched bool
	// ID is empty unless Matched, so a rejection never names the closest identity.
	ID string
	// Distance is the smallest distance seen, +Inf when nothing was comparable.
	Distance float64
	// Compared counts candidates whose descriptor has the probe's length.
	Compared int
}

// NoCandidates reports a rejection where nothing was within finite distance.
func (r Result) NoCandidates() bool {
	return !r.Matched && math.IsInf(r.Distance, 1)
}

type Config struct {
	Threshold  float64
	Dimensions int
}

// DefaultConfig returns the settings of the stock browser embedding model.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold, Dimensions: DefaultDimensions}
}

// ConfigFromEnv reads FACE_MATCH_THRESHOLD and FACE_DESCRIPTOR_DIM, keeping
// defaults for unset values. Malformed values are reported rather than ignored.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if v := os.Getenv("FACE_MATCH_THRESHOLD"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("FACE_MATCH_THRESHOLD: %w", err)
		}
		cfg.Threshold = t
	}
	if v := os.Getenv("FACE_DESCRIPTOR_DIM"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("FACE_DESCRIPTOR_DIM: %w", err)
		}
		cfg.Dimensions = d
	}
	return cfg, nil
}

// Matcher performs threshold-gated nearest-neighbour search with Euclidean distance.
type Matcher struct {
	threshold  float64
	dimensions int
}

func NewMatcher(cfg Config) (*Matcher, error) {
	if !(cfg.Threshold > 0) || math.IsInf(cfg.Threshold, 0) {
		return nil, fmt.Errorf("face match threshold must be a positive number, got %v", cfg.Threshold)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("face descriptor dimensions must be positive, got %d", cfg.Dimensions)
	}
	return &Matcher{threshold: cfg.Threshold, dimensions: cfg.Dimensions}, nil
}

func (m *Matcher) Threshold() float64 { return m.threshold }

func (m *Matcher) Dimensions() int { return m.dimensions }

// Validate checks a descriptor received at the boundary.
func (m *Matcher) Validate(d Descriptor) error {
	if len(d) != m.dimensions {
		return fmt.Errorf("%w: want %d values, got %d", ErrInvalidDescriptor, m.dimensions, len(d))
	}
	for i, v := range d {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: value %d is not finite", ErrInvalidDescriptor, i)
		}
	}
	return nil
}

// Match scans candidates in order and returns the nearest one if it lies
// strictly below the threshold. Ties keep the earliest candidate.
func (m *Matcher) Match(probe Descriptor, candidates []Candidate) (Result, error) {
	if err := m.Validate(probe); err != nil {
		return Result{}, err
	}

	best := math.Inf(1)
	bestID := ""
	compared := 0
	for _, c := range candidates {
		if len(c.Descriptor) != len(probe) {
			continue
		}
		compared++
		d := EuclideanDistance(probe, c.Descriptor)
		if d < best {
			best = d
			bestID = c.ID
		}
	}

	if best < m.threshold {
		return Result{Matched: true, ID: bestID, Distance: best, Compared: compared}, nil
	}
	return Result{Distance: best, Compared: compared}, nil
}

// EuclideanDistance returns the L2 distance of a and b, or +Inf when the
// lengths differ or either is empty. NaN components also yield +Inf.
func EuclideanDistance(a, b Descriptor) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	if math.IsNaN(sum) {
		return math.Inf(1)
	}
	return math.Sqrt(sum)
}
