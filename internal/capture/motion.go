package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Frame differencing parameters.
const (
	// blurKernel is the Gaussian blur kernel size used to suppress sensor noise.
	blurKernel = 21
	// diffThreshold is the per-pixel binary threshold applied to the frame difference.
	diffThreshold = 25
)

// MotionDetector reports whether anything moved between consecutive frames.
// The pipeline uses it to drop the capture rate while nobody is in front of
// the camera and to wake back up when a hand appears.
type MotionDetector struct {
	mu        sync.Mutex
	threshold float64 // percent of pixels that must change
	baseline  gocv.Mat
	primed    bool
}

// NewMotionDetector creates a MotionDetector. The threshold is the percentage
// of pixels that must change between frames to count as motion; 1.0 means 1%.
func NewMotionDetector(threshold float64) *MotionDetector {
	return &MotionDetector{
		threshold: threshold,
		baseline:  gocv.NewMat(),
	}
}

// Detect compares the frame against the previous one and returns whether
// motion was detected along with the percentage of pixels that changed.
// The first frame primes the baseline and never reports motion.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: blurKernel, Y: blurKernel}, 0, 0, gocv.BorderDefault)

	if !m.primed {
		blurred.CopyTo(&m.baseline)
		m.primed = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.baseline, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, diffThreshold, 255, gocv.ThresholdBinary)

	changed := gocv.CountNonZero(mask)
	total := mask.Rows() * mask.Cols()
	percent := float64(changed) / float64(total) * 100.0

	blurred.CopyTo(&m.baseline)

	return percent > m.threshold, percent
}

// SetThreshold replaces the motion threshold. Non-positive values are ignored.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = threshold
}

// Reset discards the baseline so the next frame primes a new one.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

// Close releases the baseline Mat.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

func (m *MotionDetector) reset() {
	if !m.baseline.Empty() {
		m.baseline.Close()
		m.baseline = gocv.NewMat()
	}
	m.primed = false
}
