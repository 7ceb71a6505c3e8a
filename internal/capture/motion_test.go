package capture

import (
	"testing"

	"gocv.io/x/gocv"
)

func TestMotionDetector_NoMotion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(1.0) // 1% threshold
	defer md.Close()

	// Two identical black frames
	frame1 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame1.Close()
	frame2 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame2.Close()

	// First frame primes the baseline and never reports motion.
	detected, percent := md.Detect(&frame1)
	if detected {
		t.Error("first frame should not detect motion")
	}
	if percent != 0 {
		t.Errorf("first frame change percent = %f, want 0", percent)
	}

	detected, percent = md.Detect(&frame2)
	if detected {
		t.Errorf("identical frames should not detect motion, change percent = %f", percent)
	}
}

func TestMotionDetector_WithMotion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(1.0)
	defer md.Close()

	blackFrame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer blackFrame.Close()

	whiteFrame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer whiteFrame.Close()
	whiteFrame.SetTo(gocv.NewScalar(255, 255, 255, 0))

	md.Detect(&blackFrame)

	detected, percent := md.Detect(&whiteFrame)
	if !detected {
		t.Errorf("black to white should detect motion, change percent = %f", percent)
	}
	if percent < 50.0 {
		t.Errorf("change percent = %f, expected > 50%% for black to white transition", percent)
	}
}

func TestMotionDetector_Reset(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(1.0)
	defer md.Close()

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	md.Detect(&frame)
	if !md.primed {
		t.Error("detector should be primed after first Detect")
	}

	md.Reset()
	if md.primed {
		t.Error("detector should not be primed after Reset")
	}
	if !md.baseline.Empty() {
		t.Error("baseline should be empty after Reset")
	}

	// The next frame primes a new baseline rather than detecting motion.
	detected, _ := md.Detect(&frame)
	if detected {
		t.Error("first frame after reset should not detect motion")
	}
}

func TestMotionDetector_SetThreshold(t *testing.T) {
	md := NewMotionDetector(1.0)
	defer md.Close()

	md.SetThreshold(5.0)
	if md.threshold != 5.0 {
		t.Errorf("threshold = %f, want 5.0 after SetThreshold", md.threshold)
	}

	// Non-positive values are ignored.
	md.SetThreshold(-1.0)
	if md.threshold != 5.0 {
		t.Errorf("negative threshold should be ignored, got %f", md.threshold)
	}
	md.SetThreshold(0)
	if md.threshold != 5.0 {
		t.Errorf("zero threshold should be ignored, got %f", md.threshold)
	}
}

func TestMotionDetector_Close_Multiple(t *testing.T) {
	md := NewMotionDetector(1.0)

	// Closing twice must not panic.
	md.Close()
	md.Close()
}
