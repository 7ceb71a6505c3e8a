package detector

import "time"

// Label is the discrete gesture a hand pose classifies to.
type Label string

const (
	LabelNone       Label = "none"
	LabelOpenPalm   Label = "open_palm"
	LabelFist       Label = "fist"
	LabelThumbsUp   Label = "thumbs_up"
	LabelThumbsDown Label = "thumbs_down"
)

// GestureEvent is one classified gesture, produced at most once per
// processed frame. Events are ephemeral and never persisted.
type GestureEvent struct {
	Label      Label
	Confidence float64 // [0,1]
	Time       time.Time
}

// Classifier turns raw hand landmarks into a discrete gesture label.
//
// The classification is a finger-extension heuristic: a non-thumb finger
// counts as extended when its tip is above its PIP joint in image
// coordinates; the thumb counts as extended when its tip is farther from
// the wrist than its IP joint. Whatever temporal smoothing the underlying
// landmark model performs is opaque to this component.
type Classifier struct {
	threshold float64
}

// NewClassifier creates a Classifier with the given confidence threshold.
// Detections scoring below the threshold classify as LabelNone.
func NewClassifier(threshold float64) *Classifier {
	return &Classifier{threshold: threshold}
}

// Classify maps one detected hand to a GestureEvent. A hand below the
// confidence threshold, or a pose matching no known gesture, yields
// LabelNone.
func (c *Classifier) Classify(hand HandLandmarks) GestureEvent {
	ev := GestureEvent{
		Label:      LabelNone,
		Confidence: hand.Score,
		Time:       time.Now(),
	}

	if hand.Score < c.threshold {
		return ev
	}

	extended := fingersExtended(hand)
	thumb := thumbExtended(hand)

	switch {
	case extended == 4 && thumb:
		ev.Label = LabelOpenPalm

	case extended == 0 && !thumb:
		ev.Label = LabelFist

	case extended == 0 && thumb:
		// Thumb alone decides up vs down by its tip relative to the MCP
		// joint; image Y grows downward.
		if hand.Points[ThumbTip].Y < hand.Points[ThumbMCP].Y {
			ev.Label = LabelThumbsUp
		} else {
			ev.Label = LabelThumbsDown
		}
	}

	return ev
}

// fingersExtended counts how many of the four non-thumb fingers are
// extended (tip above the PIP joint).
func fingersExtended(hand HandLandmarks) int {
	tips := [4]int{IndexTip, MiddleTip, RingTip, PinkyTip}
	pips := [4]int{IndexPIP, MiddlePIP, RingPIP, PinkyPIP}

	var n int
	for i := range tips {
		if hand.Points[tips[i]].Y < hand.Points[pips[i]].Y {
			n++
		}
	}
	return n
}

// thumbExtended reports whether the thumb sticks out of the palm: its tip
// is farther from the wrist than its IP joint. This holds for any thumb
// direction, unlike the tip-right-of-joint test, which breaks as soon as
// the hand rotates.
func thumbExtended(hand HandLandmarks) bool {
	wrist := hand.Points[Wrist]
	return distance2D(hand.Points[ThumbTip], wrist) > distance2D(hand.Points[ThumbIP], wrist)
}
