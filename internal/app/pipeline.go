package app

import (
	"log"
	"time"
)

// runPipeline is the main detection loop that processes frames from the camera.
// It manages the state transitions between idle and active modes based on
// motion detection.
//
// Pipeline logic:
// 1. Start in idle mode (IdleFPS)
// 2. On motion detected, switch to active mode (configured FPS)
// 3. Run hand detection
// 4. Classify the most confident hand into a gesture event
// 5. Feed the event through the debouncer; an accepted event becomes a
//    command batch handed to the dispatch worker
// 6. After 2s without motion, switch back to idle mode
func (a *App) runPipeline(stopCh <-chan struct{}) {
	defer a.wg.Done()

	activeMode := false
	lastMotionTime := time.Now()

	frameInterval := time.Second / time.Duration(IdleFPS)

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			// Skip processing if detection is disabled
			if !a.IsEnabled() {
				continue
			}

			frame, err := a.camera.ReadFrame()
			if err != nil {
				log.Printf("Error reading frame: %v", err)
				continue
			}

			// Step 1: Motion detection
			motionDetected, _ := a.motion.Detect(frame)

			if motionDetected {
				lastMotionTime = time.Now()

				if !activeMode {
					activeMode = true
					a.camera.SetFPS(a.config.ActiveFPS)
					frameInterval = time.Second / time.Duration(a.config.ActiveFPS)
					ticker.Reset(frameInterval)
					log.Println("Switched to active mode")
				}
			} else if activeMode {
				if time.Since(lastMotionTime) > time.Duration(IdleTimeoutMs)*time.Millisecond {
					activeMode = false
					a.camera.SetFPS(IdleFPS)
					frameInterval = time.Second / time.Duration(IdleFPS)
					ticker.Reset(frameInterval)
					log.Println("Switched to idle mode")
				}
			}

			if !activeMode || a.detector == nil {
				frame.Close()
				continue
			}

			// Step 2: Hand detection. A failed frame is skipped, never
			// fatal: camera glitches are expected and common.
			hands, err := a.detector.Detect(frame)
			frame.Close()

			if err != nil {
				log.Printf("Error detecting hands: %v", err)
				continue
			}

			if len(hands) == 0 {
				continue
			}

			// Step 3: Classify the most confident hand.
			best := hands[0]
			for _, h := range hands[1:] {
				if h.Score > best.Score {
					best = h
				}
			}

			ev := a.config.Classifier.Classify(best)

			// Step 4: Debounce. At most one batch per cooldown window.
			batch, ok := a.config.Debouncer.Offer(ev)
			if !ok {
				continue
			}

			log.Printf("Gesture accepted: %s (confidence: %.2f) -> %s", ev.Label, ev.Confidence, batch.Action)

			a.mu.RLock()
			cb := a.onGesture
			a.mu.RUnlock()
			if cb != nil {
				cb(ev)
			}

			// Hand off to the dispatch worker; never block the frame loop.
			select {
			case a.batchCh <- batch:
			default:
				log.Printf("Dispatch queue full, dropping batch %s", batch.ID)
			}
		}
	}
}
