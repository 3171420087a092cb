package call

import "time"

// Call timer. Runs if and only if the displayed state is Active, or Held
// under the continue policy. The start time survives repeated Active
// snapshots: re-entry never resets elapsed time.

// startTimerLocked starts the duration ticker. Idempotent: a running
// timer is left alone. Caller holds r.mu.
func (r *Reconciler) startTimerLocked() {
	if r.timerStop != nil {
		return
	}

	now := time.Now()
	if r.callStart.IsZero() {
		r.callStart = now
	} else if r.paused {
		// Shift the start forward by the paused span so held time does
		// not count.
		r.callStart = r.callStart.Add(now.Sub(r.pausedAt))
		r.paused = false
	}
	r.display.CallStart = r.callStart

	stop := make(chan struct{})
	r.timerStop = stop

	r.wg.Add(1)
	go r.runTimer(stop)
}

// pauseTimerLocked halts the ticker but keeps the accumulated duration.
// Caller holds r.mu.
func (r *Reconciler) pauseTimerLocked() {
	if r.timerStop == nil {
		return
	}
	close(r.timerStop)
	r.timerStop = nil
	r.paused = true
	r.pausedAt = time.Now()
}

// stopTimerLocked cancels the ticker and clears the start time. A leaked
// timer producing invisible duration updates is a correctness bug, so
// every path out of Active ends here or in pauseTimerLocked.
// Caller holds r.mu.
func (r *Reconciler) stopTimerLocked() {
	if r.timerStop != nil {
		close(r.timerStop)
		r.timerStop = nil
	}
	r.callStart = time.Time{}
	r.paused = false
	r.display.CallStart = time.Time{}
}

func (r *Reconciler) runTimer(stop chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.callStart.IsZero() {
				r.mu.Unlock()
				return
			}
			d := time.Since(r.callStart)
			r.display.CallDuration = d
			r.display.DurationSecs = int(d.Seconds())
			r.mu.Unlock()
			r.notify()
		}
	}
}

// TimerRunning reports whether the duration ticker is live.
func (r *Reconciler) TimerRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.timerStop != nil
}
