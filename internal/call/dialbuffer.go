package call

// DialBuffer operations. The buffer is local-only: digits accumulate on
// key presses and the whole string is submitted on dial, never piecemeal.

// AppendDigit adds one dialed digit to the buffer.
func (r *Reconciler) AppendDigit(digit string) {
	r.mu.Lock()
	r.display.DialBuffer += digit
	r.mu.Unlock()
	r.notify()
}

// ClearDialBuffer empties the buffer (successful dial or explicit clear).
func (r *Reconciler) ClearDialBuffer() {
	r.mu.Lock()
	r.display.DialBuffer = ""
	r.mu.Unlock()
	r.notify()
}

// DialBufferValue returns the current buffer contents.
func (r *Reconciler) DialBufferValue() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.display.DialBuffer
}
