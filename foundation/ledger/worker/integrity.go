package worker

// integrityOperations re-validates the stored chain on a timer. The state
// package emits an event only when the status transitions.
func (w *Worker) integrityOperations() {
	w.evHandler("worker: integrityOperations: G started")
	defer w.evHandler("worker: integrityOperations: G completed")

	for {
		select {
		case <-w.integrityTicker.C:
			if !w.isShutdown() {
				if badBlock, err := w.state.CheckIntegrity(); err != nil {
					w.evHandler("worker: integrityOperations: WARNING: blk[%d]: %s", badBlock, err)
				}
			}
		case <-w.shut:
			w.evHandler("worker: integrityOperations: received shut signal")
			return
		}
	}
}
