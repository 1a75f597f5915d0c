package worker

// syncOperations asks the peers for their chains on a timer so a node that
// fell behind catches up without operator help.
func (w *Worker) syncOperations() {
	w.evHandler("worker: syncOperations: G started")
	defer w.evHandler("worker: syncOperations: G completed")

	for {
		select {
		case <-w.syncTicker.C:
			if !w.isShutdown() {
				w.state.RequestPeerChains()
			}
		case <-w.shut:
			w.evHandler("worker: syncOperations: received shut signal")
			return
		}
	}
}
