package escrow

// Announced returns the number of orders remembered as funded.
func (w *Watcher) Announced() int {
	return len(w.announced)
}
