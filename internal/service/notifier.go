package service

// Notifier carries a coalescing wake signal from the API surface to the
// runner, so a fresh enqueue is picked up without waiting out the poll
// interval. Signals never block the sender; while the runner is busy,
// any number of notifies collapse into one pending wake.
type Notifier struct {
	wake chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{wake: make(chan struct{}, 1)}
}

func (n *Notifier) Notify() {
	select {
	case n.wake <- struct{}{}:
	default:
		// A wake is already pending; dropping this one loses nothing.
	}
}

func (n *Notifier) Wake() <-chan struct{} {
	return n.wake
}
