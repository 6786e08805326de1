package services

// Observer receives engine events, typically to export metrics.
type Observer interface {
	DrawCompleted(won bool)
	DrawRejected(reason string)
	PersistFailed(op string)
}

type nopObserver struct{}

func (nopObserver) DrawCompleted(bool)   {}
func (nopObserver) DrawRejected(string)  {}
func (nopObserver) PersistFailed(string) {}
