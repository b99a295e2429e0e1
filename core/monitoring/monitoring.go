package monitoring

import "time"

// Monitor reports errors and panics to an external error tracker. Tags
// carry dispatch context such as the offer and order identifiers.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Recover()
	Flush(timeout time.Duration)
}

// NopMonitor discards everything. It is the default until Init is called.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

var current Monitor = NopMonitor{}

// Init sets the global monitor implementation.
func Init(m Monitor) {
	if m != nil {
		current = m
	}
}

// CaptureException records the error with optional tags.
func CaptureException(err error, tags map[string]string) {
	if current != nil {
		current.CaptureException(err, tags)
	}
}

// Recover captures panics in dispatch and notifier goroutines.
func Recover() {
	if current != nil {
		current.Recover()
	}
}

// Flush drains buffered events, called on shutdown.
func Flush(d time.Duration) {
	if current != nil {
		current.Flush(d)
	}
}
