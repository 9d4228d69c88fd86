package answer

import (
	"time"

	"github.com/poiesic/kbassist/core"
)

// Monitor provides hooks to observe an answer request.
// Implementations must be safe for concurrent use; RetrievalDone is called
// from worker goroutines.
type Monitor interface {
	Start(userID string)
	RetrievalDone(kind core.SourceKind, count int, degraded bool, elapsed time.Duration)
	Fused(count int)
	Budgeted(included, chars int)
	InferenceDone(elapsed time.Duration, err error)
	PersistFailed(err error)
	Finish(elapsed time.Duration, err error)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                                                  {}
func (n *noopMonitor) RetrievalDone(_ core.SourceKind, _ int, _ bool, _ time.Duration) {}
func (n *noopMonitor) Fused(_ int)                                                     {}
func (n *noopMonitor) Budgeted(_, _ int)                                               {}
func (n *noopMonitor) InferenceDone(_ time.Duration, _ error)                          {}
func (n *noopMonitor) PersistFailed(_ error)                                           {}
func (n *noopMonitor) Finish(_ time.Duration, _ error)                                 {}
