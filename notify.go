package checkout

import "fmt"

// dispatcher delivers classification events to the caller's notify
// callback, filtered by the subscribed mask. Delivery is synchronous and
// in path order; a callback error cancels the owning phase.
type dispatcher struct {
	mask NotifyKind
	fn   NotifyFunc
}

func newDispatcher(o *Options) *dispatcher {
	return &dispatcher{mask: o.NotifyMask, fn: o.Notify}
}

func (d *dispatcher) send(kind NotifyKind, e *entry) error {
	if d.fn == nil || d.mask&kind == 0 {
		return nil
	}

	if err := d.fn(kind, e.path, e.baseline, e.target, e.workdir); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotifyCancel, e.path, err)
	}

	return nil
}
