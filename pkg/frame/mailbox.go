package frame

import "sync"

// Mailbox is a single-slot, latest-wins hand-off between one producer and
// one consumer. Writers atomically replace whatever is in the slot; readers
// take-or-clone. It never blocks and never queues: a slow consumer drops
// frames, a fast producer never stalls waiting for the slot to drain.
type Mailbox struct {
	mu    sync.Mutex
	slot  *Frame
	count uint64
}

// Publish replaces the mailbox's contents with f, discarding whatever was
// there. Never blocks.
func (m *Mailbox) Publish(f Frame) {
	m.PublishDropping(f)
}

// PublishDropping is Publish, additionally reporting whether an unread
// frame already in the slot was overwritten (spec §5 "Starvation &
// backpressure"). The overwritten frame itself is not returned.
func (m *Mailbox) PublishDropping(f Frame) (droppedPending bool) {
	m.mu.Lock()
	droppedPending = m.slot != nil
	m.slot = &f
	m.count++
	m.mu.Unlock()
	return droppedPending
}

// TryTake returns the current contents, if any, and clears the slot.
// The second return value is false when the mailbox is empty.
func (m *Mailbox) TryTake() (Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slot == nil {
		return Frame{}, false
	}
	f := *m.slot
	m.slot = nil
	return f, true
}

// Count returns the number of Publish calls observed so far. Exposed for
// tests exercising the latest-wins invariant.
func (m *Mailbox) Count() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}
