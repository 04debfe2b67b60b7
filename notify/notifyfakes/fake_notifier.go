package notifyfakes

import (
	"sync"

	"github.com/aranyahq/aranya-go/notify"
)

var _ notify.Notifier = (*FakeNotifier)(nil)

// FakeNotifier records every notification it receives, for assertions in
// tests.
type FakeNotifier struct {
	mu            sync.Mutex
	notifications []notify.Notification
}

func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{}
}

func (f *FakeNotifier) Notify(n notify.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.notifications = append(f.notifications, n)
}

// Notifications returns a copy of everything recorded so far.
func (f *FakeNotifier) Notifications() []notify.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]notify.Notification, len(f.notifications))
	copy(out, f.notifications)
	return out
}

// Titles returns the recorded notification titles in order.
func (f *FakeNotifier) Titles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	titles := make([]string, 0, len(f.notifications))
	for _, n := range f.notifications {
		titles = append(titles, n.Title)
	}
	return titles
}

// Reset discards everything recorded so far.
func (f *FakeNotifier) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.notifications = nil
}
