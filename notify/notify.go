// Package notify carries user-facing notifications out of the session and
// request pipeline. Every terminal request outcome and every identity change
// emits one Notification; sinks decide how to present them.
package notify

import "github.com/rs/zerolog"

// Variant distinguishes routine notifications from failures.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notification is a transient, user-facing message.
type Notification struct {
	Title       string
	Description string
	Variant     Variant
}

// Notifier receives notifications. Implementations must not block: the
// pipeline treats Notify as fire-and-forget and its outcome never alters the
// error returned to the caller.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a plain function to the Notifier interface.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Nop returns a Notifier that discards everything.
func Nop() Notifier {
	return Func(func(Notification) {})
}

var _ Notifier = (*LogNotifier)(nil)

// LogNotifier writes notifications to a zerolog logger. Destructive
// notifications log at warn, everything else at info.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-backed notification sink.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Notify(n Notification) {
	event := l.log.Info()
	if n.Variant == VariantDestructive {
		event = l.log.Warn()
	}
	event.Str("title", n.Title).Msg(n.Description)
}

var _ Notifier = (*ChannelNotifier)(nil)

// ChannelNotifier buffers notifications on a channel for interactive
// consumers. When the buffer is full the oldest notification is dropped so
// the pipeline never blocks on a slow reader.
type ChannelNotifier struct {
	ch chan Notification
}

// NewChannelNotifier creates a channel-backed sink with the given buffer.
func NewChannelNotifier(buffer int) *ChannelNotifier {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelNotifier{ch: make(chan Notification, buffer)}
}

func (c *ChannelNotifier) Notify(n Notification) {
	for {
		select {
		case c.ch <- n:
			return
		default:
			select {
			case <-c.ch:
			default:
			}
		}
	}
}

// C returns the receive side of the notification channel.
func (c *ChannelNotifier) C() <-chan Notification {
	return c.ch
}
