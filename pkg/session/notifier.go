package session

import (
	"fmt"
	"io"
	"os"

	"github.com/tinyland-inc/huddle/pkg/types"
)

// Notifier produces the user-facing side effects of a pushed
// notification. Both calls are fire-and-forget: failures are logged by
// the session and never block recording the notification.
type Notifier interface {
	// Chime plays a short audio cue.
	Chime() error
	// Popup raises a platform notification.
	Popup(n types.Notification) error
}

// TerminalNotifier renders notifications on a terminal: the chime is
// the bell character and the popup is a printed line.
type TerminalNotifier struct {
	Out io.Writer
}

// NewTerminalNotifier writes to stdout.
func NewTerminalNotifier() *TerminalNotifier {
	return &TerminalNotifier{Out: os.Stdout}
}

func (t *TerminalNotifier) Chime() error {
	// two short tones
	_, err := fmt.Fprint(t.Out, "\a\a")
	return err
}

func (t *TerminalNotifier) Popup(n types.Notification) error {
	_, err := fmt.Fprintf(t.Out, "\U0001F514 %s: %s\n", n.Title, n.Body)
	return err
}

// NopNotifier discards all side effects.
type NopNotifier struct{}

func (NopNotifier) Chime() error { return nil }

func (NopNotifier) Popup(types.Notification) error { return nil }
