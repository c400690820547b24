package readiness

import (
	"strings"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "warmup/pkg/logx"
)

// Systemd reports hydration to the service manager over sd_notify. Outside a
// Type=notify unit (no NOTIFY_SOCKET) every call is a no-op.
type Systemd struct {
	log    logx.Logger
	notify func(state string) (bool, error)
}

func NewSystemd(log logx.Logger) *Systemd {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Systemd{
		log: log,
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
	}
}

func (s *Systemd) ReportHydrationStarted() {
	s.send("STATUS=hydrating")
}

func (s *Systemd) ReportHydrationCompleted() {
	s.send(daemon.SdNotifyReady + "\nSTATUS=ready")
}

func (s *Systemd) ReportHydrationFailed(reason string) {
	// STATUS is a single line.
	reason = strings.ReplaceAll(reason, "\n", " ")
	s.send("STATUS=hydration failed: " + reason)
}

func (s *Systemd) send(state string) {
	sent, err := s.notify(state)
	if err != nil {
		s.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if !sent {
		s.log.Trace("sd_notify skipped; not running under systemd")
	}
}
