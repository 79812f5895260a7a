// Package debug writes WAYLAND_DEBUG style traces of protocol traffic.
package debug

import (
	"fmt"
	"time"

	"deedles.dev/wlc/internal/log"
	"github.com/sirupsen/logrus"
)

var (
	enabled = log.Tracing()
	logger  = log.For("wire")
	start   = time.Now()
)

// Enabled returns true if traces are being written. Callers should
// check it before formatting anything expensive.
func Enabled() bool {
	return enabled && logger.Logger.IsLevelEnabled(logrus.TraceLevel)
}

// Request traces a request received from client.
func Request(client int, msg string) {
	if !Enabled() {
		return
	}
	logger.WithField("client", client).Tracef("%v %v", stamp(), msg)
}

// Event traces an event sent to client.
func Event(client int, msg string) {
	if !Enabled() {
		return
	}
	logger.WithField("client", client).Tracef("%v -> %v", stamp(), msg)
}

func Printf(str string, args ...any) {
	if !Enabled() {
		return
	}
	logger.Tracef(str, args...)
}

func stamp() string {
	ms := float64(time.Since(start).Microseconds()) / 1000
	return fmt.Sprintf("[%10.3f]", ms)
}
