package log

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestHook(t *testing.T) {
	h := Hook{c: make(chan string, 1)}

	logger := logrus.New()
	logger.AddHook(&h)
	logger.WithField("component", "test").Info("first")
	logger.Info("dropped")

	msg := <-h.Messages()
	if !strings.Contains(msg, "test: first") {
		t.Fatalf("message = %q", msg)
	}

	select {
	case msg := <-h.Messages():
		t.Fatalf("unexpected message %q", msg)
	default:
	}
}
