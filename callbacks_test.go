package cosmopolite

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestInvoke_NilCallbackIsNoop(t *testing.T) {
	c := &Client{logger: slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))}
	c.invoke("Test", nil) // must not panic
}

func TestInvoke_RunsCallback(t *testing.T) {
	c := &Client{logger: slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))}
	ran := false
	c.invoke("Test", func() { ran = true })
	if !ran {
		t.Error("callback was not invoked")
	}
}

func TestInvoke_RecoversPanic(t *testing.T) {
	var buf bytes.Buffer
	c := &Client{logger: slog.New(slog.NewTextHandler(&buf, nil))}

	c.invoke("Message", func() { panic("boom") })

	if !strings.Contains(buf.String(), "callback panicked") {
		t.Errorf("log output = %s, want a panic-recovery log line", buf.String())
	}
}
