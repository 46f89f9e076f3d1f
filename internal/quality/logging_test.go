package quality

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogWriters(t *testing.T) {
	defer SetLogWriters(LogWriters{})

	var ops, diag bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops, Diag: &diag})

	Opsf("scored %d units", 3)
	Diagf("unit %d score=%.2f", 7, 0.25)
	Tracef("muted")

	if got := ops.String(); !strings.Contains(got, "[quality] ") || !strings.Contains(got, "scored 3 units") {
		t.Errorf("ops output = %q", got)
	}
	if got := diag.String(); !strings.Contains(got, "unit 7 score=0.25") {
		t.Errorf("diag output = %q", got)
	}

	SetLogWriters(LogWriters{})
	ops.Reset()
	Opsf("should not appear")
	if ops.Len() > 0 {
		t.Errorf("ops output after disabling = %q, want empty", ops.String())
	}
}
