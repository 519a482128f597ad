package ui

import (
	"bytes"
	"testing"
)

func TestStylesDisabled(t *testing.T) {
	SetEnabled(false)
	t.Cleanup(func() { SetEnabled(false) })

	if Enabled() {
		t.Fatal("expected styling off")
	}
	if got := Success("ok") + Error("bad") + Info("x") + Bold("b"); got != "okbadxb" {
		t.Errorf("plain output = %q", got)
	}
}

func TestStylesEnabled(t *testing.T) {
	SetEnabled(true)
	t.Cleanup(func() { SetEnabled(false) })

	if got := Error("bad"); got != "\033[31mbad\033[0m" {
		t.Errorf("Error = %q", got)
	}
	if got := Info("x"); got != "\033[2m\033[33mx\033[0m" {
		t.Errorf("Info = %q", got)
	}
}

func TestField(t *testing.T) {
	SetEnabled(false)

	var buf bytes.Buffer
	Field(&buf, "Records", 12)
	Field(&buf, "Saved", "data/x.json", "(1.00 KB)")

	want := "  Records: 12\n  Saved: data/x.json (1.00 KB)\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
