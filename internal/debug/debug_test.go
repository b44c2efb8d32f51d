package debug

import "testing"

func TestToggle(t *testing.T) {
	Set(false)
	defer Set(false)

	if Enabled() {
		t.Fatal("expected debug to start disabled")
	}
	if !Toggle() {
		t.Error("expected toggle to enable debug")
	}
	if !Enabled() {
		t.Error("expected Enabled to report true after toggle")
	}
	if Toggle() {
		t.Error("expected second toggle to disable debug")
	}
}

func TestPrintfDisabledIsNoop(t *testing.T) {
	Set(false)
	Printf("Test", "value %d", 1)
	if Enabled() {
		t.Error("Printf must not change state")
	}
}
