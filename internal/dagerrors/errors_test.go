package dagerrors

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapReturnsNilForNilCause(t *testing.T) {
	if err := Wrap(nil, BackendError, "op", "msg"); err != nil {
		t.Errorf("Wrap(nil, ...) = %v, want nil", err)
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := NewNoParents("op", "msg")
	if !Is(err, NoParents) {
		t.Error("Is(err, NoParents) = false, want true")
	}
	if Is(err, MultipleParents) {
		t.Error("Is(err, MultipleParents) = true, want false")
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := WrapBackend(cause, "op", "msg")
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestDetailedStringIncludesContext(t *testing.T) {
	err := New(IndexIO, "open", "failed").WithContext("path", "/tmp/db")
	s := err.DetailedString()
	if !strings.Contains(s, "path") || !strings.Contains(s, "/tmp/db") {
		t.Errorf("DetailedString() = %q, want it to include context", s)
	}
}
