package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestUserErrorClassification(t *testing.T) {
	base := Userf("Media #%d is %s", 1, "AUDIO")
	wrapped := fmt.Errorf("validating inputs: %w", base)

	if !IsUser(base) {
		t.Error("expected base to be a user error")
	}
	if !IsUser(wrapped) {
		t.Error("expected wrapped error to be a user error")
	}
	if IsUser(errors.New("boom")) {
		t.Error("plain errors are not user errors")
	}

	msg, ok := UserMessage(wrapped)
	if !ok || msg != "Media #1 is AUDIO" {
		t.Errorf("UserMessage = %q, %v", msg, ok)
	}
}

func TestWrapUserKeepsCause(t *testing.T) {
	cause := errors.New("size probe failed")
	err := WrapUser(cause, "cannot read %s", "clip.mp4")

	if err.Error() != "cannot read clip.mp4" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through errors.Is")
	}
}

func TestEmptyResultError(t *testing.T) {
	err := fmt.Errorf("process: %w", &EmptyResultError{Transform: "resize", Expected: "file"})

	if !IsEmptyResult(err) {
		t.Fatal("expected empty result classification")
	}
	if IsUser(err) {
		t.Error("empty results are internal errors, not user errors")
	}
	if got := err.Error(); got != "process: expected file, resize returned nothing" {
		t.Errorf("unexpected message %q", got)
	}
}
