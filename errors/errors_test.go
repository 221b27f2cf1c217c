package errors

import (
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorConfig, "config"},
		{ErrorProtocol, "protocol"},
		{ErrorProcessing, "processing"},
		{ErrorIO, "io"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"invalid config", ErrInvalidConfig, ErrorConfig},
		{"missing config", ErrMissingConfig, ErrorConfig},
		{"unknown stage", ErrUnknownStage, ErrorConfig},
		{"duplicate stage", ErrDuplicateStage, ErrorConfig},
		{"unknown tag", ErrUnknownTag, ErrorProtocol},
		{"truncated frame", ErrTruncatedFrame, ErrorProtocol},
		{"length mismatch", ErrLengthMismatch, ErrorProtocol},
		{"plain error", fmt.Errorf("something broke"), ErrorProcessing},
		{"io eof defaults to processing", io.EOF, ErrorProcessing},
		{"wrapped sentinel", fmt.Errorf("outer: %w", ErrUnknownTag), ErrorProtocol},
		{"classified io", WrapIO(io.ErrClosedPipe, "Session", "ingest", "read frame"), ErrorIO},
		{"classified protocol", WrapProtocol(fmt.Errorf("bad tag"), "Registry", "ReadFrame", "lookup"), ErrorProtocol},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Classify(test.err); got != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, got, test.err)
			}
		})
	}
}

func TestClassPredicates(t *testing.T) {
	cfgErr := WrapConfig(ErrInvalidConfig, "Config", "Validate", "chain")
	if !IsConfig(cfgErr) {
		t.Errorf("expected config classification for %v", cfgErr)
	}
	if IsProtocol(cfgErr) || IsIO(cfgErr) || IsProcessing(cfgErr) {
		t.Errorf("config error matched another class")
	}
	if IsConfig(nil) || IsProtocol(nil) || IsProcessing(nil) || IsIO(nil) {
		t.Error("nil error must not match any class")
	}
}

func TestWrap_Format(t *testing.T) {
	err := Wrap(io.EOF, "Registry", "ReadFrame", "read tag")
	want := "Registry.ReadFrame: read tag failed: EOF"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
	if !Is(err, io.EOF) {
		t.Error("wrapped error must unwrap to the cause")
	}
	if Wrap(nil, "a", "b", "c") != nil {
		t.Error("wrapping nil must return nil")
	}
}

func TestWrapClassified_PreservesChain(t *testing.T) {
	cause := fmt.Errorf("inner: %w", ErrTruncatedFrame)
	err := WrapProtocol(cause, "Registry", "ReadFrame", "read header")

	if !Is(err, ErrTruncatedFrame) {
		t.Error("classified error must preserve the sentinel in its chain")
	}
	var ce *ClassifiedError
	if !As(err, &ce) {
		t.Fatal("expected a ClassifiedError in the chain")
	}
	if ce.Component != "Registry" || ce.Operation != "ReadFrame" {
		t.Errorf("unexpected context: %+v", ce)
	}
	if !strings.Contains(err.Error(), "read header failed") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestWrapClassified_NilCause(t *testing.T) {
	for name, fn := range map[string]func(error, string, string, string) error{
		"config":     WrapConfig,
		"protocol":   WrapProtocol,
		"processing": WrapProcessing,
		"io":         WrapIO,
	} {
		if fn(nil, "a", "b", "c") != nil {
			t.Errorf("%s wrapper must return nil for nil cause", name)
		}
	}
}
