package vcs

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestParseLines(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected []string
	}{
		{name: "empty", input: nil, expected: nil},
		{name: "single line", input: []byte("line1"), expected: []string{"line1"}},
		{name: "blank lines dropped", input: []byte("a\n\n  b  \n\n"), expected: []string{"a", "b"}},
		{name: "windows endings", input: []byte("a\r\nb\r\n"), expected: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseLines(tt.input)
			if len(result) != len(tt.expected) {
				t.Fatalf("Expected %v, got %v", tt.expected, result)
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("Line %d: expected %q, got %q", i, tt.expected[i], result[i])
				}
			}
		})
	}
}

func TestTrimOutput(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{name: "empty", input: []byte(""), expected: ""},
		{name: "no whitespace", input: []byte("content"), expected: "content"},
		{name: "both", input: []byte("  content  "), expected: "content"},
		{name: "newlines", input: []byte("\n\ncontent\n\n"), expected: "content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TrimOutput(tt.input)
			if result != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

func TestExecContext(t *testing.T) {
	ctx := context.Background()

	output, err := ExecContext(ctx, 5*time.Second, t.TempDir(), "echo", "test")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	result := strings.TrimSpace(string(output))
	if result != "test" {
		t.Errorf("Expected 'test', got '%s'", result)
	}
}

func TestExecEnv(t *testing.T) {
	output, err := ExecEnv(context.Background(), 5*time.Second, t.TempDir(),
		[]string{"GITFS_TEST_VALUE=hello"}, "sh", "-c", "echo $GITFS_TEST_VALUE")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := TrimOutput(output); got != "hello" {
		t.Errorf("Expected 'hello', got '%s'", got)
	}
}

func TestExecContextTimeout(t *testing.T) {
	_, err := ExecContext(context.Background(), 100*time.Millisecond, t.TempDir(), "sleep", "2")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}

func TestExecContextCommandError(t *testing.T) {
	_, err := ExecContext(context.Background(), 5*time.Second, t.TempDir(), "sh", "-c", "echo oops >&2; exit 3")

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Expected *CommandError, got %T: %v", err, err)
	}
	if cmdErr.Stderr != "oops" {
		t.Errorf("Stderr = %q, want %q", cmdErr.Stderr, "oops")
	}
	if code := GetExitCode(err); code != 3 {
		t.Errorf("GetExitCode() = %d, want 3", code)
	}
	if !strings.Contains(cmdErr.Output(), "oops") {
		t.Errorf("Output() = %q, want it to contain stderr", cmdErr.Output())
	}
}

func TestExecContextMissingBinary(t *testing.T) {
	_, err := ExecContext(context.Background(), time.Second, t.TempDir(), "gitfs-no-such-binary")
	if !errors.Is(err, ErrVCSNotAvailable) {
		t.Errorf("Expected ErrVCSNotAvailable, got %v", err)
	}
}

func TestGetExitCode(t *testing.T) {
	if code := GetExitCode(nil); code != 0 {
		t.Errorf("Expected exit code 0 for nil error, got %d", code)
	}

	err := exec.Command("sh", "-c", "exit 42").Run()
	if code := GetExitCode(err); code != 42 {
		t.Errorf("Expected exit code 42, got %d", code)
	}

	if code := GetExitCode(errors.New("plain")); code != -1 {
		t.Errorf("Expected -1 for non-exit error, got %d", code)
	}
}

func TestErrorClassification(t *testing.T) {
	wrapped := func(err error) error { return &CommandError{Args: []string{"git"}, Err: err} }

	tests := []struct {
		name       string
		err        error
		retryable  bool
		userAction bool
		fatal      bool
	}{
		{name: "nil", err: nil},
		{name: "timeout", err: ErrTimeout, retryable: true},
		{name: "push rejected", err: wrapped(ErrPushRejected), retryable: true},
		{name: "conflicts", err: wrapped(ErrConflicts), userAction: true},
		{name: "detached head", err: wrapped(ErrDetached), userAction: true},
		{name: "merge in progress", err: ErrMergeInProgress, userAction: true},
		{name: "not in vcs", err: ErrNotInVCS, fatal: true},
		{name: "binary missing", err: ErrVCSNotAvailable, fatal: true},
		{name: "other", err: errors.New("disk full")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
			if got := IsUserActionRequired(tt.err); got != tt.userAction {
				t.Errorf("IsUserActionRequired() = %v, want %v", got, tt.userAction)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
		})
	}
}
