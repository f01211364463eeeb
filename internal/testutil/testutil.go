package testutil

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
)

// TempDir creates a temporary directory for tests
func TempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "sf-connector-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}

// AssertNoError checks that an error is nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

// AssertError checks that an error is not nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Error("Expected an error, got nil")
	}
}

// AssertEqual checks if two values are equal
func AssertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if expected != actual {
		t.Errorf("Expected %v, got %v", expected, actual)
	}
}

// AssertContains checks if a string contains a substring
func AssertContains(t *testing.T, str, substr string) {
	t.Helper()
	if !strings.Contains(str, substr) {
		t.Errorf("Expected %q to contain %q", str, substr)
	}
}

// AssertFileExists checks if a file exists
func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("Expected file to exist: %s", path)
	}
}

// AssertFileNotExists checks if a file does not exist
func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("Expected file to not exist: %s", path)
	}
}

// MockSink records containers and artifacts handed to the host, and
// can be scripted to fail a specific save call.
type MockSink struct {
	mu         sync.Mutex
	Containers []any
	Artifacts  []any

	// FailContainerCall is the 1-based SaveContainer call to fail;
	// zero never fails.
	FailContainerCall int

	calls  int
	nextID int
}

func NewMockSink() *MockSink {
	return &MockSink{}
}

func (m *MockSink) SaveContainer(ctx context.Context, container any) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.FailContainerCall != 0 && m.calls == m.FailContainerCall {
		return 0, os.ErrInvalid
	}

	m.Containers = append(m.Containers, container)
	m.nextID++
	return m.nextID, nil
}

func (m *MockSink) SaveArtifact(ctx context.Context, artifact any) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Artifacts = append(m.Artifacts, artifact)
	m.nextID++
	return m.nextID, nil
}
