//go:build !linux

package snapshot

import (
	"github.com/go-errors/errors"
)

// OpenProcess opens a handle to a running process.
func OpenProcess(pid int) (Process, error) {
	return nil, errors.Errorf("no process backend on this platform")
}

type unsupportedProvider struct{}

// NewSystemProvider returns the platform snapshot backend.
func NewSystemProvider() Provider {
	return &unsupportedProvider{}
}

func (unsupportedProvider) TakeSnapshot(p Process, exceptionInformationAddress, debugCriticalSectionAddress uint64) (ProcessSnapshot, error) {
	return nil, errors.Errorf("no snapshot backend on this platform")
}
