package service

import (
	"testing"

	"github.com/go-errors/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopedProcessSuspendResumesOnce(t *testing.T) {
	process := &fakeProcess{pid: 42}

	suspend, err := NewScopedProcessSuspend(process)
	require.NoError(t, err)
	require.Equal(t, 1, process.suspends)

	suspend.Release()
	suspend.Release()
	suspend.Release()

	assert.Equal(t, 1, process.resumes)
}

func TestScopedProcessSuspendConstructionFailure(t *testing.T) {
	process := &fakeProcess{pid: 42, suspendErr: errors.Errorf("no such process")}

	suspend, err := NewScopedProcessSuspend(process)
	require.Error(t, err)
	require.Nil(t, suspend)

	// Release on a nil guard is a no-op, so callers can defer blindly.
	suspend.Release()
	assert.Zero(t, process.resumes)
}
