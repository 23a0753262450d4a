package service

import (
	"github.com/go-errors/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lmdsp/crashpad/common/snapshot"
)

// ScopedProcessSuspend suspends a crashed process for the lifetime of one
// capture. Release resumes it exactly once; the caller defers it so the
// process is resumed on every exit path.
type ScopedProcessSuspend struct {
	process  snapshot.Process
	released bool
}

func NewScopedProcessSuspend(p snapshot.Process) (*ScopedProcessSuspend, error) {
	if err := p.Suspend(); err != nil {
		return nil, errors.WrapPrefix(err, "suspend target process", 0)
	}
	return &ScopedProcessSuspend{process: p}, nil
}

func (s *ScopedProcessSuspend) Release() {
	if s == nil || s.released {
		return
	}
	s.released = true

	if err := s.process.Resume(); err != nil {
		// Nothing to unwind here; the capture already ran its course.
		log.WithError(err).WithField("pid", s.process.Pid()).
			Error("Can't resume target process")
	}
}
