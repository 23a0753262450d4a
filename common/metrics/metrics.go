// Package metrics records capture outcomes as statsd-style counters.
package metrics

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-errors/errors"
	log "github.com/sirupsen/logrus"
)

// CaptureResult is the stage-keyed outcome of one exception capture.
type CaptureResult int

const (
	CaptureSuccess CaptureResult = iota
	CaptureSuspendFailed
	CaptureSnapshotFailed
	CapturePrepareNewCrashReportFailed
	CaptureMinidumpWriteFailed
	CaptureFinishedWritingCrashReportFailed
)

func (r CaptureResult) String() string {
	switch r {
	case CaptureSuccess:
		return "success"
	case CaptureSuspendFailed:
		return "suspend_failed"
	case CaptureSnapshotFailed:
		return "snapshot_failed"
	case CapturePrepareNewCrashReportFailed:
		return "prepare_failed"
	case CaptureMinidumpWriteFailed:
		return "minidump_write_failed"
	case CaptureFinishedWritingCrashReportFailed:
		return "finish_failed"
	default:
		return "unknown"
	}
}

type Recorder interface {
	ExceptionEncountered()
	ExceptionCode(code uint32)
	ExceptionCaptureResult(result CaptureResult)
}

// Nop discards all recordings.
type Nop struct{}

func (Nop) ExceptionEncountered() {}

func (Nop) ExceptionCode(code uint32) {}

func (Nop) ExceptionCaptureResult(result CaptureResult) {}

// UdpRecorder buffers counter lines and flushes them to a UDP collector
// when the buffer fills or on a timer.
type UdpRecorder struct {
	service string

	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
	out   io.Writer

	stop chan struct{}
	once sync.Once
}

func NewUdpRecorder(service, address string, flushBufferSize int, flushTimeout time.Duration) (*UdpRecorder, error) {
	conn, err := net.Dial("udp", address)
	if err != nil {
		return nil, errors.WrapPrefix(err, "dial metrics collector", 0)
	}
	return newUdpRecorder(service, conn, flushBufferSize, flushTimeout), nil
}

func newUdpRecorder(service string, out io.Writer, flushBufferSize int, flushTimeout time.Duration) *UdpRecorder {
	if flushBufferSize <= 0 {
		flushBufferSize = 1024
	}
	if flushTimeout <= 0 {
		flushTimeout = time.Second
	}

	r := &UdpRecorder{
		service: service,
		limit:   flushBufferSize,
		out:     out,
		stop:    make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(flushTimeout)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Flush()
			case <-r.stop:
				return
			}
		}
	}()

	return r
}

func (r *UdpRecorder) ExceptionEncountered() {
	r.emit(fmt.Sprintf("%s.exception.encountered:1|c", r.service))
}

func (r *UdpRecorder) ExceptionCode(code uint32) {
	r.emit(fmt.Sprintf("%s.exception.code.0x%08x:1|c", r.service, code))
}

func (r *UdpRecorder) ExceptionCaptureResult(result CaptureResult) {
	r.emit(fmt.Sprintf("%s.capture.%s:1|c", r.service, result.String()))
}

func (r *UdpRecorder) emit(line string) {
	r.mu.Lock()
	r.buf.WriteString(line)
	r.buf.WriteByte('\n')
	full := r.buf.Len() >= r.limit
	r.mu.Unlock()

	if full {
		r.Flush()
	}
}

func (r *UdpRecorder) Flush() {
	r.mu.Lock()
	if r.buf.Len() == 0 {
		r.mu.Unlock()
		return
	}
	data := make([]byte, r.buf.Len())
	copy(data, r.buf.Bytes())
	r.buf.Reset()
	r.mu.Unlock()

	if _, err := r.out.Write(data); err != nil {
		log.WithError(err).Debug("Can't flush metrics")
	}
}

func (r *UdpRecorder) Close() {
	r.once.Do(func() {
		close(r.stop)
	})
	r.Flush()
}
