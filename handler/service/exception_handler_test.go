package service

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-errors/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmdsp/crashpad/common/database"
	"github.com/lmdsp/crashpad/common/metrics"
	"github.com/lmdsp/crashpad/common/minidump"
	"github.com/lmdsp/crashpad/common/snapshot"
)

type fakeProcess struct {
	pid        int
	suspendErr error
	suspends   int
	resumes    int
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Suspend() error {
	p.suspends++
	return p.suspendErr
}

func (p *fakeProcess) Resume() error {
	p.resumes++
	return nil
}

func (p *fakeProcess) ReadMemory(address uint64, out []byte) error { return nil }

type fakeProvider struct {
	snap  *snapshot.Capture
	err   error
	calls int
}

func (f *fakeProvider) TakeSnapshot(p snapshot.Process, exceptionInformationAddress, debugCriticalSectionAddress uint64) (snapshot.ProcessSnapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, io.ErrClosedPipe
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

type fakeNewReport struct {
	id          uuid.UUID
	dump        bytes.Buffer
	writeFails  bool
	failAttach  map[string]bool
	attachments map[string]*bytes.Buffer
}

func newFakeNewReport() *fakeNewReport {
	return &fakeNewReport{
		id:          uuid.NewV4(),
		attachments: make(map[string]*bytes.Buffer),
	}
}

func (r *fakeNewReport) ReportID() uuid.UUID { return r.id }

func (r *fakeNewReport) Writer() io.Writer {
	if r.writeFails {
		return failingWriter{}
	}
	return &r.dump
}

func (r *fakeNewReport) AddAttachment(name string) (io.WriteCloser, error) {
	if r.failAttach[name] {
		return nil, errors.Errorf("no slot for %s", name)
	}
	buf := &bytes.Buffer{}
	r.attachments[name] = buf
	return nopWriteCloser{buf}, nil
}

type fakeSettings struct {
	id  uuid.UUID
	err error
}

func (s *fakeSettings) GetClientID() (uuid.UUID, error) { return s.id, s.err }

type fakeDatabase struct {
	prepareStatus database.OperationStatus
	finishStatus  database.OperationStatus
	listStatus    database.OperationStatus
	prepares      int
	finishes      int
	report        *fakeNewReport
	finished      []uuid.UUID
	reports       []database.Report
	settings      database.Settings
}

func (d *fakeDatabase) PrepareNewCrashReport() (database.NewReport, database.OperationStatus) {
	d.prepares++
	if d.prepareStatus != database.NoError {
		return nil, d.prepareStatus
	}
	if d.report == nil {
		d.report = newFakeNewReport()
	}
	return d.report, database.NoError
}

func (d *fakeDatabase) FinishedWritingCrashReport(report database.NewReport) (uuid.UUID, database.OperationStatus) {
	d.finishes++
	if d.finishStatus != database.NoError {
		return uuid.Nil, d.finishStatus
	}
	id := report.ReportID()
	d.finished = append(d.finished, id)
	return id, database.NoError
}

func (d *fakeDatabase) GetCompletedReports() ([]database.Report, database.OperationStatus) {
	return d.reports, d.listStatus
}

func (d *fakeDatabase) DeleteReport(id uuid.UUID) database.OperationStatus {
	return database.NoError
}

func (d *fakeDatabase) GetSettings() database.Settings { return d.settings }

type fakeNotifier struct {
	pending []uuid.UUID
}

func (n *fakeNotifier) ReportPending(id uuid.UUID) {
	n.pending = append(n.pending, id)
}

type fakeRecorder struct {
	encountered int
	codes       []uint32
	results     []metrics.CaptureResult
}

func (r *fakeRecorder) ExceptionEncountered() { r.encountered++ }

func (r *fakeRecorder) ExceptionCode(code uint32) {
	r.codes = append(r.codes, code)
}

func (r *fakeRecorder) ExceptionCaptureResult(result metrics.CaptureResult) {
	r.results = append(r.results, result)
}

type fakeUserStream struct {
	kind uint32
	data []byte
}

func (s *fakeUserStream) StreamType() uint32 { return s.kind }

func (s *fakeUserStream) ProduceStreamData(snap snapshot.ProcessSnapshot) []byte {
	return s.data
}

func newCapture(code uint32, behavior snapshot.TriState) *snapshot.Capture {
	return &snapshot.Capture{
		ProcessId: 1234,
		Exc: snapshot.ExceptionInfo{
			ThreadId: 1,
			Code:     code,
			Address:  0xdeadbeef,
		},
		Opts: snapshot.ClientOptions{HandlerBehavior: behavior},
		ThreadList: []snapshot.ThreadInfo{
			{Id: 1, SuspendCount: 1},
		},
	}
}

func writeAttachment(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestHandleExceptionSuccess(t *testing.T) {
	dir := t.TempDir()
	first := writeAttachment(t, dir, "client.log", "log content")
	second := writeAttachment(t, dir, "context.txt", "user context")

	clientId := uuid.NewV4()
	snap := newCapture(0xC0000005, snapshot.TriStateDefault)
	db := &fakeDatabase{settings: &fakeSettings{id: clientId}}
	notifier := &fakeNotifier{}
	recorder := &fakeRecorder{}
	process := &fakeProcess{pid: 1234}

	annotations := map[string]string{"channel": "stable"}
	handler := NewCrashReportExceptionHandler(db, notifier, &fakeProvider{snap: snap},
		annotations, []string{first, second}, nil, recorder)

	code := handler.HandleException(process, 0x7000, 0x7100)

	require.Equal(t, uint32(0xC0000005), code)
	require.Equal(t, 1, db.prepares)
	require.Len(t, db.finished, 1)
	require.Equal(t, db.finished, notifier.pending)

	assert.Equal(t, clientId, snap.ClientID())
	assert.Equal(t, db.report.id, snap.ReportID())
	assert.Equal(t, annotations, snap.AnnotationsSimpleMap())

	assert.Equal(t, "log content", db.report.attachments["client.log"].String())
	assert.Equal(t, "user context", db.report.attachments["context.txt"].String())
	assert.NotZero(t, db.report.dump.Len())

	assert.Equal(t, 1, recorder.encountered)
	assert.Equal(t, []uint32{0xC0000005}, recorder.codes)
	assert.Equal(t, []metrics.CaptureResult{metrics.CaptureSuccess}, recorder.results)
	assert.Equal(t, 1, process.resumes)
}

func TestHandleExceptionSnapshotFailed(t *testing.T) {
	db := &fakeDatabase{}
	recorder := &fakeRecorder{}
	process := &fakeProcess{pid: 1234}
	notifier := &fakeNotifier{}

	handler := NewCrashReportExceptionHandler(db, notifier,
		&fakeProvider{err: errors.Errorf("no such process")},
		nil, nil, nil, recorder)

	code := handler.HandleException(process, 0x7000, 0x7100)

	require.Equal(t, TerminationCodeSnapshotFailed, code)
	assert.Zero(t, db.prepares)
	assert.Zero(t, db.finishes)
	assert.Empty(t, notifier.pending)
	assert.Empty(t, recorder.codes)
	assert.Equal(t, []metrics.CaptureResult{metrics.CaptureSnapshotFailed}, recorder.results)
	assert.Equal(t, 1, process.resumes)
}

func TestHandleExceptionSuspendFailed(t *testing.T) {
	db := &fakeDatabase{}
	recorder := &fakeRecorder{}
	provider := &fakeProvider{snap: newCapture(1, snapshot.TriStateDefault)}
	process := &fakeProcess{pid: 1234, suspendErr: errors.Errorf("gone")}

	handler := NewCrashReportExceptionHandler(db, nil, provider, nil, nil, nil, recorder)
	code := handler.HandleException(process, 0x7000, 0x7100)

	require.Equal(t, TerminationCodeSnapshotFailed, code)
	assert.Zero(t, provider.calls)
	assert.Zero(t, db.prepares)
	assert.Equal(t, []metrics.CaptureResult{metrics.CaptureSuspendFailed}, recorder.results)
	// Suspension never took hold, so there is nothing to resume.
	assert.Zero(t, process.resumes)
}

func TestHandleExceptionReportingDisabled(t *testing.T) {
	snap := newCapture(0xC0000374, snapshot.TriStateDisabled)
	db := &fakeDatabase{settings: &fakeSettings{id: uuid.NewV4()}}
	notifier := &fakeNotifier{}
	recorder := &fakeRecorder{}
	process := &fakeProcess{pid: 1234}

	handler := NewCrashReportExceptionHandler(db, notifier, &fakeProvider{snap: snap},
		nil, nil, nil, recorder)

	code := handler.HandleException(process, 0x7000, 0x7100)

	require.Equal(t, uint32(0xC0000374), code)
	assert.Zero(t, db.prepares)
	assert.Zero(t, db.finishes)
	assert.Empty(t, notifier.pending)
	// Intentionally suppressed reporting still counts as success.
	assert.Equal(t, []metrics.CaptureResult{metrics.CaptureSuccess}, recorder.results)
	assert.Equal(t, 1, process.resumes)
}

func TestHandleExceptionPrepareFailed(t *testing.T) {
	snap := newCapture(0xC0000005, snapshot.TriStateDefault)
	db := &fakeDatabase{prepareStatus: database.FileSystemError}
	notifier := &fakeNotifier{}
	recorder := &fakeRecorder{}
	process := &fakeProcess{pid: 1234}

	handler := NewCrashReportExceptionHandler(db, notifier, &fakeProvider{snap: snap},
		nil, nil, nil, recorder)

	code := handler.HandleException(process, 0x7000, 0x7100)

	require.Equal(t, uint32(0xC0000005), code)
	assert.Zero(t, db.finishes)
	assert.Empty(t, notifier.pending)
	assert.Equal(t, []metrics.CaptureResult{metrics.CapturePrepareNewCrashReportFailed}, recorder.results)
	assert.Equal(t, 1, process.resumes)
}

func TestHandleExceptionMinidumpWriteFailed(t *testing.T) {
	snap := newCapture(0xC0000005, snapshot.TriStateDefault)
	report := newFakeNewReport()
	report.writeFails = true
	db := &fakeDatabase{report: report}
	notifier := &fakeNotifier{}
	recorder := &fakeRecorder{}
	process := &fakeProcess{pid: 1234}

	handler := NewCrashReportExceptionHandler(db, notifier, &fakeProvider{snap: snap},
		nil, nil, nil, recorder)

	code := handler.HandleException(process, 0x7000, 0x7100)

	require.Equal(t, uint32(0xC0000005), code)
	assert.Zero(t, db.finishes)
	assert.Empty(t, notifier.pending)
	assert.Equal(t, []metrics.CaptureResult{metrics.CaptureMinidumpWriteFailed}, recorder.results)
	assert.Equal(t, 1, process.resumes)
}

func TestHandleExceptionFinishFailed(t *testing.T) {
	snap := newCapture(0xC0000005, snapshot.TriStateDefault)
	db := &fakeDatabase{finishStatus: database.DatabaseError}
	notifier := &fakeNotifier{}
	recorder := &fakeRecorder{}
	process := &fakeProcess{pid: 1234}

	handler := NewCrashReportExceptionHandler(db, notifier, &fakeProvider{snap: snap},
		nil, nil, nil, recorder)

	code := handler.HandleException(process, 0x7000, 0x7100)

	require.Equal(t, uint32(0xC0000005), code)
	assert.Equal(t, 1, db.finishes)
	assert.Empty(t, notifier.pending)
	assert.Equal(t, []metrics.CaptureResult{metrics.CaptureFinishedWritingCrashReportFailed}, recorder.results)
	assert.Equal(t, 1, process.resumes)
}

func TestHandleExceptionMissingAttachmentIsSkipped(t *testing.T) {
	dir := t.TempDir()
	present := writeAttachment(t, dir, "client.log", "still here")
	missing := filepath.Join(dir, "nope.log")

	snap := newCapture(0xC0000005, snapshot.TriStateDefault)
	db := &fakeDatabase{}
	notifier := &fakeNotifier{}
	recorder := &fakeRecorder{}
	process := &fakeProcess{pid: 1234}

	handler := NewCrashReportExceptionHandler(db, notifier, &fakeProvider{snap: snap},
		nil, []string{present, missing}, nil, recorder)

	code := handler.HandleException(process, 0x7000, 0x7100)

	require.Equal(t, uint32(0xC0000005), code)
	require.Len(t, db.finished, 1)
	assert.Len(t, db.report.attachments, 1)
	assert.Equal(t, "still here", db.report.attachments["client.log"].String())
	assert.Equal(t, []metrics.CaptureResult{metrics.CaptureSuccess}, recorder.results)
}

func TestHandleExceptionAttachmentSlotFailureIsSkipped(t *testing.T) {
	dir := t.TempDir()
	first := writeAttachment(t, dir, "a.log", "a")
	second := writeAttachment(t, dir, "b.log", "b")

	snap := newCapture(0xC0000005, snapshot.TriStateDefault)
	report := newFakeNewReport()
	report.failAttach = map[string]bool{"a.log": true}
	db := &fakeDatabase{report: report}
	process := &fakeProcess{pid: 1234}

	handler := NewCrashReportExceptionHandler(db, nil, &fakeProvider{snap: snap},
		nil, []string{first, second}, nil, &fakeRecorder{})

	code := handler.HandleException(process, 0x7000, 0x7100)

	require.Equal(t, uint32(0xC0000005), code)
	require.Len(t, db.finished, 1)
	assert.Len(t, report.attachments, 1)
	assert.Equal(t, "b", report.attachments["b.log"].String())
}

func TestHandleExceptionSettingsUnavailable(t *testing.T) {
	snap := newCapture(0xC0000005, snapshot.TriStateDefault)
	db := &fakeDatabase{settings: &fakeSettings{err: errors.Errorf("unreadable")}}
	process := &fakeProcess{pid: 1234}
	recorder := &fakeRecorder{}

	handler := NewCrashReportExceptionHandler(db, nil, &fakeProvider{snap: snap},
		nil, nil, nil, recorder)

	code := handler.HandleException(process, 0x7000, 0x7100)

	require.Equal(t, uint32(0xC0000005), code)
	// Degraded mode, not a failure: zero client id, report still commits.
	assert.Equal(t, uuid.Nil, snap.ClientID())
	require.Len(t, db.finished, 1)
	assert.Equal(t, []metrics.CaptureResult{metrics.CaptureSuccess}, recorder.results)
}

func TestHandleExceptionUserStreamsMakeItIntoTheDump(t *testing.T) {
	snap := newCapture(0xC0000005, snapshot.TriStateDefault)
	db := &fakeDatabase{}
	process := &fakeProcess{pid: 1234}
	stream := &fakeUserStream{kind: 0x43501000, data: []byte("user extension payload")}

	handler := NewCrashReportExceptionHandler(db, nil, &fakeProvider{snap: snap},
		nil, nil, []minidump.UserStreamSource{stream}, &fakeRecorder{})

	code := handler.HandleException(process, 0x7000, 0x7100)

	require.Equal(t, uint32(0xC0000005), code)
	require.Len(t, db.finished, 1)
	assert.True(t, bytes.Contains(db.report.dump.Bytes(), stream.data))
}
