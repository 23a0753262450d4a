// Package service implements the exception capture pipeline: suspend the
// crashed process, snapshot it, stage a crash report, and hand the finished
// report to the upload queue, while always producing a termination code.
package service

import (
	"path/filepath"

	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"

	"github.com/lmdsp/crashpad/common/database"
	"github.com/lmdsp/crashpad/common/metrics"
	"github.com/lmdsp/crashpad/common/minidump"
	"github.com/lmdsp/crashpad/common/snapshot"
	"github.com/lmdsp/crashpad/common/utils"
)

// TerminationCodeSnapshotFailed terminates the target when no snapshot
// could be acquired, so no real exception code is known. Value from
// Crashpad's reserved termination code range.
const TerminationCodeSnapshotFailed uint32 = 0xffff7002

// UploadNotifier receives the ids of finished reports. Fire and forget.
type UploadNotifier interface {
	ReportPending(id uuid.UUID)
}

// ExceptionNotification is one inbound crash notification. The two
// addresses live in the target's address space and are only interpreted by
// the snapshot provider.
type ExceptionNotification struct {
	Pid                         int    `json:"pid"`
	ExceptionInformationAddress uint64 `json:"exception_information"`
	DebugCriticalSectionAddress uint64 `json:"debug_critical_section"`
}

// CrashReportExceptionHandler drives one exception notification to
// completion and computes the code the target terminates with.
type CrashReportExceptionHandler struct {
	database    database.CrashReportDatabase
	upload      UploadNotifier
	provider    snapshot.Provider
	annotations map[string]string
	attachments []string
	userStreams []minidump.UserStreamSource
	recorder    metrics.Recorder
}

func NewCrashReportExceptionHandler(
	db database.CrashReportDatabase,
	upload UploadNotifier,
	provider snapshot.Provider,
	annotations map[string]string,
	attachments []string,
	userStreams []minidump.UserStreamSource,
	recorder metrics.Recorder) *CrashReportExceptionHandler {

	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &CrashReportExceptionHandler{
		database:    db,
		upload:      upload,
		provider:    provider,
		annotations: annotations,
		attachments: attachments,
		userStreams: userStreams,
		recorder:    recorder,
	}
}

// HandleException captures the state of a crashed process and returns the
// code to terminate it with. Every failure branch still returns a valid
// code: the target's own exception code once the snapshot succeeded, the
// reserved sentinel before that.
func (h *CrashReportExceptionHandler) HandleException(process snapshot.Process,
	exceptionInformationAddress, debugCriticalSectionAddress uint64) uint32 {

	h.recorder.ExceptionEncountered()

	suspend, err := NewScopedProcessSuspend(process)
	if err != nil {
		log.WithError(err).WithField("pid", process.Pid()).
			Error("Can't suspend crashed process")
		h.recorder.ExceptionCaptureResult(metrics.CaptureSuspendFailed)
		return TerminationCodeSnapshotFailed
	}
	defer suspend.Release()

	snap, err := h.provider.TakeSnapshot(process,
		exceptionInformationAddress,
		debugCriticalSectionAddress)
	if err != nil {
		log.WithError(err).WithField("pid", process.Pid()).
			Error("Can't snapshot crashed process")
		h.recorder.ExceptionCaptureResult(metrics.CaptureSnapshotFailed)
		return TerminationCodeSnapshotFailed
	}

	// With the exception information in hand, even if everything else
	// fails the target still terminates with the correct code.
	terminationCode := snap.Exception().Code
	h.recorder.ExceptionCode(terminationCode)

	if snap.Options().HandlerBehavior != snapshot.TriStateDisabled {
		clientId := uuid.Nil
		if settings := h.database.GetSettings(); settings != nil {
			// A failed read leaves the client id all zeroes, which is
			// the accepted degraded mode.
			if id, err := settings.GetClientID(); err == nil {
				clientId = id
			} else {
				log.WithError(err).Warning("Can't resolve client id")
			}
		}

		snap.SetClientID(clientId)
		snap.SetAnnotationsSimpleMap(h.annotations)

		newReport, status := h.database.PrepareNewCrashReport()
		if status != database.NoError {
			log.WithField("status", status.String()).
				Error("PrepareNewCrashReport failed")
			h.recorder.ExceptionCaptureResult(metrics.CapturePrepareNewCrashReportFailed)
			return terminationCode
		}

		snap.SetReportID(newReport.ReportID())

		var dump minidump.FileWriter
		dump.InitializeFromSnapshot(snap)
		minidump.AddUserExtensionStreams(h.userStreams, snap, &dump)

		if err := dump.WriteEverything(newReport.Writer()); err != nil {
			log.WithError(err).Error("WriteEverything failed")
			h.recorder.ExceptionCaptureResult(metrics.CaptureMinidumpWriteFailed)
			return terminationCode
		}

		h.copyAttachments(newReport)

		reportId, status := h.database.FinishedWritingCrashReport(newReport)
		if status != database.NoError {
			log.WithField("status", status.String()).
				Error("FinishedWritingCrashReport failed")
			h.recorder.ExceptionCaptureResult(metrics.CaptureFinishedWritingCrashReportFailed)
			return terminationCode
		}

		if h.upload != nil {
			h.upload.ReportPending(reportId)
		}
	}

	h.recorder.ExceptionCaptureResult(metrics.CaptureSuccess)
	return terminationCode
}

// copyAttachments copies each configured attachment into the staged
// report. A broken attachment is skipped, never fatal to the report.
func (h *CrashReportExceptionHandler) copyAttachments(newReport database.NewReport) {
	for _, attachment := range h.attachments {
		reader, err := utils.OpenForRead(attachment)
		if err != nil {
			log.WithError(err).WithField("attachment", attachment).
				Error("Attachment couldn't be opened, skipping")
			continue
		}

		name := filepath.Base(attachment)
		writer, err := newReport.AddAttachment(name)
		if err != nil {
			log.WithError(err).WithField("attachment", name).
				Error("Attachment couldn't be created, skipping")
			reader.Close()
			continue
		}

		if err := utils.CopyAllBytes(writer, reader); err != nil {
			log.WithError(err).WithField("attachment", name).
				Error("Can't copy attachment content")
		}
		writer.Close()
		reader.Close()
	}
}
