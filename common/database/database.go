// Package database stores crash reports through a prepare/finish staging
// protocol: a staged report is populated privately and becomes visible to
// listers and the upload queue only when finished.
package database

import (
	"io"
	"time"

	uuid "github.com/satori/go.uuid"
)

type OperationStatus int

const (
	NoError OperationStatus = iota
	ReportNotFound
	FileSystemError
	DatabaseError
	BusyError
)

func (s OperationStatus) String() string {
	switch s {
	case NoError:
		return "no error"
	case ReportNotFound:
		return "report not found"
	case FileSystemError:
		return "file system error"
	case DatabaseError:
		return "database error"
	case BusyError:
		return "busy"
	default:
		return "unknown"
	}
}

// NewReport is a staged, not yet committed crash report. It is owned by a
// single capture until FinishedWritingCrashReport or abandonment.
type NewReport interface {
	ReportID() uuid.UUID
	Writer() io.Writer
	AddAttachment(name string) (io.WriteCloser, error)
}

// Report describes a committed crash report.
type Report struct {
	Id        uuid.UUID `json:"id"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type Settings interface {
	GetClientID() (uuid.UUID, error)
}

type CrashReportDatabase interface {
	PrepareNewCrashReport() (NewReport, OperationStatus)
	FinishedWritingCrashReport(report NewReport) (uuid.UUID, OperationStatus)
	GetCompletedReports() ([]Report, OperationStatus)
	DeleteReport(id uuid.UUID) OperationStatus
	GetSettings() Settings
}
