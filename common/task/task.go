// Package task defines the queue messages exchanged with the upload worker.
package task

import (
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	PROCESS_REPORT = 1 << iota
)

// PendingReport tells the upload worker that a finished crash report is
// waiting in the database.
type PendingReport struct {
	Type     uint   `json:"type"`
	ReportId string `json:"report_id"`
	Path     string `json:"path,omitempty"`
	Time     string `json:"time,omitempty"`
}

func FromJson(data []byte) interface{} {
	type head struct {
		Type uint `json:"type"`
	}

	var h head
	json.Unmarshal(data, &h)
	switch h.Type {
	case PROCESS_REPORT:
		var p PendingReport
		err := json.Unmarshal(data, &p)
		if err != nil {
			log.WithError(err).Error("Can't parse pending report task")
			return nil
		}

		if len(p.Time) == 0 {
			p.Time = getTimeStamp()
		}

		return &p
	default:
		return nil
	}
}

func CreatePendingReportTask(reportId, path string) *PendingReport {
	return &PendingReport{Type: PROCESS_REPORT,
		ReportId: reportId,
		Path:     path,
		Time:     getTimeStamp()}
}

func getTimeStamp() string {
	t := time.Now()
	return t.Format(time.RFC3339)
}
