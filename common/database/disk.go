package database

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-errors/errors"
	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"

	"github.com/lmdsp/crashpad/common/utils"
)

const (
	newDir      = "new"
	reportsDir  = "reports"
	minidumpFn  = "minidump.dmp"
	metadataFn  = "metadata.json"
	attachments = "attachments"
)

// Disk is a filesystem crash report database. A staged report lives in its
// own directory under new/; finishing renames the whole directory under
// reports/, so observers never see a partial report.
type Disk struct {
	root     string
	settings *fileSettings
}

func NewDisk(root string) (*Disk, error) {
	for _, dir := range []string{newDir, reportsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			return nil, errors.WrapPrefix(err, "create database directory", 0)
		}
	}
	return &Disk{
		root:     root,
		settings: newFileSettings(filepath.Join(root, settingsFn)),
	}, nil
}

type reportMetadata struct {
	Id        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size,omitempty"`
}

type diskNewReport struct {
	id       uuid.UUID
	dir      string
	minidump *os.File
}

func (r *diskNewReport) ReportID() uuid.UUID {
	return r.id
}

func (r *diskNewReport) Writer() io.Writer {
	return r.minidump
}

func (r *diskNewReport) AddAttachment(name string) (io.WriteCloser, error) {
	name = filepath.Base(utils.Trim(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, errors.Errorf("invalid attachment name %q", name)
	}

	dir := filepath.Join(r.dir, attachments)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.WrapPrefix(err, "create attachments directory", 0)
	}

	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, errors.WrapPrefix(err, "create attachment", 0)
	}
	return f, nil
}

func (d *Disk) PrepareNewCrashReport() (NewReport, OperationStatus) {
	id := uuid.NewV4()
	dir := filepath.Join(d.root, newDir, id.String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.WithError(err).Error("Can't create staging directory")
		return nil, FileSystemError
	}

	meta := reportMetadata{Id: id.String(), CreatedAt: time.Now().UTC()}
	if err := writeMetadata(filepath.Join(dir, metadataFn), &meta); err != nil {
		log.WithError(err).Error("Can't write report metadata")
		os.RemoveAll(dir)
		return nil, FileSystemError
	}

	f, err := os.Create(filepath.Join(dir, minidumpFn))
	if err != nil {
		log.WithError(err).Error("Can't create minidump file")
		os.RemoveAll(dir)
		return nil, FileSystemError
	}

	return &diskNewReport{id: id, dir: dir, minidump: f}, NoError
}

func (d *Disk) FinishedWritingCrashReport(report NewReport) (uuid.UUID, OperationStatus) {
	r, ok := report.(*diskNewReport)
	if !ok {
		log.Error("Foreign report handle")
		return uuid.Nil, DatabaseError
	}

	if err := r.minidump.Sync(); err != nil {
		log.WithError(err).Error("Can't sync minidump file")
		r.minidump.Close()
		return uuid.Nil, FileSystemError
	}

	size, _ := r.minidump.Seek(0, io.SeekCurrent)
	if err := r.minidump.Close(); err != nil {
		log.WithError(err).Error("Can't close minidump file")
		return uuid.Nil, FileSystemError
	}

	meta := reportMetadata{Id: r.id.String(), CreatedAt: time.Now().UTC(), Size: size}
	if err := writeMetadata(filepath.Join(r.dir, metadataFn), &meta); err != nil {
		log.WithError(err).Error("Can't finalize report metadata")
		return uuid.Nil, FileSystemError
	}

	dest := filepath.Join(d.root, reportsDir, r.id.String())
	if err := os.Rename(r.dir, dest); err != nil {
		log.WithError(err).WithField("report", r.id.String()).
			Error("Can't commit report")
		return uuid.Nil, FileSystemError
	}

	return r.id, NoError
}

func (d *Disk) GetCompletedReports() ([]Report, OperationStatus) {
	entries, err := os.ReadDir(filepath.Join(d.root, reportsDir))
	if err != nil {
		log.WithError(err).Error("Can't read reports directory")
		return nil, FileSystemError
	}

	var reports []Report
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(d.root, reportsDir, entry.Name())
		meta, err := readMetadata(filepath.Join(dir, metadataFn))
		if err != nil {
			log.WithError(err).WithField("report", entry.Name()).
				Warning("Skipping report with unreadable metadata")
			continue
		}

		id, err := uuid.FromString(meta.Id)
		if err != nil {
			continue
		}

		reports = append(reports, Report{
			Id:        id,
			Path:      filepath.Join(dir, minidumpFn),
			Size:      meta.Size,
			CreatedAt: meta.CreatedAt,
		})
	}
	return reports, NoError
}

func (d *Disk) DeleteReport(id uuid.UUID) OperationStatus {
	dir := filepath.Join(d.root, reportsDir, id.String())
	if _, err := os.Stat(dir); err != nil {
		return ReportNotFound
	}
	if err := os.RemoveAll(dir); err != nil {
		log.WithError(err).WithField("report", id.String()).
			Error("Can't remove report")
		return FileSystemError
	}
	return NoError
}

func (d *Disk) GetSettings() Settings {
	return d.settings
}

// RemoveStaleReports reaps abandoned staged reports, the leftovers of
// captures that failed between prepare and finish.
func (d *Disk) RemoveStaleReports(olderThan time.Time) (int, OperationStatus) {
	entries, err := os.ReadDir(filepath.Join(d.root, newDir))
	if err != nil {
		log.WithError(err).Error("Can't read staging directory")
		return 0, FileSystemError
	}

	removed := 0
	for _, entry := range entries {
		dir := filepath.Join(d.root, newDir, entry.Name())
		meta, err := readMetadata(filepath.Join(dir, metadataFn))
		if err != nil || meta.CreatedAt.Before(olderThan) {
			if err := os.RemoveAll(dir); err != nil {
				log.WithError(err).WithField("path", dir).
					Warning("Can't remove stale report")
				continue
			}
			removed++
		}
	}
	return removed, NoError
}

func writeMetadata(path string, meta *reportMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return errors.WrapPrefix(err, "serialize metadata", 0)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.WrapPrefix(err, "write metadata", 0)
	}
	return nil
}

func readMetadata(path string) (*reportMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapPrefix(err, "read metadata", 0)
	}
	var meta reportMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.WrapPrefix(err, "parse metadata", 0)
	}
	return &meta, nil
}
