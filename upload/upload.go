// The upload package orchestrates a deposition from start to finish: it
// gates the payload and metadata through validation, packs the payload if
// asked, creates the deposition, streams the files to its bucket, and
// optionally publishes, reporting progress along the way. The workflow runs
// on its own goroutine and can be canceled between files.
package upload

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/frictionlessdata/datapackage-go/datapackage"
	"github.com/google/uuid"

	"github.com/zedd-project/zedd/config"
	"github.com/zedd-project/zedd/journal"
	"github.com/zedd-project/zedd/metadata"
	"github.com/zedd-project/zedd/packing"
	"github.com/zedd-project/zedd/validation"
	"github.com/zedd-project/zedd/zenodo"
)

// the deposition API operations the workflow needs (satisfied by
// zenodo.Client)
type Client interface {
	CreateDeposition(doc *metadata.Document) (zenodo.Deposition, error)
	UploadFile(deposition zenodo.Deposition, path string, progress zenodo.ProgressFunc) (zenodo.DepositionFile, error)
	PublishDeposition(depositionId int) (zenodo.Deposition, error)
	DeleteDeposition(depositionId int) error
}

// a request describing a complete deposition
type Request struct {
	// the (already merged) deposition metadata
	Document *metadata.Document
	// files to deposit
	Files []string
	// a folder to pack and deposit as a single archive (alternative to Files)
	Folder string
	// pack the files into a single archive instead of uploading them one
	// by one
	Archive bool
	// name of the archive created for Folder or Archive requests
	ArchiveName string
	// verify the repository's checksums against local ones after uploading
	VerifyChecksums bool
	// publish the deposition once its files are uploaded (irreversible)
	Publish bool
	// the repository targeted ("production" or "sandbox"), for the journal
	Target string
}

// the workflow stages reported while an upload runs
type Stage string

const (
	StagePacking    Stage = "packing"
	StageCreating   Stage = "creating deposition"
	StageUploading  Stage = "uploading"
	StagePublishing Stage = "publishing"
	StageSucceeded  Stage = "succeeded"
	StageFailed     Stage = "failed"
	StageCanceled   Stage = "canceled"
)

// a progress report emitted while an upload runs
type Status struct {
	Stage Stage
	// the file currently being uploaded (StageUploading only)
	File string
	// bytes sent and expected for the current file (StageUploading only)
	Sent, Total int64
	// what went wrong (StageFailed only)
	Err error
}

// what a completed upload produced
type Result struct {
	Deposition zenodo.Deposition
	Files      []zenodo.DepositionFile
	Packed     []packing.PackedFile
	Manifest   *datapackage.Package
}

// Manager runs one deposition workflow at a time.
type Manager struct {
	client     Client
	status     chan Status
	cancel     chan struct{}
	cancelOnce sync.Once
	done       chan struct{}
	mutex      sync.Mutex
	running    bool
	stagingDir string
	result     Result
	err        error
}

// NewManager creates a manager that deposits through the given client.
func NewManager(client Client) *Manager {
	return &Manager{client: client}
}

// Begin validates the request and, if it passes, starts the upload workflow
// on its own goroutine. Validation problems are reported synchronously, so a
// rejected request never reaches the repository.
func (m *Manager) Begin(request Request) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.running {
		return &BusyError{}
	}

	if issues := validation.Errors(validation.Validate(*request.Document)); len(issues) > 0 {
		return &InvalidMetadataError{Issues: issues}
	}
	if request.Folder == "" {
		if err := ValidateFiles(request.Files); err != nil {
			return err
		}
	}

	m.running = true
	m.result = Result{}
	m.err = nil
	m.status = make(chan Status, 64)
	m.cancel = make(chan struct{})
	m.cancelOnce = sync.Once{}
	m.done = make(chan struct{})
	go m.run(request)
	return nil
}

// Status returns the channel on which progress reports are emitted. Reports
// are dropped rather than block the workflow when nobody is listening.
func (m *Manager) Status() <-chan Status {
	return m.status
}

// Cancel asks a running workflow to stop. The workflow stops between files;
// a file already in flight completes first.
func (m *Manager) Cancel() {
	m.cancelOnce.Do(func() {
		close(m.cancel)
	})
}

// Wait blocks until the workflow finishes and returns what it produced.
func (m *Manager) Wait() (Result, error) {
	<-m.done
	return m.result, m.err
}

// ValidateFiles checks that every path names a readable, non-empty regular
// file within the repository's size limit, and that the payload doesn't hold
// more files than the repository accepts. Like the metadata validator, it
// inspects every file before reporting anything.
func ValidateFiles(paths []string) error {
	if len(paths) == 0 {
		return &FileError{Path: "", Message: "no files were given"}
	}
	if len(paths) > config.Limits.MaxFiles {
		return &TooManyFilesError{NumFiles: len(paths), MaxFiles: config.Limits.MaxFiles}
	}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return &FileError{Path: path, Message: "the file doesn't exist"}
		}
		if !info.Mode().IsRegular() {
			return &FileError{Path: path, Message: "not a regular file"}
		}
		if info.Size() == 0 {
			return &FileError{Path: path, Message: "the file is empty"}
		}
		if info.Size() > config.Limits.MaxFileSize {
			return &FileError{Path: path, Message: fmt.Sprintf(
				"the file is larger than the %d-byte limit", config.Limits.MaxFileSize)}
		}
		file, err := os.Open(path)
		if err != nil {
			return &FileError{Path: path, Message: "the file isn't readable"}
		}
		file.Close()
	}
	return nil
}

//-----------
// Internals
//-----------

func (m *Manager) run(request Request) {
	startTime := time.Now()
	err := m.deposit(request)
	m.err = err

	switch {
	case err == nil:
		m.report(Status{Stage: StageSucceeded})
	case isCanceled(err):
		m.report(Status{Stage: StageCanceled})
	default:
		slog.Error(fmt.Sprintf("Upload failed: %s", err.Error()))
		m.report(Status{Stage: StageFailed, Err: err})
	}

	m.recordAttempt(request, startTime, err)
	if m.stagingDir != "" {
		os.RemoveAll(m.stagingDir)
		m.stagingDir = ""
	}
	close(m.status)
	m.mutex.Lock()
	m.running = false
	m.mutex.Unlock()
	close(m.done)
}

// runs the workflow proper, leaving its results on the manager
func (m *Manager) deposit(request Request) error {
	paths, packed, err := m.stagePayload(request)
	if err != nil {
		return err
	}
	m.result.Packed = packed

	name := request.ArchiveName
	if name == "" {
		name = "dataset.zip"
	}
	manifest, err := packing.Manifest(name, packed)
	if err != nil {
		return err
	}
	m.result.Manifest = manifest

	if m.canceled() {
		return &CanceledError{}
	}
	m.report(Status{Stage: StageCreating})
	deposition, err := m.client.CreateDeposition(request.Document)
	if err != nil {
		return err
	}
	m.result.Deposition = deposition

	for i, path := range paths {
		if m.canceled() {
			// discard the draft so a canceled upload leaves nothing behind
			if err := m.client.DeleteDeposition(deposition.Id); err != nil {
				slog.Error(fmt.Sprintf("Couldn't discard deposition %d: %s",
					deposition.Id, err.Error()))
			}
			return &CanceledError{}
		}
		m.report(Status{Stage: StageUploading, File: path})
		uploaded, err := m.client.UploadFile(deposition, path,
			func(sent, total int64) {
				m.report(Status{Stage: StageUploading, File: path, Sent: sent, Total: total})
			})
		if err != nil {
			return err
		}
		if request.VerifyChecksums {
			if err := verifyChecksum(uploaded, packed[i]); err != nil {
				return err
			}
		}
		m.result.Files = append(m.result.Files, uploaded)
	}

	if request.Publish {
		m.report(Status{Stage: StagePublishing})
		published, err := m.client.PublishDeposition(deposition.Id)
		if err != nil {
			return err
		}
		m.result.Deposition = published
	}
	return nil
}

// resolves the request's payload into the paths to upload and their packed
// descriptions, packing folders (and file lists marked for archiving) into
// a staging archive
func (m *Manager) stagePayload(request Request) ([]string, []packing.PackedFile, error) {
	name := request.ArchiveName
	if name == "" {
		name = "dataset.zip"
	}

	switch {
	case request.Folder != "":
		m.report(Status{Stage: StagePacking})
		archivePath, err := m.stagingPath(name)
		if err != nil {
			return nil, nil, err
		}
		contents, err := packing.ArchiveFolder(request.Folder, archivePath)
		if err != nil {
			return nil, nil, err
		}
		return describeArchive(archivePath, name, contents)

	case request.Archive:
		m.report(Status{Stage: StagePacking})
		archivePath, err := m.stagingPath(name)
		if err != nil {
			return nil, nil, err
		}
		contents, err := packing.ArchiveFiles(request.Files, archivePath)
		if err != nil {
			return nil, nil, err
		}
		return describeArchive(archivePath, name, contents)

	default:
		packed := make([]packing.PackedFile, 0, len(request.Files))
		for _, path := range request.Files {
			checksum, err := packing.Checksum(path)
			if err != nil {
				return nil, nil, err
			}
			info, err := os.Stat(path)
			if err != nil {
				return nil, nil, err
			}
			packed = append(packed, packing.PackedFile{
				Name: filepath.Base(path),
				Path: path,
				Size: info.Size(),
				MD5:  checksum,
			})
		}
		return request.Files, packed, nil
	}
}

// describes a staged archive as the payload's single packed file
func describeArchive(archivePath, name string, contents []packing.PackedFile) ([]string, []packing.PackedFile, error) {
	checksum, err := packing.Checksum(archivePath)
	if err != nil {
		return nil, nil, err
	}
	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, nil, err
	}
	var contentSize int64
	for _, file := range contents {
		contentSize += file.Size
	}
	slog.Info(fmt.Sprintf("Packed %d files (%d bytes) into %s (%d bytes)",
		len(contents), contentSize, name, info.Size()))
	return []string{archivePath}, []packing.PackedFile{{
		Name: name,
		Path: archivePath,
		Size: info.Size(),
		MD5:  checksum,
	}}, nil
}

// returns a fresh path for a staging archive; the staging directory is
// removed when the workflow finishes
func (m *Manager) stagingPath(name string) (string, error) {
	dir := filepath.Join(os.TempDir(), fmt.Sprintf("zedd-%s", uuid.New().String()))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	m.stagingDir = dir
	return filepath.Join(dir, name), nil
}

// compares the repository's checksum for an uploaded file with the local one
func verifyChecksum(uploaded zenodo.DepositionFile, local packing.PackedFile) error {
	reported := strings.TrimPrefix(uploaded.Checksum, "md5:")
	if reported != "" && reported != local.MD5 {
		return &FileError{Path: local.Path, Message: fmt.Sprintf(
			"the repository's checksum (%s) doesn't match the local one (%s)",
			reported, local.MD5)}
	}
	return nil
}

// writes a journal record for the attempt, if the journal is open
func (m *Manager) recordAttempt(request Request, startTime time.Time, err error) {
	if !journal.IsOpen() {
		return
	}
	status := "succeeded"
	switch {
	case isCanceled(err):
		status = "canceled"
	case err != nil:
		status = "failed"
	}
	var payloadSize int64
	for _, file := range m.result.Packed {
		payloadSize += file.Size
	}
	record := journal.Record{
		Id:           uuid.New(),
		Target:       request.Target,
		DepositionId: m.result.Deposition.Id,
		DOI:          m.result.Deposition.DOI,
		Title:        request.Document.Title,
		StartTime:    startTime,
		StopTime:     time.Now(),
		Status:       status,
		PayloadSize:  payloadSize,
		NumFiles:     len(m.result.Packed),
	}
	if status == "succeeded" {
		record.Manifest = m.result.Manifest
	}
	if err := journal.RecordDeposition(record); err != nil {
		slog.Error(fmt.Sprintf("Couldn't record the deposition attempt: %s", err.Error()))
	}
}

func (m *Manager) report(status Status) {
	select {
	case m.status <- status:
	default: // nobody's listening; don't block the workflow
	}
}

func (m *Manager) canceled() bool {
	select {
	case <-m.cancel:
		return true
	default:
		return false
	}
}

func isCanceled(err error) bool {
	_, canceled := err.(*CanceledError)
	return canceled
}
