package upload

// These tests drive the workflow with a fake deposition client, so no
// network access is needed.

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zedd-project/zedd/config"
	"github.com/zedd-project/zedd/metadata"
	"github.com/zedd-project/zedd/packing"
	"github.com/zedd-project/zedd/zenodo"
)

// temporary testing directory
var TESTING_DIR string

// a deposition client that records what was asked of it
type fakeClient struct {
	sync.Mutex
	nextId     int
	created    []*metadata.Document
	uploaded   []string
	published  []int
	deleted    []int
	failUpload bool
	// lets a test hold an upload open until it says otherwise
	uploadGate chan struct{}
	// signals that an upload has started (when non-nil)
	uploadStarted chan string
}

func (c *fakeClient) CreateDeposition(doc *metadata.Document) (zenodo.Deposition, error) {
	c.Lock()
	defer c.Unlock()
	c.nextId++
	c.created = append(c.created, doc)
	return zenodo.Deposition{
		Id:    c.nextId,
		State: "unsubmitted",
		Links: zenodo.Links{Bucket: "https://example.org/bucket"},
	}, nil
}

func (c *fakeClient) UploadFile(deposition zenodo.Deposition, path string, progress zenodo.ProgressFunc) (zenodo.DepositionFile, error) {
	if c.uploadStarted != nil {
		c.uploadStarted <- path
	}
	if c.uploadGate != nil {
		<-c.uploadGate
	}
	c.Lock()
	defer c.Unlock()
	if c.failUpload {
		return zenodo.DepositionFile{}, &zenodo.ServerError{StatusCode: 500}
	}
	c.uploaded = append(c.uploaded, path)
	info, err := os.Stat(path)
	if err != nil {
		return zenodo.DepositionFile{}, err
	}
	if progress != nil {
		progress(info.Size(), info.Size())
	}
	checksum, err := packing.Checksum(path)
	if err != nil {
		return zenodo.DepositionFile{}, err
	}
	return zenodo.DepositionFile{
		Filename: filepath.Base(path),
		Filesize: info.Size(),
		Checksum: fmt.Sprintf("md5:%s", checksum),
	}, nil
}

func (c *fakeClient) PublishDeposition(depositionId int) (zenodo.Deposition, error) {
	c.Lock()
	defer c.Unlock()
	c.published = append(c.published, depositionId)
	return zenodo.Deposition{Id: depositionId, State: "done", Submitted: true,
		DOI: fmt.Sprintf("10.5072/zenodo.%d", depositionId)}, nil
}

func (c *fakeClient) DeleteDeposition(depositionId int) error {
	c.Lock()
	defer c.Unlock()
	c.deleted = append(c.deleted, depositionId)
	return nil
}

// valid deposition metadata for requests
func testDocument() *metadata.Document {
	return &metadata.Document{
		Title:       "MicroED structure of lysozyme",
		Description: "A dataset.",
		UploadType:  "dataset",
		AccessRight: "open",
		License:     "cc-by-4.0",
		Creators:    []metadata.Creator{{Name: "Doe, Jane"}},
	}
}

// writes a payload file and returns its path
func payloadFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	assert.Nil(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestUploadFiles(t *testing.T) {
	assert := assert.New(t)

	client := &fakeClient{}
	manager := NewManager(client)
	first := payloadFile(t, "crystal.cif", "data_crystal\n")
	second := payloadFile(t, "report.txt", "refinement report")

	err := manager.Begin(Request{
		Document:        testDocument(),
		Files:           []string{first, second},
		VerifyChecksums: true,
		Target:          "sandbox",
	})
	assert.Nil(err)

	result, err := manager.Wait()
	assert.Nil(err)
	assert.Equal([]string{first, second}, client.uploaded)
	assert.Empty(client.published, "An unpublished request was published.")
	assert.Equal(1, result.Deposition.Id)
	assert.Len(result.Files, 2)
	assert.Len(result.Packed, 2)
	assert.Equal("crystal.cif", result.Packed[0].Name)
	assert.NotNil(result.Manifest)
	assert.Contains(result.Manifest.ResourceNames(), "crystal.cif")
}

func TestUploadAndPublish(t *testing.T) {
	assert := assert.New(t)

	client := &fakeClient{}
	manager := NewManager(client)
	err := manager.Begin(Request{
		Document: testDocument(),
		Files:    []string{payloadFile(t, "crystal.cif", "data_crystal\n")},
		Publish:  true,
		Target:   "sandbox",
	})
	assert.Nil(err)

	result, err := manager.Wait()
	assert.Nil(err)
	assert.Equal([]int{1}, client.published)
	assert.True(result.Deposition.Submitted)
	assert.Equal("10.5072/zenodo.1", result.Deposition.DOI)
}

func TestUploadFolder(t *testing.T) {
	assert := assert.New(t)

	folder := t.TempDir()
	assert.Nil(os.WriteFile(filepath.Join(folder, "crystal.cif"), []byte("data_crystal\n"), 0644))
	assert.Nil(os.WriteFile(filepath.Join(folder, "frames.img"), []byte("image data"), 0644))

	client := &fakeClient{}
	manager := NewManager(client)
	err := manager.Begin(Request{
		Document:    testDocument(),
		Folder:      folder,
		ArchiveName: "lysozyme.zip",
		Target:      "sandbox",
	})
	assert.Nil(err)

	result, err := manager.Wait()
	assert.Nil(err)

	// the folder went up as a single archive
	assert.Len(client.uploaded, 1)
	assert.Equal("lysozyme.zip", filepath.Base(client.uploaded[0]))
	assert.Len(result.Packed, 1)
	assert.Equal("lysozyme.zip", result.Packed[0].Name)
}

func TestInvalidMetadataNeverReachesClient(t *testing.T) {
	assert := assert.New(t)

	doc := testDocument()
	doc.Title = ""
	client := &fakeClient{}
	manager := NewManager(client)
	err := manager.Begin(Request{
		Document: doc,
		Files:    []string{payloadFile(t, "crystal.cif", "data_crystal\n")},
	})
	var invalid *InvalidMetadataError
	assert.ErrorAs(err, &invalid)
	assert.Len(invalid.Issues, 1)
	assert.Equal("title", invalid.Issues[0].Field)
	assert.Empty(client.created, "An invalid request reached the repository.")
}

func TestBadFilesNeverReachClient(t *testing.T) {
	assert := assert.New(t)

	client := &fakeClient{}
	manager := NewManager(client)

	err := manager.Begin(Request{
		Document: testDocument(),
		Files:    []string{filepath.Join(t.TempDir(), "missing.cif")},
	})
	var fileErr *FileError
	assert.ErrorAs(err, &fileErr)

	empty := payloadFile(t, "empty.cif", "")
	err = manager.Begin(Request{Document: testDocument(), Files: []string{empty}})
	assert.ErrorAs(err, &fileErr)
	assert.Equal(empty, fileErr.Path)
	assert.Empty(client.created)
}

func TestTooManyFiles(t *testing.T) {
	assert := assert.New(t)

	paths := make([]string, config.Limits.MaxFiles+1)
	for i := range paths {
		paths[i] = payloadFile(t, fmt.Sprintf("file%d.txt", i), "x")
	}
	err := NewManager(&fakeClient{}).Begin(Request{Document: testDocument(), Files: paths})
	var tooMany *TooManyFilesError
	assert.ErrorAs(err, &tooMany)
	assert.Equal(config.Limits.MaxFiles, tooMany.MaxFiles)
}

func TestUploadFailureReported(t *testing.T) {
	assert := assert.New(t)

	client := &fakeClient{failUpload: true}
	manager := NewManager(client)
	err := manager.Begin(Request{
		Document: testDocument(),
		Files:    []string{payloadFile(t, "crystal.cif", "data_crystal\n")},
	})
	assert.Nil(err)

	_, err = manager.Wait()
	var serverErr *zenodo.ServerError
	assert.ErrorAs(err, &serverErr)
	assert.Empty(client.published)
}

func TestCancelBetweenFiles(t *testing.T) {
	assert := assert.New(t)

	client := &fakeClient{
		uploadGate:    make(chan struct{}),
		uploadStarted: make(chan string, 2),
	}
	manager := NewManager(client)
	first := payloadFile(t, "a.cif", "data_a\n")
	second := payloadFile(t, "b.cif", "data_b\n")
	err := manager.Begin(Request{
		Document: testDocument(),
		Files:    []string{first, second},
	})
	assert.Nil(err)

	// cancel while the first file is in flight, then let it finish
	assert.Equal(first, <-client.uploadStarted)
	manager.Cancel()
	close(client.uploadGate)

	_, err = manager.Wait()
	var canceled *CanceledError
	assert.ErrorAs(err, &canceled)

	// the first file completed, the second never started, and the draft
	// deposition was discarded
	assert.Equal([]string{first}, client.uploaded)
	assert.Equal([]int{1}, client.deleted)
}

func TestStatusReports(t *testing.T) {
	assert := assert.New(t)

	client := &fakeClient{}
	manager := NewManager(client)
	path := payloadFile(t, "crystal.cif", "data_crystal\n")
	err := manager.Begin(Request{
		Document: testDocument(),
		Files:    []string{path},
		Publish:  true,
	})
	assert.Nil(err)

	stages := make(map[Stage]bool)
	var lastUpload Status
	for status := range manager.Status() {
		stages[status.Stage] = true
		if status.Stage == StageUploading && status.Sent > 0 {
			lastUpload = status
		}
	}
	_, err = manager.Wait()
	assert.Nil(err)

	assert.True(stages[StageCreating])
	assert.True(stages[StageUploading])
	assert.True(stages[StagePublishing])
	assert.True(stages[StageSucceeded])
	assert.Equal(path, lastUpload.File)
	assert.Equal(lastUpload.Total, lastUpload.Sent)
}

// a manager reused for a second deposition reports only that run's outcome
func TestManagerReuse(t *testing.T) {
	assert := assert.New(t)

	client := &fakeClient{}
	manager := NewManager(client)
	first := payloadFile(t, "first.cif", "data_first\n")
	second := payloadFile(t, "second.cif", "data_second\n")

	assert.Nil(manager.Begin(Request{Document: testDocument(), Files: []string{first}}))
	result, err := manager.Wait()
	assert.Nil(err)
	assert.Len(result.Files, 1)

	assert.Nil(manager.Begin(Request{Document: testDocument(), Files: []string{second}}))
	result, err = manager.Wait()
	assert.Nil(err)
	assert.Equal(2, result.Deposition.Id)
	assert.Len(result.Files, 1)
	assert.Len(result.Packed, 1)
	assert.Equal("second.cif", result.Packed[0].Name)
}

func TestManagerIsBusyWhileRunning(t *testing.T) {
	assert := assert.New(t)

	client := &fakeClient{uploadGate: make(chan struct{})}
	manager := NewManager(client)
	path := payloadFile(t, "crystal.cif", "data_crystal\n")
	assert.Nil(manager.Begin(Request{Document: testDocument(), Files: []string{path}}))

	err := manager.Begin(Request{Document: testDocument(), Files: []string{path}})
	var busy *BusyError
	assert.ErrorAs(err, &busy)

	close(client.uploadGate)
	_, err = manager.Wait()
	assert.Nil(err)
}

// this function gets called at the beginning of a test session
func setup() {
	var err error
	TESTING_DIR, err = os.MkdirTemp(os.TempDir(), "zedd-upload-tests-")
	if err != nil {
		log.Panicf("Couldn't create testing directory: %s", err)
	}
	settings := strings.ReplaceAll("paths:\n  config_directory: TESTING_DIR\n",
		"TESTING_DIR", TESTING_DIR)
	err = config.Init([]byte(settings))
	if err != nil {
		log.Panicf("Couldn't initialize configuration: %s", err)
	}
}

// this function gets called after all tests have been run
func breakdown() {
	if TESTING_DIR != "" {
		os.RemoveAll(TESTING_DIR)
	}
}

// This runs setup, runs all tests, and does breakdown.
func TestMain(m *testing.M) {
	var status int
	setup()
	status = m.Run()
	breakdown()
	os.Exit(status)
}
