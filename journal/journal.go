package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/frictionlessdata/datapackage-go/datapackage"
	"github.com/frictionlessdata/datapackage-go/validator"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/zedd-project/zedd/config"
)

// This is the deposition journal, which logs every completed upload attempt.
// The journal is a table of deposition records (one per attempt).

// a record storing all information relevant to a deposition attempt
type Record struct {
	// UUID associated with the attempt
	Id uuid.UUID `json:"id"`
	// the repository targeted ("production" or "sandbox")
	Target string `json:"target"`
	// the deposition's repository-side identifier and DOI (when one was minted)
	DepositionId int    `json:"deposition_id"`
	DOI          string `json:"doi"`
	// the deposition's title
	Title string `json:"title"`
	// times at which the upload was started and at which it completed
	StartTime time.Time `json:"start_time"`
	StopTime  time.Time `json:"stop_time"`
	// status of the attempt ("succeeded", "failed", or "canceled")
	Status string `json:"status"`
	// size of the deposition's payload in bytes
	PayloadSize int64 `json:"payload_size"`
	// number of files in the deposition's payload
	NumFiles int `json:"num_files"`
	// manifest describing the deposition's payload (stored separate from record)
	Manifest *datapackage.Package `json:"-"`
}

// initialize the deposition journal
func Init() error {
	if !IsOpen() {
		go depositionJournalProcess()
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

// saves and closes the deposition journal (if it's been opened)
func Finalize() error {
	if IsOpen() {
		channels_.Input.Shutdown <- struct{}{}
		closeChannels()
	}
	return nil
}

// returns true if the journal is open for writing, false if not
func IsOpen() bool {
	if channels_.Open { // has Init() been called?
		channels_.Input.CheckIfOpen <- struct{}{}
		select {
		case isOpen := <-channels_.Output.IsOpen:
			return isOpen
		case <-time.After(1 * time.Second): // after a second, we assume the goroutine has crashed
			closeChannels()
			return false
		}
	}
	return false
}

// records a completed deposition attempt
// record: the record containing all deposition information
func RecordDeposition(record Record) error {
	switch record.Status {
	case "succeeded", "failed", "canceled":
		// pass-through (see below)
	default:
		return &NewRecordError{
			Id:      record.Id,
			Message: fmt.Sprintf("Invalid status: %s", record.Status),
		}
	}

	if !IsOpen() {
		return &NotOpenError{}
	}

	channels_.Input.CreateRecord <- record
	return <-channels_.Output.Error
}

// retrieves records for depositions that started within the time range with
// the given (inclusive) bounds
// start: the beginning of the time period of interest
// stop: the end of the time period of interest
func Records(start, stop time.Time) ([]Record, error) {
	if !IsOpen() {
		return nil, &NotOpenError{}
	}
	channels_.Input.FetchRecords <- TimeRange{Start: start, Stop: stop}
	var records []Record
	var err error
	select {
	case records = <-channels_.Output.Records:
		return records, err
	case err = <-channels_.Output.Error:
		return records, err
	}
}

// retrieves the record for the deposition attempt with the given UUID
func DepositionRecord(id uuid.UUID) (Record, error) {
	if !IsOpen() {
		return Record{}, &NotOpenError{}
	}
	channels_.Input.FetchRecord <- id
	select {
	case record := <-channels_.Output.Record:
		return record, nil
	case err := <-channels_.Output.Error:
		return Record{}, err
	}
}

//-----------
// Internals
//-----------

// The deposition journal gets its own goroutine so it doesn't bring down the
// whole program if it crashes. Here we define "input" channels (main process
// -> goroutine) and "output" channels (goroutine -> main process) for passing
// data back and forth

type TimeRange struct {
	Start, Stop time.Time
}

var channels_ struct {
	Open  bool // true if channels are open, false if not
	Input struct {
		CreateRecord chan Record    // for creating new records
		CheckIfOpen  chan struct{}  // for checking to see whether the database is open
		FetchRecords chan TimeRange // for fetching records within a time range
		FetchRecord  chan uuid.UUID // for fetching a single record by UUID
		Shutdown     chan struct{}  // for shutting down the database
	}

	Output struct {
		Records chan []Record // for returning records
		Record  chan Record   // for returning a single record
		Error   chan error    // for returning errors
		IsOpen  chan bool     // for answering queries about whether the database is open
	}
}

func depositionJournalProcess() {

	// open the database, creating the schema if necessary
	dbPath := filepath.Join(config.Paths.DataDirectory, "deposition_journal.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		channels_.Output.Error <- &CantOpenError{
			Message: err.Error(),
		}
	}

	// set up buckets for deposition records and manifests
	db.Update(func(tx *bolt.Tx) error {
		for _, bucketName := range []string{"depositions", "manifests"} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucketName)); err != nil {
				return err
			}
		}
		return nil
	})

	openChannels()

	// handle requests
	running := true
	for running {
		select {

		case <-channels_.Input.CheckIfOpen:
			channels_.Output.IsOpen <- true // always true if this goroutine is running!

		case record := <-channels_.Input.CreateRecord:
			err := createRecord(db, record)
			channels_.Output.Error <- err

		case timeRange := <-channels_.Input.FetchRecords:
			records, err := fetchRecords(db, timeRange.Start, timeRange.Stop)
			if err != nil {
				channels_.Output.Error <- err
			} else {
				channels_.Output.Records <- records
			}

		case id := <-channels_.Input.FetchRecord:
			record, err := fetchRecord(db, id)
			if err != nil {
				channels_.Output.Error <- err
			} else {
				channels_.Output.Record <- record
			}

		case <-channels_.Input.Shutdown:
			err := db.Close()
			if err != nil {
				channels_.Output.Error <- &CantCloseError{
					Message: err.Error(),
				}
			}
			running = false
		}
	}
}

func openChannels() {
	channels_.Open = true
	channels_.Input.CreateRecord = make(chan Record)
	channels_.Input.CheckIfOpen = make(chan struct{})
	channels_.Input.FetchRecords = make(chan TimeRange)
	channels_.Input.FetchRecord = make(chan uuid.UUID)
	channels_.Input.Shutdown = make(chan struct{})
	channels_.Output.Records = make(chan []Record)
	channels_.Output.Record = make(chan Record)
	channels_.Output.Error = make(chan error)
	channels_.Output.IsOpen = make(chan bool)
}

func closeChannels() {
	channels_.Open = false
	close(channels_.Input.CreateRecord)
	close(channels_.Input.CheckIfOpen)
	close(channels_.Input.FetchRecords)
	close(channels_.Input.FetchRecord)
	close(channels_.Input.Shutdown)
	close(channels_.Output.Records)
	close(channels_.Output.Record)
	close(channels_.Output.Error)
	close(channels_.Output.IsOpen)
}

// records are keyed by start time (with the UUID as a tiebreaker) so
// time-range queries are cursor scans
func recordKey(record Record) []byte {
	return []byte(fmt.Sprintf("%s-%s", record.StartTime.Format(time.RFC3339),
		record.Id.String()))
}

func createRecord(db *bolt.DB, record Record) error {
	tx, err := db.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// store the deposition record, indexing it by its start time
	bucket := tx.Bucket([]byte("depositions"))

	jsonBytes, err := json.Marshal(&record)
	if err != nil {
		return &NewRecordError{
			Id:      record.Id,
			Message: err.Error(),
		}
	}
	err = bucket.Put(recordKey(record), jsonBytes)
	if err != nil {
		return err
	}

	// if the deposition succeeded, store its manifest (indexed by UUID)
	if record.Manifest != nil {
		jsonManifest, err := json.Marshal(record.Manifest.Descriptor())
		if err != nil {
			return &NewRecordError{
				Id:      record.Id,
				Message: err.Error(),
			}
		}
		bucket := tx.Bucket([]byte("manifests"))
		bucket.Put([]byte(record.Id.String()), jsonManifest)
	}

	return tx.Commit()
}

// attaches the stored manifest (if any) to the given record
func attachManifest(tx *bolt.Tx, record *Record) error {
	m := tx.Bucket([]byte("manifests")).Get([]byte(record.Id.String()))
	if m == nil {
		if record.Status == "succeeded" {
			return &InvalidRecordError{
				Id:      record.Id,
				Message: "unable to retrieve manifest for successful deposition",
			}
		}
		return nil
	}
	var err error
	record.Manifest, err = datapackage.FromString(string(m), "manifest.json",
		validator.InMemoryLoader())
	if err != nil {
		return &InvalidRecordError{
			Id:      record.Id,
			Message: err.Error(),
		}
	}
	return nil
}

func fetchRecords(db *bolt.DB, start, stop time.Time) ([]Record, error) {
	records := make([]Record, 0)
	err := db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte("depositions")).Cursor()

		startKey := []byte(start.Format(time.RFC3339))
		// record keys carry a UUID suffix, so bump the stop key past every
		// key sharing the stop time's timestamp prefix
		stopKey := []byte(stop.Format(time.RFC3339) + "~")

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, stopKey) <= 0; k, v = c.Next() {
			var record Record
			err := json.Unmarshal(v, &record)
			if err != nil {
				return err
			}
			records = append(records, record)
		}

		// get manifests for each successfully completed deposition (this can be slow)
		for i := range records {
			if err := attachManifest(tx, &records[i]); err != nil {
				return err
			}
		}
		return nil
	})

	return records, err
}

func fetchRecord(db *bolt.DB, id uuid.UUID) (Record, error) {
	var record Record
	found := false
	err := db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte("depositions")).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if bytes.HasSuffix(k, []byte(id.String())) {
				if err := json.Unmarshal(v, &record); err != nil {
					return err
				}
				found = true
				return attachManifest(tx, &record)
			}
		}
		return nil
	})
	if err != nil {
		return record, err
	}
	if !found {
		return record, &RecordNotFoundError{Id: id}
	}
	return record, nil
}
