package upload

import (
	"fmt"

	"github.com/zedd-project/zedd/validation"
)

// indicates that a payload file cannot be deposited as-is
type FileError struct {
	Path, Message string
}

func (e FileError) Error() string {
	return fmt.Sprintf("The file '%s' can't be deposited: %s", e.Path, e.Message)
}

// indicates that a payload holds more files than the repository accepts
type TooManyFilesError struct {
	NumFiles, MaxFiles int
}

func (e TooManyFilesError) Error() string {
	return fmt.Sprintf("The payload holds %d files, but the repository accepts at most %d per record.",
		e.NumFiles, e.MaxFiles)
}

// indicates that the deposition metadata has blocking validation issues
type InvalidMetadataError struct {
	Issues []validation.Issue
}

func (e InvalidMetadataError) Error() string {
	message := "The deposition metadata is not valid:"
	for _, issue := range e.Issues {
		message += fmt.Sprintf("\n  %s", issue)
	}
	return message
}

// indicates that the upload was canceled before it completed
type CanceledError struct {
}

func (e CanceledError) Error() string {
	return "The upload was canceled."
}

// indicates that an upload is already running on this manager
type BusyError struct {
}

func (e BusyError) Error() string {
	return "An upload is already in progress."
}
