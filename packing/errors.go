package packing

import "fmt"

// indicates that a dataset folder holds no files to pack
type EmptyFolderError struct {
	Folder string
}

func (e EmptyFolderError) Error() string {
	return fmt.Sprintf("The folder '%s' contains no files to pack.", e.Folder)
}
