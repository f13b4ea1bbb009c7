package types

import "time"

// Change represents a change to a file in the remote store
type Change struct {
	// FileID is the ID of the file that changed
	FileID string `json:"fileId,omitempty"`

	// File is the file resource (nil if removed)
	File *DriveFile `json:"file,omitempty"`

	// Removed indicates if the file was removed
	Removed bool `json:"removed"`

	// Time when the change occurred
	Time time.Time `json:"time"`
}

// ChangeList is one page of changes
type ChangeList struct {
	Changes           []Change `json:"changes"`
	NextPageToken     string   `json:"nextPageToken,omitempty"`
	NewStartPageToken string   `json:"newStartPageToken,omitempty"`
}

// Touches reports whether the change concerns the file itself or any file
// directly inside the given parent.
func (c Change) Touches(fileID, parentID string) bool {
	if fileID != "" && c.FileID == fileID {
		return true
	}
	if parentID == "" || c.File == nil {
		return false
	}
	for _, p := range c.File.Parents {
		if p == parentID {
			return true
		}
	}
	return false
}
