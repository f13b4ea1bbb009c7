package types

// DriveFile represents a file in the remote store
type DriveFile struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	MimeType     string            `json:"mimeType"`
	Size         int64             `json:"size,omitempty"`
	MD5Checksum  string            `json:"md5Checksum,omitempty"`
	CreatedTime  string            `json:"createdTime,omitempty"`
	ModifiedTime string            `json:"modifiedTime,omitempty"`
	Parents      []string          `json:"parents,omitempty"`
	Properties   map[string]string `json:"properties,omitempty"`
	Trashed      bool              `json:"trashed,omitempty"`
}

// FileListResult represents a paginated file list response
type FileListResult struct {
	Files         []*DriveFile `json:"files"`
	NextPageToken string       `json:"nextPageToken,omitempty"`
}

// DriveUser is the account the remote store is accessed as
type DriveUser struct {
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}
