// Package remote is the boundary to the shared file store that holds save
// archives, the game configuration and the activity document.
package remote

import (
	"context"
	"io"

	"github.com/dl-alexandre/savegem/internal/types"
)

// ProgressFunc receives transferred and total byte counts. total is 0 when unknown.
type ProgressFunc func(current, total int64)

// ListOptions configures a file listing
type ListOptions struct {
	ParentID       string
	MimeType       string
	Query          string
	OrderBy        string
	PageSize       int
	PageToken      string
	IncludeTrashed bool
}

// UploadOptions configures a new file upload
type UploadOptions struct {
	Name       string
	ParentID   string
	MimeType   string
	Properties map[string]string
	Progress   ProgressFunc
}

// Store is everything the sync engine needs from the remote side
type Store interface {
	List(ctx context.Context, opts ListOptions) (*types.FileListResult, error)
	Get(ctx context.Context, fileID string) (*types.DriveFile, error)
	Download(ctx context.Context, fileID string, w io.Writer, progress ProgressFunc) error
	Upload(ctx context.Context, content io.ReadSeeker, opts UploadOptions) (*types.DriveFile, error)
	UpdateContent(ctx context.Context, fileID string, content io.ReadSeeker, progress ProgressFunc) (*types.DriveFile, error)
	GetStartPageToken(ctx context.Context) (string, error)
	ListChanges(ctx context.Context, pageToken string) (*types.ChangeList, error)
	CurrentUser(ctx context.Context) (*types.DriveUser, error)
}
