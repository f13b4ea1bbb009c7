package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dl-alexandre/savegem/internal/api"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const (
	fileFields   = "id,name,mimeType,size,md5Checksum,createdTime,modifiedTime,parents,properties,trashed"
	listFields   = "nextPageToken,files(" + fileFields + ")"
	changeFields = "nextPageToken,newStartPageToken,changes(fileId,removed,time,file(" + fileFields + "))"
)

// DriveStore implements Store on top of the Drive v3 API
type DriveStore struct {
	client  *api.Client
	profile string
}

// NewDriveStore creates a Store backed by client
func NewDriveStore(client *api.Client, profile string) *DriveStore {
	return &DriveStore{client: client, profile: profile}
}

// List lists files. Only the first page is returned; follow NextPageToken for more.
func (s *DriveStore) List(ctx context.Context, opts ListOptions) (*types.FileListResult, error) {
	reqCtx := api.NewRequestContext(s.profile, types.RequestTypeListOrSearch)

	call := s.client.Service().Files.List().Context(ctx).Fields(googleapi.Field(listFields))

	if q := buildQuery(opts); q != "" {
		call = call.Q(q)
	}
	if opts.ParentID != "" {
		reqCtx.InvolvedParentIDs = append(reqCtx.InvolvedParentIDs, opts.ParentID)
	}
	if opts.PageSize > 0 {
		call = call.PageSize(int64(opts.PageSize))
	}
	if opts.PageToken != "" {
		call = call.PageToken(opts.PageToken)
	}
	if opts.OrderBy != "" {
		call = call.OrderBy(opts.OrderBy)
	}

	result, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*drive.FileList, error) {
		return call.Do()
	})
	if err != nil {
		return nil, err
	}

	files := make([]*types.DriveFile, len(result.Files))
	for i, f := range result.Files {
		files[i] = convertDriveFile(f)
	}

	return &types.FileListResult{
		Files:         files,
		NextPageToken: result.NextPageToken,
	}, nil
}

func buildQuery(opts ListOptions) string {
	var clauses []string
	if opts.ParentID != "" {
		clauses = append(clauses, fmt.Sprintf("'%s' in parents", escapeQuery(opts.ParentID)))
	}
	if opts.MimeType != "" {
		clauses = append(clauses, fmt.Sprintf("mimeType = '%s'", escapeQuery(opts.MimeType)))
	}
	if !opts.IncludeTrashed {
		clauses = append(clauses, "trashed = false")
	}
	if opts.Query != "" {
		clauses = append(clauses, opts.Query)
	}
	return strings.Join(clauses, " and ")
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// Get retrieves file metadata
func (s *DriveStore) Get(ctx context.Context, fileID string) (*types.DriveFile, error) {
	reqCtx := api.NewRequestContext(s.profile, types.RequestTypeGetByID)
	reqCtx.InvolvedFileIDs = append(reqCtx.InvolvedFileIDs, fileID)

	call := s.client.Service().Files.Get(fileID).Context(ctx).Fields(googleapi.Field(fileFields))

	result, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*drive.File, error) {
		return call.Do()
	})
	if err != nil {
		return nil, err
	}
	return convertDriveFile(result), nil
}

// Download streams the content of fileID into w
func (s *DriveStore) Download(ctx context.Context, fileID string, w io.Writer, progress ProgressFunc) error {
	reqCtx := api.NewRequestContext(s.profile, types.RequestTypeDownload)
	reqCtx.InvolvedFileIDs = append(reqCtx.InvolvedFileIDs, fileID)

	resp, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*http.Response, error) {
		return s.client.Service().Files.Get(fileID).Context(ctx).Download()
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	if _, err := io.Copy(NewProgressWriter(w, total, progress), resp.Body); err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeNetworkError,
			fmt.Sprintf("download interrupted: %s", err)).
			WithRetryable(true).
			WithContext("fileId", fileID).
			WithContext("traceId", reqCtx.TraceID).
			Build(), err)
	}
	return nil
}

// Upload creates a new file from content
func (s *DriveStore) Upload(ctx context.Context, content io.ReadSeeker, opts UploadOptions) (*types.DriveFile, error) {
	reqCtx := api.NewRequestContext(s.profile, types.RequestTypeUpload)

	size, err := seekSize(content)
	if err != nil {
		return nil, fmt.Errorf("failed to size upload: %w", err)
	}

	metadata := &drive.File{
		Name:       opts.Name,
		MimeType:   opts.MimeType,
		Properties: opts.Properties,
	}
	if opts.ParentID != "" {
		metadata.Parents = []string{opts.ParentID}
		reqCtx.InvolvedParentIDs = append(reqCtx.InvolvedParentIDs, opts.ParentID)
	}

	var mediaOpts []googleapi.MediaOption
	if opts.MimeType != "" {
		mediaOpts = append(mediaOpts, googleapi.ContentType(opts.MimeType))
	}

	result, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*drive.File, error) {
		if _, err := content.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		media := NewProgressReader(content, size, opts.Progress)
		return s.client.Service().Files.Create(metadata).
			Context(ctx).
			Media(media, mediaOpts...).
			Fields(googleapi.Field(fileFields)).
			Do()
	})
	if err != nil {
		return nil, err
	}
	return convertDriveFile(result), nil
}

// UpdateContent replaces the content of an existing file
func (s *DriveStore) UpdateContent(ctx context.Context, fileID string, content io.ReadSeeker, progress ProgressFunc) (*types.DriveFile, error) {
	reqCtx := api.NewRequestContext(s.profile, types.RequestTypeMutation)
	reqCtx.InvolvedFileIDs = append(reqCtx.InvolvedFileIDs, fileID)

	size, err := seekSize(content)
	if err != nil {
		return nil, fmt.Errorf("failed to size upload: %w", err)
	}

	result, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*drive.File, error) {
		if _, err := content.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return s.client.Service().Files.Update(fileID, &drive.File{}).
			Context(ctx).
			Media(NewProgressReader(content, size, progress)).
			Fields(googleapi.Field(fileFields)).
			Do()
	})
	if err != nil {
		return nil, err
	}
	return convertDriveFile(result), nil
}

// GetStartPageToken returns the cursor for changes made from now on
func (s *DriveStore) GetStartPageToken(ctx context.Context) (string, error) {
	reqCtx := api.NewRequestContext(s.profile, types.RequestTypeGetByID)

	result, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*drive.StartPageToken, error) {
		return s.client.Service().Changes.GetStartPageToken().Context(ctx).Do()
	})
	if err != nil {
		return "", err
	}
	return result.StartPageToken, nil
}

// ListChanges returns one page of changes since pageToken
func (s *DriveStore) ListChanges(ctx context.Context, pageToken string) (*types.ChangeList, error) {
	if pageToken == "" {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"page token is required for listing changes").Build())
	}
	reqCtx := api.NewRequestContext(s.profile, types.RequestTypeListOrSearch)

	result, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*drive.ChangeList, error) {
		return s.client.Service().Changes.List(pageToken).
			Context(ctx).
			Fields(googleapi.Field(changeFields)).
			Do()
	})
	if err != nil {
		return nil, err
	}
	return convertChangeList(result), nil
}

// CurrentUser returns the account the store is authenticated as
func (s *DriveStore) CurrentUser(ctx context.Context) (*types.DriveUser, error) {
	reqCtx := api.NewRequestContext(s.profile, types.RequestTypeGetByID)

	result, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*drive.About, error) {
		return s.client.Service().About.Get().Context(ctx).Fields("user(displayName,emailAddress)").Do()
	})
	if err != nil {
		return nil, err
	}
	if result.User == nil {
		return &types.DriveUser{}, nil
	}
	return &types.DriveUser{
		DisplayName:  result.User.DisplayName,
		EmailAddress: result.User.EmailAddress,
	}, nil
}

func convertDriveFile(f *drive.File) *types.DriveFile {
	if f == nil {
		return nil
	}
	return &types.DriveFile{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		Size:         f.Size,
		MD5Checksum:  f.Md5Checksum,
		CreatedTime:  f.CreatedTime,
		ModifiedTime: f.ModifiedTime,
		Parents:      f.Parents,
		Properties:   f.Properties,
		Trashed:      f.Trashed,
	}
}

func convertChangeList(apiList *drive.ChangeList) *types.ChangeList {
	changes := make([]types.Change, 0, len(apiList.Changes))
	for _, c := range apiList.Changes {
		if c == nil {
			continue
		}
		changes = append(changes, convertChange(c))
	}
	return &types.ChangeList{
		Changes:           changes,
		NextPageToken:     apiList.NextPageToken,
		NewStartPageToken: apiList.NewStartPageToken,
	}
}

func convertChange(c *drive.Change) types.Change {
	change := types.Change{
		FileID:  c.FileId,
		Removed: c.Removed,
		File:    convertDriveFile(c.File),
	}
	if c.Time != "" {
		if t, err := time.Parse(time.RFC3339, c.Time); err == nil {
			change.Time = t
		}
	}
	return change
}
