package mocks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dl-alexandre/savegem/internal/remote"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
)

// MemoryStore is an in-memory remote.Store. Any *Func field that is set
// replaces the default behaviour of the matching method.
type MemoryStore struct {
	mu      sync.Mutex
	files   map[string]*memFile
	changes []types.Change
	nextID  int
	clock   time.Time

	User types.DriveUser

	ListFunc          func(opts remote.ListOptions) (*types.FileListResult, error)
	DownloadFunc      func(fileID string, w io.Writer) error
	UploadFunc        func(content []byte, opts remote.UploadOptions) (*types.DriveFile, error)
	UpdateContentFunc func(fileID string, content []byte) (*types.DriveFile, error)
	ListChangesFunc   func(pageToken string) (*types.ChangeList, error)
	CurrentUserFunc   func() (*types.DriveUser, error)

	// Calls counts invocations per method name
	Calls map[string]int
}

type memFile struct {
	meta    types.DriveFile
	content []byte
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files: make(map[string]*memFile),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		User:  types.DriveUser{DisplayName: "Test User", EmailAddress: "test@example.com"},
		Calls: make(map[string]int),
	}
}

var _ remote.Store = (*MemoryStore)(nil)

// Put stores a file directly and returns its metadata
func (s *MemoryStore) Put(meta types.DriveFile, content []byte) *types.DriveFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(meta, content)
}

func (s *MemoryStore) putLocked(meta types.DriveFile, content []byte) *types.DriveFile {
	if meta.ID == "" {
		s.nextID++
		meta.ID = fmt.Sprintf("file-%d", s.nextID)
	}
	if meta.CreatedTime == "" {
		s.clock = s.clock.Add(time.Second)
		meta.CreatedTime = s.clock.Format(time.RFC3339)
	}
	meta.Size = int64(len(content))
	s.files[meta.ID] = &memFile{meta: meta, content: append([]byte(nil), content...)}
	s.changes = append(s.changes, types.Change{FileID: meta.ID, File: copyFile(meta), Time: s.clock})
	return copyFile(meta)
}

// Content returns the stored bytes of fileID
func (s *MemoryStore) Content(fileID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[fileID]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), f.content...), true
}

// Files returns every stored file's metadata
func (s *MemoryStore) Files() []types.DriveFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.DriveFile, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, f.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedTime < out[j].CreatedTime })
	return out
}

func (s *MemoryStore) record(name string) {
	s.mu.Lock()
	s.Calls[name]++
	s.mu.Unlock()
}

func (s *MemoryStore) List(ctx context.Context, opts remote.ListOptions) (*types.FileListResult, error) {
	s.record("List")
	if s.ListFunc != nil {
		return s.ListFunc(opts)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*types.DriveFile
	for _, f := range s.files {
		if opts.ParentID != "" && !hasParent(f.meta, opts.ParentID) {
			continue
		}
		if opts.MimeType != "" && f.meta.MimeType != opts.MimeType {
			continue
		}
		if !opts.IncludeTrashed && f.meta.Trashed {
			continue
		}
		matched = append(matched, copyFile(f.meta))
	}

	desc := opts.OrderBy == "createdTime desc"
	sort.Slice(matched, func(i, j int) bool {
		if desc {
			return matched[i].CreatedTime > matched[j].CreatedTime
		}
		return matched[i].CreatedTime < matched[j].CreatedTime
	})
	if opts.PageSize > 0 && len(matched) > opts.PageSize {
		matched = matched[:opts.PageSize]
	}
	return &types.FileListResult{Files: matched}, nil
}

func (s *MemoryStore) Get(ctx context.Context, fileID string) (*types.DriveFile, error) {
	s.record("Get")
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[fileID]
	if !ok {
		return nil, notFound(fileID)
	}
	return copyFile(f.meta), nil
}

func (s *MemoryStore) Download(ctx context.Context, fileID string, w io.Writer, progress remote.ProgressFunc) error {
	s.record("Download")
	if s.DownloadFunc != nil {
		return s.DownloadFunc(fileID, w)
	}

	content, ok := s.Content(fileID)
	if !ok {
		return notFound(fileID)
	}
	_, err := io.Copy(remote.NewProgressWriter(w, int64(len(content)), progress), bytes.NewReader(content))
	return err
}

func (s *MemoryStore) Upload(ctx context.Context, content io.ReadSeeker, opts remote.UploadOptions) (*types.DriveFile, error) {
	s.record("Upload")
	data, err := io.ReadAll(remote.NewProgressReader(content, sizeOf(content), opts.Progress))
	if err != nil {
		return nil, err
	}
	if s.UploadFunc != nil {
		return s.UploadFunc(data, opts)
	}

	meta := types.DriveFile{
		Name:       opts.Name,
		MimeType:   opts.MimeType,
		Properties: opts.Properties,
	}
	if opts.ParentID != "" {
		meta.Parents = []string{opts.ParentID}
	}
	return s.Put(meta, data), nil
}

func (s *MemoryStore) UpdateContent(ctx context.Context, fileID string, content io.ReadSeeker, progress remote.ProgressFunc) (*types.DriveFile, error) {
	s.record("UpdateContent")
	data, err := io.ReadAll(remote.NewProgressReader(content, sizeOf(content), progress))
	if err != nil {
		return nil, err
	}
	if s.UpdateContentFunc != nil {
		return s.UpdateContentFunc(fileID, data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[fileID]
	if !ok {
		return nil, notFound(fileID)
	}
	s.clock = s.clock.Add(time.Second)
	f.content = data
	f.meta.Size = int64(len(data))
	f.meta.ModifiedTime = s.clock.Format(time.RFC3339)
	s.changes = append(s.changes, types.Change{FileID: fileID, File: copyFile(f.meta), Time: s.clock})
	return copyFile(f.meta), nil
}

// GetStartPageToken returns the index of the next change as the token
func (s *MemoryStore) GetStartPageToken(ctx context.Context) (string, error) {
	s.record("GetStartPageToken")
	s.mu.Lock()
	defer s.mu.Unlock()
	return strconv.Itoa(len(s.changes)), nil
}

func (s *MemoryStore) ListChanges(ctx context.Context, pageToken string) (*types.ChangeList, error) {
	s.record("ListChanges")
	if s.ListChangesFunc != nil {
		return s.ListChangesFunc(pageToken)
	}

	start, err := strconv.Atoi(pageToken)
	if err != nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, "bad page token").Build())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if start > len(s.changes) {
		start = len(s.changes)
	}
	out := append([]types.Change(nil), s.changes[start:]...)
	return &types.ChangeList{
		Changes:           out,
		NewStartPageToken: strconv.Itoa(len(s.changes)),
	}, nil
}

func (s *MemoryStore) CurrentUser(ctx context.Context) (*types.DriveUser, error) {
	s.record("CurrentUser")
	if s.CurrentUserFunc != nil {
		return s.CurrentUserFunc()
	}
	u := s.User
	return &u, nil
}

func hasParent(f types.DriveFile, parentID string) bool {
	for _, p := range f.Parents {
		if p == parentID {
			return true
		}
	}
	return false
}

func copyFile(f types.DriveFile) *types.DriveFile {
	c := f
	if f.Parents != nil {
		c.Parents = append([]string(nil), f.Parents...)
	}
	if f.Properties != nil {
		c.Properties = make(map[string]string, len(f.Properties))
		for k, v := range f.Properties {
			c.Properties[k] = v
		}
	}
	return &c
}

func sizeOf(r io.Seeker) int64 {
	cur, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0
	}
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0
	}
	_, _ = r.Seek(cur, io.SeekStart)
	return end - cur
}

func notFound(fileID string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeFileNotFound,
		fmt.Sprintf("file %s not found", fileID)).WithHTTPStatus(404).Build())
}
