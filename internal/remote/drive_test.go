package remote

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/drive/v3"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name string
		opts ListOptions
		want string
	}{
		{
			name: "latest archive",
			opts: ListOptions{ParentID: "dir1", MimeType: "application/zip"},
			want: "'dir1' in parents and mimeType = 'application/zip' and trashed = false",
		},
		{
			name: "include trashed",
			opts: ListOptions{ParentID: "dir1", IncludeTrashed: true},
			want: "'dir1' in parents",
		},
		{
			name: "escapes quotes",
			opts: ListOptions{ParentID: "it's", Query: "name contains 'x'"},
			want: `'it\'s' in parents and trashed = false and name contains 'x'`,
		},
		{
			name: "empty",
			opts: ListOptions{IncludeTrashed: true},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuery(tt.opts); got != tt.want {
				t.Errorf("buildQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConvertDriveFile(t *testing.T) {
	if convertDriveFile(nil) != nil {
		t.Error("nil file should convert to nil")
	}

	f := convertDriveFile(&drive.File{
		Id:          "a1",
		Name:        "save.zip",
		MimeType:    "application/zip",
		CreatedTime: "2026-01-15T10:30:00Z",
		Parents:     []string{"dir1"},
		Properties:  map[string]string{"owner": "alice", "checksum": "abc"},
	})
	if f.ID != "a1" || f.Properties["checksum"] != "abc" || f.Parents[0] != "dir1" {
		t.Errorf("unexpected conversion: %+v", f)
	}
}

func TestConvertChangeList(t *testing.T) {
	list := convertChangeList(&drive.ChangeList{
		NewStartPageToken: "42",
		Changes: []*drive.Change{
			{
				FileId: "file123",
				Time:   "2026-01-15T10:30:00Z",
				File:   &drive.File{Id: "file123", Parents: []string{"dir1"}},
			},
			nil,
			{FileId: "gone", Removed: true, Time: "not a time"},
		},
	})

	if list.NewStartPageToken != "42" {
		t.Errorf("NewStartPageToken = %q", list.NewStartPageToken)
	}
	if len(list.Changes) != 2 {
		t.Fatalf("len(Changes) = %d, want 2", len(list.Changes))
	}

	first := list.Changes[0]
	want := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	if !first.Time.Equal(want) {
		t.Errorf("Time = %v, want %v", first.Time, want)
	}
	if !first.Touches("", "dir1") {
		t.Error("change should touch its parent directory")
	}

	second := list.Changes[1]
	if !second.Removed || second.File != nil || !second.Time.IsZero() {
		t.Errorf("unexpected removed change: %+v", second)
	}
	if !second.Touches("gone", "") {
		t.Error("change should touch its own file id")
	}
}

func TestProgressWriter(t *testing.T) {
	var buf bytes.Buffer
	var last, total int64
	w := NewProgressWriter(&buf, 10, func(c, tt int64) { last, total = c, tt })

	_, _ = w.Write([]byte("hello"))
	_, _ = w.Write([]byte("world"))

	if last != 10 || total != 10 {
		t.Errorf("progress = %d/%d, want 10/10", last, total)
	}
	if buf.String() != "helloworld" {
		t.Errorf("content = %q", buf.String())
	}
}

func TestProgressReader_NilCallback(t *testing.T) {
	r := strings.NewReader("abc")
	if got := NewProgressReader(r, 3, nil); got != r {
		t.Error("nil callback should return the reader unchanged")
	}
}

func TestSeekSize(t *testing.T) {
	r := strings.NewReader("twelve bytes")
	_, _ = r.Seek(4, 0)

	size, err := seekSize(r)
	if err != nil {
		t.Fatalf("seekSize() error = %v", err)
	}
	if size != 12 {
		t.Errorf("size = %d, want 12", size)
	}
	pos, _ := r.Seek(0, 1)
	if pos != 0 {
		t.Errorf("reader not rewound, at %d", pos)
	}
}
