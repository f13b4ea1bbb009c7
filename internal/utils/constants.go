package utils

// OAuth scopes
const (
	ScopeFull             = "https://www.googleapis.com/auth/drive"
	ScopeFile             = "https://www.googleapis.com/auth/drive.file"
	ScopeReadonly         = "https://www.googleapis.com/auth/drive.readonly"
	ScopeMetadataReadonly = "https://www.googleapis.com/auth/drive.metadata.readonly"
)

// DefaultScopes are requested by `savegem auth login` when none are given.
// The game configuration and activity documents are shared by another
// account, so drive.file alone is not enough.
var DefaultScopes = []string{ScopeFull}

// Retry configuration
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 1000
	MaxRetryDelayMs     = 32000
)

// Schema version
const SchemaVersion = "1.0"

// MIME types
const (
	MimeTypeArchive = "application/zip"
	MimeTypeJSON    = "application/json"
	MimeTypeFolder  = "application/vnd.google-apps.folder"
)

// File names
const (
	// MetadataFileName lives inside every save directory and is never part of the checksum
	MetadataFileName = "SaveGemMetadata.json"
	BackupSuffix     = "_backup"
	StateFileName    = "state.json"
	GUIFlagFileName  = "gui_initialized"
	IndexFileName    = "index.db"
)

// Remote file properties written on every uploaded archive
const (
	PropertyOwner    = "owner"
	PropertyChecksum = "checksum"
)

// IPC limits
const MaxMessageBytes = 4096

// Default loopback ports, one per socket
const (
	DefaultUIPort        = 47000
	DefaultChangesPort   = 47001
	DefaultProcessesPort = 47002
)

// DefaultDaemonIntervalSeconds is the poll period of every daemon
const DefaultDaemonIntervalSeconds = 60
