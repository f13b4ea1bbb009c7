package types

import "strings"

// Game is one entry of the shared game configuration
type Game struct {
	Name              string   `json:"name"`
	ProcessName       string   `json:"processName"`
	LocalPath         string   `json:"localPath"`
	RemoteDirectoryID string   `json:"remoteDirectoryId"`
	FilePatterns      []string `json:"filePatterns"`
	AutoModeAllowed   bool     `json:"autoModeAllowed"`
}

// SyncStatus is the comparison result between local saves and the latest remote archive
type SyncStatus string

const (
	SyncStatusLocalOnly     SyncStatus = "LocalOnly"
	SyncStatusNoInformation SyncStatus = "NoInformation"
	SyncStatusUpToDate      SyncStatus = "UpToDate"
	SyncStatusNeedsDownload SyncStatus = "NeedsDownload"
	SyncStatusNeedsUpload   SyncStatus = "NeedsUpload"
)

// GameStatus is a row of `savegem status`
type GameStatus struct {
	Game         string     `json:"game"`
	Status       SyncStatus `json:"status,omitempty"`
	LocalOwner   string     `json:"localOwner,omitempty"`
	DriveOwner   string     `json:"driveOwner,omitempty"`
	DriveCreated string     `json:"driveCreated,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// GameStatusList renders as a table
type GameStatusList []GameStatus

func (l GameStatusList) Headers() []string {
	return []string{"Game", "Status", "Local Owner", "Drive Owner", "Uploaded"}
}

func (l GameStatusList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, s := range l {
		status := string(s.Status)
		if s.Error != "" {
			status = "error: " + s.Error
		}
		rows = append(rows, []string{s.Game, status, dash(s.LocalOwner), dash(s.DriveOwner), dash(s.DriveCreated)})
	}
	return rows
}

func (l GameStatusList) EmptyMessage() string {
	return "No games configured"
}

// ActivityEntry is another machine's presence record
type ActivityEntry struct {
	MachineID   string   `json:"machineId"`
	DisplayName string   `json:"displayName"`
	Games       []string `json:"games"`
	UpdatedTime string   `json:"updatedTime,omitempty"`
}

// ActivityList renders as a table
type ActivityList []ActivityEntry

func (l ActivityList) Headers() []string {
	return []string{"Machine", "Playing", "Updated"}
}

func (l ActivityList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		rows = append(rows, []string{e.DisplayName, strings.Join(e.Games, ", "), dash(e.UpdatedTime)})
	}
	return rows
}

func (l ActivityList) EmptyMessage() string {
	return "Nobody else is playing"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
