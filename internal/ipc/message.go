// Package ipc is the loopback command protocol between the UI process and
// the background daemons. A message is one JSON object sent over a fresh TCP
// connection that is closed right after writing.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dl-alexandre/savegem/internal/utils"
)

// Command identifies what a message asks the receiver to do
type Command string

const (
	// CommandRefreshUI asks the UI to re-derive the aspect named by Event
	CommandRefreshUI Command = "RefreshUI"
	// CommandStateChanged tells a daemon to re-read the application state
	CommandStateChanged Command = "StateChanged"
	// CommandGUIInitialized tells the change watcher the UI is ready
	CommandGUIInitialized Command = "GUIInitialized"
)

// RefreshEvent names the part of the UI a RefreshUI message invalidates
type RefreshEvent string

const (
	RefreshSyncStatus RefreshEvent = "sync_status"
	RefreshGames      RefreshEvent = "games"
	RefreshActivity   RefreshEvent = "activity"
	RefreshState      RefreshEvent = "state"
)

var (
	ErrMissingCommand  = errors.New("message has no command")
	ErrMessageTooLarge = fmt.Errorf("message exceeds %d bytes", utils.MaxMessageBytes)
)

// Message is the wire form of every command
type Message struct {
	Command Command      `json:"command"`
	Event   RefreshEvent `json:"event,omitempty"`
}

func RefreshUI(event RefreshEvent) Message {
	return Message{Command: CommandRefreshUI, Event: event}
}

func StateChanged() Message {
	return Message{Command: CommandStateChanged}
}

func GUIInitialized() Message {
	return Message{Command: CommandGUIInitialized}
}

// Encode serializes m, rejecting messages that would not fit in one read
func Encode(m Message) ([]byte, error) {
	if m.Command == "" {
		return nil, ErrMissingCommand
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	if len(data) > utils.MaxMessageBytes {
		return nil, ErrMessageTooLarge
	}
	return data, nil
}

// Decode parses a received message. Unknown fields are ignored.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("invalid message: %w", err)
	}
	if m.Command == "" {
		return Message{}, ErrMissingCommand
	}
	return m, nil
}
