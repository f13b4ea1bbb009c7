// Package activity maintains the shared document that records which
// machines are currently playing which games.
package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/dl-alexandre/savegem/internal/logging"
	"github.com/dl-alexandre/savegem/internal/remote"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/jonboulle/clockwork"
)

// Entry is one machine's record in the activity document
type Entry struct {
	DisplayName string   `json:"displayName"`
	Games       []string `json:"games"`
	UpdatedTime string   `json:"updatedTime,omitempty"`
}

// Document maps machine IDs to their entries
type Document map[string]Entry

// Options configures a Directory
type Options struct {
	FileID      string
	MachineID   string
	DisplayName string
	// StaleAfter hides and prunes entries not updated within the duration. Zero disables it.
	StaleAfter time.Duration
	Clock      clockwork.Clock
	Logger     logging.Logger
}

// Directory reads and writes the activity document. Writes are
// read-modify-write without any version check, so concurrent writers can
// overwrite each other and the last one wins.
type Directory struct {
	store  remote.Store
	opts   Options
	clock  clockwork.Clock
	logger logging.Logger
}

// NewDirectory creates a directory backed by the remote file opts.FileID
func NewDirectory(store remote.Store, opts Options) *Directory {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Directory{store: store, opts: opts, clock: clock, logger: logger}
}

// Refresh returns the other machines that are playing currentGame
func (d *Directory) Refresh(ctx context.Context, currentGame string) ([]types.ActivityEntry, error) {
	doc, err := d.load(ctx)
	if err != nil {
		return nil, err
	}

	now := d.clock.Now()
	var out []types.ActivityEntry
	for machineID, entry := range doc {
		if machineID == d.opts.MachineID || d.stale(entry, now) {
			continue
		}
		if !contains(entry.Games, currentGame) {
			continue
		}
		out = append(out, types.ActivityEntry{
			MachineID:   machineID,
			DisplayName: entry.DisplayName,
			Games:       entry.Games,
			UpdatedTime: entry.UpdatedTime,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].MachineID < out[j].MachineID
	})
	return out, nil
}

// Update records gameNames as what this machine is playing. An empty list
// removes the machine's entry. The document is only written when it changes.
func (d *Directory) Update(ctx context.Context, gameNames []string) error {
	doc, err := d.load(ctx)
	if err != nil {
		return err
	}

	before := cloneDocument(doc)
	now := d.clock.Now()

	if d.opts.StaleAfter > 0 {
		for machineID, entry := range doc {
			if machineID != d.opts.MachineID && d.stale(entry, now) {
				delete(doc, machineID)
			}
		}
	}

	if len(gameNames) == 0 {
		delete(doc, d.opts.MachineID)
	} else {
		games := append([]string(nil), gameNames...)
		sort.Strings(games)
		entry := Entry{
			DisplayName: d.opts.DisplayName,
			Games:       games,
			UpdatedTime: now.UTC().Format(time.RFC3339),
		}
		// without staleness the timestamp is informational, keep it stable
		if prev, ok := doc[d.opts.MachineID]; ok && d.opts.StaleAfter == 0 && sameEntry(prev, entry) {
			entry.UpdatedTime = prev.UpdatedTime
		}
		doc[d.opts.MachineID] = entry
	}

	if reflect.DeepEqual(before, doc) {
		d.logger.Debug("Activity unchanged", logging.F("games", gameNames))
		return nil
	}
	return d.save(ctx, doc)
}

func (d *Directory) load(ctx context.Context) (Document, error) {
	var buf bytes.Buffer
	if err := d.store.Download(ctx, d.opts.FileID, &buf, nil); err != nil {
		return nil, fmt.Errorf("failed to download activity document: %w", err)
	}

	doc := Document{}
	if len(bytes.TrimSpace(buf.Bytes())) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse activity document: %w", err)
	}
	return doc, nil
}

func (d *Directory) save(ctx context.Context, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal activity document: %w", err)
	}
	if _, err := d.store.UpdateContent(ctx, d.opts.FileID, bytes.NewReader(data), nil); err != nil {
		return fmt.Errorf("failed to upload activity document: %w", err)
	}
	d.logger.Info("Activity updated",
		logging.F("machineId", d.opts.MachineID),
		logging.F("entries", len(doc)),
	)
	return nil
}

func (d *Directory) stale(entry Entry, now time.Time) bool {
	if d.opts.StaleAfter <= 0 {
		return false
	}
	updated, err := time.Parse(time.RFC3339, entry.UpdatedTime)
	if err != nil {
		return true
	}
	return now.Sub(updated) > d.opts.StaleAfter
}

func sameEntry(a, b Entry) bool {
	return a.DisplayName == b.DisplayName && reflect.DeepEqual(a.Games, b.Games)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func cloneDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		if v.Games != nil {
			v.Games = append(make([]string, 0, len(v.Games)), v.Games...)
		}
		out[k] = v
	}
	return out
}
