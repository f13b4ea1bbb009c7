// Package events delivers progress, error and completion notifications from
// long-running transfers to any number of listeners.
package events

import (
	"math"
	"sync"
)

// Type discriminates Event values
type Type string

const (
	TypeProgress Type = "progress"
	TypeError    Type = "error"
	TypeDone     Type = "done"
)

// Kind names a failure. The empty kind on a Done event means success.
type Kind string

const (
	KindSavesDirectoryMissing     Kind = "SavesDirectoryMissing"
	KindDriveMetadataMissing      Kind = "DriveMetadataMissing"
	KindErrorUploadingToDrive     Kind = "ErrorUploadingToDrive"
	KindErrorDownloadingFromDrive Kind = "ErrorDownloadingFromDrive"
	KindErrorPreparingSaves       Kind = "ErrorPreparingSaves"
)

// Event is a single notification. Percent is set for TypeProgress, Kind for
// TypeError and TypeDone.
type Event struct {
	Type    Type `json:"type"`
	Percent int  `json:"percent,omitempty"`
	Kind    Kind `json:"kind,omitempty"`
}

// Success reports whether a Done event finished without error
func (e Event) Success() bool {
	return e.Type == TypeDone && e.Kind == ""
}

func Progress(percent int) Event { return Event{Type: TypeProgress, Percent: percent} }
func Failure(kind Kind) Event    { return Event{Type: TypeError, Kind: kind} }
func Done(kind Kind) Event       { return Event{Type: TypeDone, Kind: kind} }

// Handler receives events
type Handler func(Event)

// Channel fans events out to subscribers. Handlers run synchronously on the
// sender's goroutine in subscription order.
type Channel struct {
	mu          sync.Mutex
	subscribers []Handler

	stages int
	prior  float64
}

// NewChannel creates a channel with no subscribers
func NewChannel() *Channel {
	return &Channel{}
}

// Subscribe registers fn for every future event
func (c *Channel) Subscribe(fn Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// Send delivers e to every subscriber
func (c *Channel) Send(e Event) {
	c.mu.Lock()
	subs := append([]Handler(nil), c.subscribers...)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}

// Error sends an error event immediately followed by a failed Done
func (c *Channel) Error(kind Kind) {
	c.Send(Failure(kind))
	c.Send(Done(kind))
}

// Finish sends a successful Done
func (c *Channel) Finish() {
	c.Send(Done(""))
}

// SetStages resets progress for an operation of n stages and sends 0%
func (c *Channel) SetStages(n int) {
	if n < 1 {
		n = 1
	}
	c.mu.Lock()
	c.stages = n
	c.prior = 0
	c.mu.Unlock()

	c.Send(Progress(0))
}

// CompleteStage reports fraction of the current stage as done. Only a
// fraction of 1 moves on to the next stage; smaller fractions are reported
// without being accumulated.
func (c *Channel) CompleteStage(fraction float64) {
	c.mu.Lock()
	stages := c.stages
	if stages < 1 {
		stages = 1
	}
	step := fraction / float64(stages)
	percent := int(math.Round(100 * (c.prior + step)))
	if fraction == 1 {
		c.prior += step
	}
	c.mu.Unlock()

	c.Send(Progress(percent))
}

// StageProgress adapts CompleteStage to a byte counter. Unknown totals report nothing.
func (c *Channel) StageProgress() func(current, total int64) {
	return func(current, total int64) {
		if total <= 0 || current >= total {
			return
		}
		c.CompleteStage(float64(current) / float64(total))
	}
}
