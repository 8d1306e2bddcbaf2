package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultCapacity is the number of tokens kept in the feed history.
const DefaultCapacity = 50

// ErrMissingMint is returned for frames without a mint address.
var ErrMissingMint = errors.New("token event missing mint")

// TokenEvent is one token-creation notification pushed by the feed.
type TokenEvent struct {
	Mint   string `json:"mint"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	URI    string `json:"uri"`
}

// ParseTokenEvent decodes a single inbound frame.
func ParseTokenEvent(data []byte) (TokenEvent, error) {
	var ev TokenEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return TokenEvent{}, fmt.Errorf("unmarshal token event: %w", err)
	}
	if ev.Mint == "" {
		return TokenEvent{}, ErrMissingMint
	}
	return ev, nil
}

// Entry is a buffered token event plus its enrichment.
type Entry struct {
	TokenEvent
	ImageURL   string // empty until enrichment resolves
	ReceivedAt time.Time
	// Generation is assigned at insertion and never reused, so a late
	// enrichment result can tell its entry apart from a newer one with the
	// same mint.
	Generation uint64
}

// Buffer holds the most recent entries, newest first.
// It is owned by the feed dispatcher and is not safe for concurrent use.
type Buffer struct {
	capacity int
	entries  []Entry
	nextGen  uint64
}

// NewBuffer creates a buffer bounded at capacity (DefaultCapacity if <= 0).
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		entries:  make([]Entry, 0, capacity+1),
	}
}

// Push inserts ev at the head, evicting the oldest entry past capacity.
// Returns the generation assigned to the new entry.
func (b *Buffer) Push(ev TokenEvent, receivedAt time.Time) uint64 {
	b.nextGen++
	b.entries = append(b.entries, Entry{})
	copy(b.entries[1:], b.entries)
	b.entries[0] = Entry{
		TokenEvent: ev,
		ReceivedAt: receivedAt,
		Generation: b.nextGen,
	}
	if len(b.entries) > b.capacity {
		b.entries[b.capacity] = Entry{}
		b.entries = b.entries[:b.capacity]
	}
	return b.nextGen
}

// ApplyImage fills the image of the entry identified by mint and generation.
// Returns false when that entry has been evicted, already has an image, or
// url is empty; the buffer is left untouched in that case.
func (b *Buffer) ApplyImage(mint string, generation uint64, url string) bool {
	if url == "" {
		return false
	}
	for i := range b.entries {
		e := &b.entries[i]
		if e.Generation != generation || e.Mint != mint {
			continue
		}
		if e.ImageURL != "" {
			return false
		}
		e.ImageURL = url
		return true
	}
	return false
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	return len(b.entries)
}

// Entries returns a copy of the buffer, newest first.
func (b *Buffer) Entries() []Entry {
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}
