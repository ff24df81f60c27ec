// Package logbook holds the user-visible, append-only record of a BLE session.
//
// Entries are appended by the session loop only, so their order matches the
// causal order of the events that produced them. Observers subscribe to a live
// feed; a slow observer loses its oldest unread entries rather than stalling
// the session.
package logbook

import (
	"sync"
	"time"
)

// Entry is a single immutable log record.
type Entry struct {
	ID            uint64 // monotonic, starting at 1
	Time          time.Time
	Text          string
	Subtext       string
	IsError       bool
	IsHighlighted bool
}

// Sink receives entries produced by the session. Append returns the entry as
// stored, with ID and Time assigned.
type Sink interface {
	Append(e Entry) Entry
}

// Info builds a progress entry.
func Info(text, subtext string) Entry {
	return Entry{Text: text, Subtext: subtext}
}

// Error builds an error entry.
func Error(text, subtext string) Entry {
	return Entry{Text: text, Subtext: subtext, IsError: true}
}

// Highlight builds a result entry.
func Highlight(text, subtext string) Entry {
	return Entry{Text: text, Subtext: subtext, IsHighlighted: true}
}

// Book is the in-memory Sink: an append-only sequence with live observers.
type Book struct {
	mu        sync.RWMutex
	entries   []Entry
	nextID    uint64
	now       func() time.Time
	observers map[*RingChannel[Entry]]struct{}
}

// NewBook creates an empty Book.
func NewBook() *Book {
	return &Book{
		nextID:    1,
		now:       time.Now,
		observers: make(map[*RingChannel[Entry]]struct{}),
	}
}

// Append stores e with the next ID and the current time and forwards it to observers.
func (b *Book) Append(e Entry) Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	e.ID = b.nextID
	b.nextID++
	if e.Time.IsZero() {
		e.Time = b.now()
	}
	b.entries = append(b.entries, e)

	for rc := range b.observers {
		rc.ForceSend(e)
	}
	return e
}

// Entries returns a copy of all entries in append order.
func (b *Book) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of entries.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Errors returns only the error entries.
func (b *Book) Errors() []Entry {
	return b.filter(func(e Entry) bool { return e.IsError })
}

// Highlighted returns only the highlighted entries.
func (b *Book) Highlighted() []Entry {
	return b.filter(func(e Entry) bool { return e.IsHighlighted })
}

func (b *Book) filter(keep func(Entry) bool) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Entry
	for _, e := range b.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Subscribe returns a live feed of entries appended from now on, buffered up
// to capacity. The returned cancel function detaches and closes the feed.
func (b *Book) Subscribe(capacity int) (*RingChannel[Entry], func()) {
	rc := NewRingChannel[Entry](capacity)

	b.mu.Lock()
	b.observers[rc] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return rc, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.observers, rc)
			b.mu.Unlock()
			rc.Close()
		})
	}
}
