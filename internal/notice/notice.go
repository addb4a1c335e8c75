// Package notice holds the transient messages shown at the top of a page.
package notice

import "time"

// Level is the visual kind of a notice.
type Level string

const (
	LevelLoading Level = "loading"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// DefaultDuration is how long success and error notices stay visible.
const DefaultDuration = 5 * time.Second

// Notice is one message. A zero Duration means it stays until destroyed.
type Notice struct {
	Key      string
	Level    Level
	Text     string
	Duration time.Duration
}

// DurationMillis is the auto-dismiss delay handed to the page script.
func (n Notice) DurationMillis() int64 {
	return n.Duration.Milliseconds()
}

// Board is an ordered set of notices. Showing a notice whose key is already
// on the board replaces it in place, so keyed notices never stack.
// A Board is not safe for concurrent use; each response builds its own.
type Board struct {
	items []Notice
}

// Show adds n, replacing any notice with the same non-empty key.
func (b *Board) Show(n Notice) {
	if n.Key != "" {
		for i := range b.items {
			if b.items[i].Key == n.Key {
				b.items[i] = n
				return
			}
		}
	}
	b.items = append(b.items, n)
}

// Loading shows a notice that stays until destroyed.
func (b *Board) Loading(key, text string) {
	b.Show(Notice{Key: key, Level: LevelLoading, Text: text})
}

func (b *Board) Success(text string) {
	b.Show(Notice{Level: LevelSuccess, Text: text, Duration: DefaultDuration})
}

func (b *Board) Error(text string) {
	b.Show(Notice{Level: LevelError, Text: text, Duration: DefaultDuration})
}

// Destroy removes the notice with the given key, if any.
func (b *Board) Destroy(key string) {
	out := b.items[:0]
	for _, n := range b.items {
		if n.Key != key {
			out = append(out, n)
		}
	}
	b.items = out
}

// Notices returns the notices in display order.
func (b *Board) Notices() []Notice {
	out := make([]Notice, len(b.items))
	copy(out, b.items)
	return out
}

// Has reports whether a notice with key is on the board.
func (b *Board) Has(key string) bool {
	for _, n := range b.items {
		if n.Key == key {
			return true
		}
	}
	return false
}
