// Package buffer holds the bounded, ordered list of display items produced by
// a live session and fans changes out to subscribers. It is the single source
// of truth for what a client should be rendering.
package buffer

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ItemType classifies a display item for rendering.
type ItemType string

const (
	ItemText    ItemType = "text"
	ItemMath    ItemType = "math"
	ItemCode    ItemType = "code"
	ItemDiagram ItemType = "diagram"
	ItemImage   ItemType = "image"
)

// WordTiming maps one word to its position in the source audio.
type WordTiming struct {
	Word    string `json:"word"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
}

// MathFragment is a rendered math region inside an item's content.
type MathFragment struct {
	LaTeX      string `json:"latex"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// DisplayItem is one renderable unit in the session timeline.
type DisplayItem struct {
	ID            string         `json:"id"`
	Type          ItemType       `json:"type"`
	Content       string         `json:"content"`
	Timestamp     int64          `json:"timestamp"`
	Speaker       string         `json:"speaker,omitempty"`
	Confidence    float64        `json:"confidence,omitempty"`
	WordTimings   []WordTiming   `json:"word_timings,omitempty"`
	MathFragments []MathFragment `json:"math_fragments,omitempty"`
}

// Statistics summarizes buffer contents for monitoring surfaces.
type Statistics struct {
	TotalItems          int              `json:"total_items"`
	TypeDistribution    map[ItemType]int `json:"type_distribution"`
	SpeakerDistribution map[string]int   `json:"speaker_distribution"`
	OldestTimestamp     int64            `json:"oldest_timestamp"`
	NewestTimestamp     int64            `json:"newest_timestamp"`
	AverageItemAge      time.Duration    `json:"average_item_age"`
}

type subscriber struct {
	id int
	fn func([]DisplayItem)
}

type changeSubscriber struct {
	id int
	fn func(added []DisplayItem)
}

// Buffer is a bounded FIFO of display items. All methods are safe for
// concurrent use; subscriber callbacks run synchronously on the mutating
// goroutine, so they must not call back into the buffer.
type Buffer struct {
	mu      sync.Mutex
	items   []DisplayItem
	maxSize int
	lastTS  int64

	nextSub     int
	subscribers []subscriber
	changeSubs  []changeSubscriber

	now func() time.Time
}

// New constructs a buffer retaining at most maxSize items. Sizes below one
// fall back to a sane default.
func New(maxSize int) *Buffer {
	if maxSize < 1 {
		maxSize = 500
	}
	return &Buffer{maxSize: maxSize, now: time.Now}
}

// AddItem appends an item, assigning an ID and a monotonic timestamp when the
// caller left them empty, evicting from the front past capacity, and notifying
// subscribers. The stored item is returned.
func (b *Buffer) AddItem(item DisplayItem) DisplayItem {
	b.mu.Lock()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Type == "" {
		item.Type = ItemText
	}
	ts := item.Timestamp
	if ts == 0 {
		ts = b.now().UnixMilli()
	}
	// Timestamps never go backwards, even when the clock does.
	if ts <= b.lastTS {
		ts = b.lastTS + 1
	}
	item.Timestamp = ts
	b.lastTS = ts

	b.items = append(b.items, item)
	for len(b.items) > b.maxSize {
		b.items = b.items[1:]
	}
	b.notifyLocked([]DisplayItem{item})
	b.mu.Unlock()
	return item
}

// notifyLocked snapshots the list and invokes subscribers while still holding
// the lock, so deliveries observe buffer states in mutation order.
func (b *Buffer) notifyLocked(added []DisplayItem) {
	if len(b.subscribers) == 0 && len(b.changeSubs) == 0 {
		return
	}
	snapshot := b.copyLocked()
	for _, s := range b.subscribers {
		s.fn(snapshot)
	}
	for _, s := range b.changeSubs {
		s.fn(added)
	}
}

func (b *Buffer) copyLocked() []DisplayItem {
	out := make([]DisplayItem, len(b.items))
	copy(out, b.items)
	return out
}

// Subscribe registers fn to receive the full item list after every mutation.
// The returned function unsubscribes and is idempotent.
func (b *Buffer) Subscribe(fn func([]DisplayItem)) func() {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subscribers = append(b.subscribers, subscriber{id: id, fn: fn})
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subscribers {
			if s.id == id {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				return
			}
		}
	}
}

// SubscribeChanges registers fn to receive only the items added by each
// mutation, for consumers that stream deltas instead of repainting.
func (b *Buffer) SubscribeChanges(fn func(added []DisplayItem)) func() {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.changeSubs = append(b.changeSubs, changeSubscriber{id: id, fn: fn})
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.changeSubs {
			if s.id == id {
				b.changeSubs = append(b.changeSubs[:i], b.changeSubs[i+1:]...)
				return
			}
		}
	}
}

// Items returns a defensive copy of the current contents in FIFO order.
func (b *Buffer) Items() []DisplayItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copyLocked()
}

// Len reports the current item count.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Clear drops all items and notifies subscribers with the empty state.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.items = nil
	b.notifyLocked(nil)
	b.mu.Unlock()
}

// Search returns items whose content contains query, case-insensitively.
func (b *Buffer) Search(query string) []DisplayItem {
	q := strings.ToLower(query)
	return b.filter(func(it DisplayItem) bool {
		return strings.Contains(strings.ToLower(it.Content), q)
	})
}

// SearchByType returns items of the given type.
func (b *Buffer) SearchByType(t ItemType) []DisplayItem {
	return b.filter(func(it DisplayItem) bool { return it.Type == t })
}

// SearchBySpeaker returns items attributed to the given speaker.
func (b *Buffer) SearchBySpeaker(speaker string) []DisplayItem {
	return b.filter(func(it DisplayItem) bool { return it.Speaker == speaker })
}

// SearchByTimeRange returns items with fromMs <= Timestamp <= toMs.
func (b *Buffer) SearchByTimeRange(fromMs, toMs int64) []DisplayItem {
	return b.filter(func(it DisplayItem) bool {
		return it.Timestamp >= fromMs && it.Timestamp <= toMs
	})
}

func (b *Buffer) filter(keep func(DisplayItem) bool) []DisplayItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []DisplayItem
	for _, it := range b.items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// Statistics computes distributions and age over the current contents.
func (b *Buffer) Statistics() Statistics {
	b.mu.Lock()
	defer b.mu.Unlock()
	stats := Statistics{
		TotalItems:          len(b.items),
		TypeDistribution:    make(map[ItemType]int),
		SpeakerDistribution: make(map[string]int),
	}
	if len(b.items) == 0 {
		return stats
	}
	stats.OldestTimestamp = b.items[0].Timestamp
	stats.NewestTimestamp = b.items[len(b.items)-1].Timestamp
	nowMs := b.now().UnixMilli()
	var ageSum int64
	for _, it := range b.items {
		stats.TypeDistribution[it.Type]++
		if it.Speaker != "" {
			stats.SpeakerDistribution[it.Speaker]++
		}
		ageSum += nowMs - it.Timestamp
	}
	stats.AverageItemAge = time.Duration(ageSum/int64(len(b.items))) * time.Millisecond
	return stats
}

// ExportJSON serializes the current contents.
func (b *Buffer) ExportJSON() ([]byte, error) {
	b.mu.Lock()
	items := b.copyLocked()
	b.mu.Unlock()
	return json.MarshalIndent(items, "", "  ")
}

// ImportJSON replaces the contents with previously exported items, trimming
// to capacity from the front. A parse failure leaves the buffer untouched.
func (b *Buffer) ImportJSON(data []byte) error {
	var items []DisplayItem
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("import display items: %w", err)
	}
	b.mu.Lock()
	if len(items) > b.maxSize {
		items = items[len(items)-b.maxSize:]
	}
	b.items = items
	b.lastTS = 0
	if len(items) > 0 {
		b.lastTS = items[len(items)-1].Timestamp
	}
	b.notifyLocked(items)
	b.mu.Unlock()
	return nil
}
