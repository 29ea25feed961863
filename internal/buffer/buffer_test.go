package buffer

import (
	"fmt"
	"testing"
)

func TestAddItem_AssignsIDAndMonotonicTimestamp(t *testing.T) {
	b := New(10)
	first := b.AddItem(DisplayItem{Content: "a"})
	second := b.AddItem(DisplayItem{Content: "b"})
	if first.ID == "" || second.ID == "" || first.ID == second.ID {
		t.Fatalf("expected distinct generated ids, got %q and %q", first.ID, second.ID)
	}
	if second.Timestamp <= first.Timestamp {
		t.Fatalf("timestamps must be strictly increasing: %d then %d", first.Timestamp, second.Timestamp)
	}
	kept := b.AddItem(DisplayItem{ID: "given", Content: "c"})
	if kept.ID != "given" {
		t.Fatalf("caller-provided id was replaced: %q", kept.ID)
	}
}

func TestAddItem_EvictsOldestPastCapacity(t *testing.T) {
	const maxSize = 5
	b := New(maxSize)
	for i := 0; i < 20; i++ {
		b.AddItem(DisplayItem{Content: fmt.Sprintf("item-%d", i)})
	}
	items := b.Items()
	if len(items) != maxSize {
		t.Fatalf("expected %d items, got %d", maxSize, len(items))
	}
	for i, it := range items {
		want := fmt.Sprintf("item-%d", 15+i)
		if it.Content != want {
			t.Fatalf("item %d: got %q want %q (FIFO order broken)", i, it.Content, want)
		}
	}
}

func TestSubscribe_ExactCallbackCounts(t *testing.T) {
	b := New(10)
	calls := 0
	var lastLen int
	unsub := b.Subscribe(func(items []DisplayItem) {
		calls++
		lastLen = len(items)
	})

	b.AddItem(DisplayItem{Content: "a"})
	b.AddItem(DisplayItem{Content: "b"})
	if calls != 2 || lastLen != 2 {
		t.Fatalf("expected 2 calls with 2 items, got calls=%d len=%d", calls, lastLen)
	}

	unsub()
	unsub() // idempotent
	b.AddItem(DisplayItem{Content: "c"})
	if calls != 2 {
		t.Fatalf("expected no calls after unsubscribe, got %d", calls)
	}
}

func TestSubscribeChanges_DeliversOnlyAdded(t *testing.T) {
	b := New(10)
	b.AddItem(DisplayItem{Content: "before"})
	var added []string
	b.SubscribeChanges(func(items []DisplayItem) {
		for _, it := range items {
			added = append(added, it.Content)
		}
	})
	b.AddItem(DisplayItem{Content: "after"})
	if len(added) != 1 || added[0] != "after" {
		t.Fatalf("expected only the new item, got %v", added)
	}
}

func TestClear_NotifiesEmpty(t *testing.T) {
	b := New(10)
	b.AddItem(DisplayItem{Content: "a"})
	var lastLen = -1
	b.Subscribe(func(items []DisplayItem) { lastLen = len(items) })
	b.Clear()
	if b.Len() != 0 || lastLen != 0 {
		t.Fatalf("expected empty notification, len=%d lastLen=%d", b.Len(), lastLen)
	}
}

func TestSearch(t *testing.T) {
	b := New(10)
	b.AddItem(DisplayItem{Content: "The Quadratic Formula", Type: ItemText, Speaker: "teacher"})
	b.AddItem(DisplayItem{Content: "x = 5", Type: ItemMath, Speaker: "teacher"})
	b.AddItem(DisplayItem{Content: "why quadratic?", Type: ItemText, Speaker: "student"})

	if got := b.Search("QUADRATIC"); len(got) != 2 {
		t.Fatalf("case-insensitive search: expected 2, got %d", len(got))
	}
	if got := b.SearchByType(ItemMath); len(got) != 1 || got[0].Content != "x = 5" {
		t.Fatalf("unexpected type search result: %+v", got)
	}
	if got := b.SearchBySpeaker("student"); len(got) != 1 {
		t.Fatalf("unexpected speaker search result: %+v", got)
	}
}

func TestSearchByTimeRange(t *testing.T) {
	b := New(10)
	b.AddItem(DisplayItem{Content: "a", Timestamp: 100})
	b.AddItem(DisplayItem{Content: "b", Timestamp: 200})
	b.AddItem(DisplayItem{Content: "c", Timestamp: 300})
	got := b.SearchByTimeRange(150, 300)
	if len(got) != 2 || got[0].Content != "b" || got[1].Content != "c" {
		t.Fatalf("unexpected range result: %+v", got)
	}
}

func TestStatistics(t *testing.T) {
	b := New(10)
	b.AddItem(DisplayItem{Content: "a", Type: ItemText, Speaker: "teacher"})
	b.AddItem(DisplayItem{Content: "b", Type: ItemMath, Speaker: "teacher"})
	b.AddItem(DisplayItem{Content: "c", Type: ItemText, Speaker: "student"})

	stats := b.Statistics()
	if stats.TotalItems != 3 {
		t.Fatalf("total = %d", stats.TotalItems)
	}
	if stats.TypeDistribution[ItemText] != 2 || stats.TypeDistribution[ItemMath] != 1 {
		t.Fatalf("unexpected type distribution: %+v", stats.TypeDistribution)
	}
	if stats.SpeakerDistribution["teacher"] != 2 {
		t.Fatalf("unexpected speaker distribution: %+v", stats.SpeakerDistribution)
	}
	if stats.NewestTimestamp <= stats.OldestTimestamp {
		t.Fatalf("timestamps not ordered: %+v", stats)
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	b := New(10)
	b.AddItem(DisplayItem{Content: "a", Type: ItemText, Speaker: "teacher"})
	b.AddItem(DisplayItem{Content: "$x=5$", Type: ItemMath, MathFragments: []MathFragment{{LaTeX: "x=5", EndIndex: 5}}})

	data, err := b.ExportJSON()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	restored := New(10)
	if err := restored.ImportJSON(data); err != nil {
		t.Fatalf("import: %v", err)
	}
	orig, back := b.Items(), restored.Items()
	if len(back) != len(orig) {
		t.Fatalf("count mismatch: %d vs %d", len(back), len(orig))
	}
	for i := range orig {
		if back[i].ID != orig[i].ID || back[i].Content != orig[i].Content || back[i].Timestamp != orig[i].Timestamp {
			t.Fatalf("item %d differs: %+v vs %+v", i, back[i], orig[i])
		}
	}
}

func TestImportJSON_FailureLeavesStateUntouched(t *testing.T) {
	b := New(10)
	b.AddItem(DisplayItem{Content: "keep me"})
	if err := b.ImportJSON([]byte("not json")); err == nil {
		t.Fatalf("expected parse error")
	}
	items := b.Items()
	if len(items) != 1 || items[0].Content != "keep me" {
		t.Fatalf("state was modified on failed import: %+v", items)
	}
}

func TestImportJSON_TrimsToCapacity(t *testing.T) {
	big := New(10)
	for i := 0; i < 8; i++ {
		big.AddItem(DisplayItem{Content: fmt.Sprintf("item-%d", i)})
	}
	data, err := big.ExportJSON()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	small := New(3)
	if err := small.ImportJSON(data); err != nil {
		t.Fatalf("import: %v", err)
	}
	items := small.Items()
	if len(items) != 3 || items[0].Content != "item-5" {
		t.Fatalf("expected most recent 3 retained, got %+v", items)
	}
}
