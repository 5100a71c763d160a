package aggregator

import (
	"testing"
	"time"

	"starcast/internal/domain"
	"starcast/pkg/logx"
)

func asset(id string) domain.Asset {
	return domain.Asset{Kind: domain.KindPhoto, FileID: id}
}

func collector() (Sink, chan Batch) {
	ch := make(chan Batch, 8)
	return func(b Batch) { ch <- b }, ch
}

func waitBatch(t *testing.T, ch chan Batch, within time.Duration) Batch {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(within):
		t.Fatal("no batch arrived")
		return Batch{}
	}
}

func assertQuiet(t *testing.T, ch chan Batch, window time.Duration) {
	t.Helper()
	select {
	case b := <-ch:
		t.Fatalf("unexpected batch with %d assets", len(b.Assets))
	case <-time.After(window):
	}
}

func TestStandaloneUploadBypassesDebounce(t *testing.T) {
	t.Parallel()
	sink, ch := collector()
	a := New(time.Hour, sink, logx.Nop())
	defer a.Stop()

	a.Add("", 7, 7, asset("f1"), "cap")

	b := waitBatch(t, ch, time.Second)
	if len(b.Assets) != 1 || b.Assets[0].FileID != "f1" {
		t.Fatalf("unexpected batch: %+v", b)
	}
	if b.OperatorID != 7 || b.Caption != "cap" {
		t.Fatalf("unexpected batch meta: %+v", b)
	}
	if a.PendingCount() != 0 {
		t.Fatalf("PendingCount = %d, want 0", a.PendingCount())
	}
}

func TestAlbumFinalizesOnceInOrder(t *testing.T) {
	t.Parallel()
	sink, ch := collector()
	a := New(30*time.Millisecond, sink, logx.Nop())
	defer a.Stop()

	a.Add("album-1", 7, 7, asset("f1"), "")
	a.Add("album-1", 7, 7, asset("f2"), "the caption")
	a.Add("album-1", 7, 7, asset("f3"), "later caption")

	b := waitBatch(t, ch, time.Second)
	if len(b.Assets) != 3 {
		t.Fatalf("assets = %d, want 3", len(b.Assets))
	}
	for i, want := range []string{"f1", "f2", "f3"} {
		if b.Assets[i].FileID != want {
			t.Fatalf("assets[%d] = %s, want %s", i, b.Assets[i].FileID, want)
		}
	}
	if b.Caption != "the caption" {
		t.Fatalf("Caption = %q, want first non-empty", b.Caption)
	}
	assertQuiet(t, ch, 100*time.Millisecond)
}

func TestDebounceRestartsPerFile(t *testing.T) {
	t.Parallel()
	sink, ch := collector()
	a := New(80*time.Millisecond, sink, logx.Nop())
	defer a.Stop()

	a.Add("album-2", 1, 1, asset("f1"), "")
	time.Sleep(50 * time.Millisecond)
	// Second file lands inside the window; the timer must restart.
	a.Add("album-2", 1, 1, asset("f2"), "")
	assertQuiet(t, ch, 50*time.Millisecond)

	b := waitBatch(t, ch, time.Second)
	if len(b.Assets) != 2 {
		t.Fatalf("assets = %d, want 2", len(b.Assets))
	}
}

func TestConcurrentBatchesStaySeparate(t *testing.T) {
	t.Parallel()
	sink, ch := collector()
	a := New(20*time.Millisecond, sink, logx.Nop())
	defer a.Stop()

	a.Add("album-a", 1, 1, asset("a1"), "")
	a.Add("album-b", 2, 2, asset("b1"), "")
	a.Add("album-a", 1, 1, asset("a2"), "")

	got := map[int64]int{}
	for i := 0; i < 2; i++ {
		b := waitBatch(t, ch, time.Second)
		got[b.OperatorID] = len(b.Assets)
	}
	if got[1] != 2 || got[2] != 1 {
		t.Fatalf("unexpected batch sizes: %v", got)
	}
}

func TestStaleTimerKeepsBurstWhole(t *testing.T) {
	t.Parallel()
	sink, ch := collector()
	a := New(60*time.Millisecond, sink, logx.Nop())
	defer a.Stop()

	a.Add("album-5", 1, 1, asset("f1"), "")
	a.Add("album-5", 1, 1, asset("f2"), "")

	// timer.Stop cannot cancel a firing already in flight, so a timer from
	// before the last restart can still run finalize. Its generation is
	// stale; it must not split the burst.
	a.finalize("album-5", 1)
	if a.PendingCount() != 1 {
		t.Fatal("stale timer finalized the batch")
	}
	assertQuiet(t, ch, 20*time.Millisecond)

	a.Add("album-5", 1, 1, asset("f3"), "")
	b := waitBatch(t, ch, time.Second)
	if len(b.Assets) != 3 {
		t.Fatalf("assets = %d, want one whole batch of 3", len(b.Assets))
	}
	assertQuiet(t, ch, 150*time.Millisecond)
}

func TestStopDropsPending(t *testing.T) {
	t.Parallel()
	sink, ch := collector()
	a := New(20*time.Millisecond, sink, logx.Nop())

	a.Add("album-3", 1, 1, asset("f1"), "")
	a.Stop()

	if a.PendingCount() != 0 {
		t.Fatalf("PendingCount = %d after Stop", a.PendingCount())
	}
	assertQuiet(t, ch, 60*time.Millisecond)

	// Adds after Stop are ignored.
	a.Add("album-4", 1, 1, asset("f2"), "")
	assertQuiet(t, ch, 60*time.Millisecond)
}
