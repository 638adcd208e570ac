package scenelog

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestAppendAndRecent(t *testing.T) {
	t.Parallel()

	l := New(10, time.Minute)
	l.Append("a pot is on the stove")
	l.Append("someone is chopping onions")
	l.Append("the pan is smoking")

	got := l.Recent(2)
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Text != "someone is chopping onions" || got[1].Text != "the pan is smoking" {
		t.Fatalf("entries out of order: %q, %q", got[0].Text, got[1].Text)
	}
	if got[0].Time.After(got[1].Time) {
		t.Fatal("timestamps not monotonic")
	}
}

func TestRecentMoreThanAvailable(t *testing.T) {
	t.Parallel()

	l := New(10, 0)
	l.Append("only entry")

	got := l.Recent(5)
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
}

func TestRecentNonPositive(t *testing.T) {
	t.Parallel()

	l := New(10, 0)
	l.Append("entry")

	for _, n := range []int{0, -1, -100} {
		if got := l.Recent(n); len(got) != 0 {
			t.Fatalf("Recent(%d) returned %d entries, want 0", n, len(got))
		}
	}
}

func TestSizeEviction(t *testing.T) {
	t.Parallel()

	l := New(3, 0)
	for i := 0; i < 5; i++ {
		l.Append(fmt.Sprintf("entry %d", i))
	}

	if l.Len() != 3 {
		t.Fatalf("len = %d, want 3", l.Len())
	}
	got := l.Recent(3)
	if got[0].Text != "entry 2" || got[2].Text != "entry 4" {
		t.Fatalf("wrong survivors: %q .. %q", got[0].Text, got[2].Text)
	}
}

func TestDuplicatesAreKept(t *testing.T) {
	t.Parallel()

	// A duplicate datagram re-appends the same text; the log must accept
	// it verbatim rather than deduplicate.
	l := New(10, 0)
	l.Append("the kettle is boiling")
	l.Append("the kettle is boiling")

	got := l.Recent(10)
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2 (no dedup)", len(got))
	}
	if got[0].Text != got[1].Text {
		t.Fatal("duplicate text altered")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	t.Parallel()

	l := New(10, 0)
	l.Append("before")

	snap := l.Recent(10)
	l.Append("after")

	if len(snap) != 1 || snap[0].Text != "before" {
		t.Fatalf("snapshot mutated by later append: %v", snap)
	}
}

func TestConcurrentWriterAndReaders(t *testing.T) {
	t.Parallel()

	l := New(50, 0)
	done := make(chan struct{})

	// Single writer, as in production.
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			l.Append(fmt.Sprintf("analysis %d", i))
		}
	}()

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				for _, e := range l.Recent(20) {
					if e.Text == "" {
						t.Error("reader observed a partially written entry")
						return
					}
				}
			}
		}()
	}

	<-done
	wg.Wait()

	if l.Len() != 50 {
		t.Fatalf("len = %d, want bound of 50", l.Len())
	}
}
