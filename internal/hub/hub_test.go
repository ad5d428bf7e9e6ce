package hub

import (
	"fmt"
	"sync"
	"testing"
)

func TestPublishAndSubscribe(t *testing.T) {
	h := New()
	h.Open("r1")
	ch, unsub, ok := h.Subscribe("r1")
	if !ok {
		t.Fatal("expected subscribe to known run to succeed")
	}
	defer unsub()

	h.Publish("r1", "hello")
	h.Publish("r1", "world")

	if got := <-ch; got != "hello" {
		t.Fatalf("expected hello, got %q", got)
	}
	if got := <-ch; got != "world" {
		t.Fatalf("expected world, got %q", got)
	}
}

func TestSubscribeUnknownRun(t *testing.T) {
	h := New()
	ch, unsub, ok := h.Subscribe("missing")
	unsub()
	if ok || ch != nil {
		t.Fatal("expected unknown run to be rejected")
	}
	if h.Len() != 0 {
		t.Fatalf("subscribe must not create runs, have %d", h.Len())
	}
}

func TestPublishUnknownRunIsNoop(t *testing.T) {
	h := New()
	h.Publish("missing", "x")
	if h.Len() != 0 {
		t.Fatalf("publish must not create runs, have %d", h.Len())
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	h := New()
	h.Open("r1")
	h.Publish("r1", "a")
	h.Open("r1")

	h.Close("r1")
	ch, _, _ := h.Subscribe("r1")
	var frames []string
	for f := range ch {
		frames = append(frames, f)
	}
	if len(frames) != 1 {
		t.Fatalf("expected reopen to keep buffer, got %v", frames)
	}
}

func TestCatchupOnSubscribe(t *testing.T) {
	h := New()
	h.Open("r1")

	h.Publish("r1", "frame1")
	h.Publish("r1", "frame2")
	h.Publish("r1", "frame3")

	ch, unsub, _ := h.Subscribe("r1")
	defer unsub()

	for _, want := range []string{"frame1", "frame2", "frame3"} {
		if got := <-ch; got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}

func TestCloseRun(t *testing.T) {
	h := New()
	h.Open("r1")
	ch, unsub, _ := h.Subscribe("r1")

	h.Publish("r1", "before")
	h.Close("r1")

	// Drain buffered frame, then channel should be closed.
	<-ch
	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after run Close")
	}
	unsub() // must not panic after Close
}

func TestSubscribeAfterClose(t *testing.T) {
	h := New()
	h.Open("r1")

	h.Publish("r1", "a")
	h.Publish("r1", "b")
	h.Close("r1")

	ch, _, ok := h.Subscribe("r1")
	if !ok {
		t.Fatal("expected closed run to remain subscribable until removed")
	}
	var frames []string
	for f := range ch {
		frames = append(frames, f)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 catchup frames, got %d", len(frames))
	}
}

func TestIsActive(t *testing.T) {
	h := New()

	if h.IsActive("r1") {
		t.Fatal("expected inactive for unknown run")
	}

	h.Open("r1")
	if !h.IsActive("r1") {
		t.Fatal("expected active after open")
	}

	h.Close("r1")
	if h.IsActive("r1") {
		t.Fatal("expected inactive after close")
	}
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	h := New()
	h.Open("r1")
	h.Publish("r1", "before")
	h.Close("r1")
	h.Publish("r1", "after")

	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.runs["r1"].buf); n != 1 {
		t.Fatalf("expected 1 buffered frame, got %d", n)
	}
}

func TestBufferEviction(t *testing.T) {
	h := NewWithCap(16)
	h.Open("r1")
	for i := 0; i < 40; i++ {
		h.Publish("r1", "frame")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.runs["r1"].buf); n != 16 {
		t.Fatalf("expected buffer capped at 16, got %d", n)
	}
}

func TestBufferEvictionOrdering(t *testing.T) {
	h := New()
	h.Open("r1")
	total := defaultBufferCap + 50
	for i := 0; i < total; i++ {
		h.Publish("r1", fmt.Sprintf("frame-%d", i))
	}

	// Subscribe should get the last defaultBufferCap frames in order.
	ch, unsub, _ := h.Subscribe("r1")
	defer unsub()

	h.Close("r1")

	var got []string
	for f := range ch {
		got = append(got, f)
	}

	if len(got) != defaultBufferCap {
		t.Fatalf("expected %d frames, got %d", defaultBufferCap, len(got))
	}
	if want := fmt.Sprintf("frame-%d", total-defaultBufferCap); got[0] != want {
		t.Fatalf("expected first frame %q, got %q", want, got[0])
	}
	if want := fmt.Sprintf("frame-%d", total-1); got[len(got)-1] != want {
		t.Fatalf("expected last frame %q, got %q", want, got[len(got)-1])
	}
}

func TestMultipleSubscribers(t *testing.T) {
	h := New()
	h.Open("r1")
	ch1, unsub1, _ := h.Subscribe("r1")
	ch2, unsub2, _ := h.Subscribe("r1")
	defer unsub1()
	defer unsub2()

	h.Publish("r1", "msg")

	got1 := <-ch1
	got2 := <-ch2
	if got1 != "msg" || got2 != "msg" {
		t.Fatalf("expected both subscribers to get msg, got %q and %q", got1, got2)
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	h := NewWithCap(4)
	h.Open("r1")
	ch, unsub, _ := h.Subscribe("r1")
	defer unsub()

	// Channel headroom is cap+64; overflow it without reading.
	for i := 0; i < 4+64+1; i++ {
		h.Publish("r1", fmt.Sprintf("f%d", i))
	}

	n := 0
	for range ch {
		n++
	}
	if n != 4+64 {
		t.Fatalf("expected %d frames before drop, got %d", 4+64, n)
	}
}

func TestConcurrentPublish(t *testing.T) {
	h := New()
	h.Open("r1")
	ch, unsub, _ := h.Subscribe("r1")
	defer unsub()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Publish("r1", "concurrent")
		}()
	}
	wg.Wait()

	for count := 0; count < 100; count++ {
		<-ch
	}
}

func TestUnsubscribe(t *testing.T) {
	h := New()
	h.Open("r1")
	ch, unsub, _ := h.Subscribe("r1")
	unsub()
	unsub()

	h.Publish("r1", "after-unsub")

	if f, ok := <-ch; ok {
		t.Fatalf("expected closed channel after unsubscribe, got %q", f)
	}
}

func TestRemove(t *testing.T) {
	h := New()
	h.Open("r1")
	ch, unsub, _ := h.Subscribe("r1")
	h.Publish("r1", "data")

	h.Remove("r1")

	// Drain the buffered "data" first.
	_, ok := <-ch
	if ok {
		_, ok = <-ch
	}
	if ok {
		t.Fatal("expected channel to be closed after Remove")
	}
	unsub() // must not panic after Remove

	if h.IsActive("r1") || h.Len() != 0 {
		t.Fatal("expected run removed")
	}
	if _, _, ok := h.Subscribe("r1"); ok {
		t.Fatal("expected removed run to be unknown")
	}
}

func TestRemoveNonexistent(t *testing.T) {
	h := New()
	h.Remove("nope")
}

func TestMultipleRuns(t *testing.T) {
	h := New()
	h.Open("a")
	h.Open("b")

	ch1, unsub1, _ := h.Subscribe("a")
	ch2, unsub2, _ := h.Subscribe("b")
	defer unsub1()
	defer unsub2()

	h.Publish("a", "run-a")
	h.Publish("b", "run-b")

	if got := <-ch1; got != "run-a" {
		t.Fatalf("run a: expected run-a, got %q", got)
	}
	if got := <-ch2; got != "run-b" {
		t.Fatalf("run b: expected run-b, got %q", got)
	}

	// Closing one run shouldn't affect the other.
	h.Close("a")
	h.Publish("b", "still-alive")
	if got := <-ch2; got != "still-alive" {
		t.Fatalf("run b: expected still-alive, got %q", got)
	}
}
