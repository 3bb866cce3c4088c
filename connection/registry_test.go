package connection

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ekidenfi/ekiden-go/model"
)

var (
	testAddrA = "0x" + strings.Repeat("ab", 20)
	testAddrB = "0x" + strings.Repeat("cd", 20)
)

func TestRegistry_SubscribeFirst(t *testing.T) {
	r := NewRegistry(nil)
	ch := model.OrderbookChannel(testAddrA)

	h1, first := r.Subscribe(ch, 4)
	if !first {
		t.Error("first subscribe should report first=true")
	}
	h2, first := r.Subscribe(ch, 4)
	if first {
		t.Error("second subscribe should report first=false")
	}
	if !r.Active(ch) {
		t.Error("channel should be active")
	}

	if last := r.Release(h1); last {
		t.Error("releasing one of two listeners should not be last")
	}
	if last := r.Release(h2); !last {
		t.Error("releasing the final listener should be last")
	}
	if r.Active(ch) {
		t.Error("channel should be inactive after last release")
	}

	// Releasing an already released handle is a no-op.
	if last := r.Release(h2); last {
		t.Error("double release reported last=true")
	}
}

func TestRegistry_ActiveChannelsOrder(t *testing.T) {
	r := NewRegistry(nil)
	chA := model.OrderbookChannel(testAddrA)
	chB := model.TradesChannel(testAddrA)
	chC := model.OrderbookChannel(testAddrB)

	hA, _ := r.Subscribe(chA, 1)
	r.Subscribe(chB, 1)
	r.Subscribe(chC, 1)

	got := r.ActiveChannels()
	want := []model.Channel{chA, chB, chC}
	if len(got) != len(want) {
		t.Fatalf("ActiveChannels = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ActiveChannels[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	// A fully released channel leaves the order; re-subscribing appends
	// it at the end.
	r.Release(hA)
	r.Subscribe(chA, 1)
	got = r.ActiveChannels()
	want = []model.Channel{chB, chC, chA}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("after re-subscribe, ActiveChannels[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRegistry_OnLastHook(t *testing.T) {
	r := NewRegistry(nil)
	ch := model.TradesChannel(testAddrA)

	var fired []model.Channel
	r.onLast = func(c model.Channel) { fired = append(fired, c) }

	h1, _ := r.Subscribe(ch, 1)
	h2, _ := r.Subscribe(ch, 1)
	h1.Close()
	if len(fired) != 0 {
		t.Fatalf("hook fired with a listener remaining: %v", fired)
	}
	h2.Close()
	if len(fired) != 1 || fired[0] != ch {
		t.Fatalf("hook = %v, want [%v]", fired, ch)
	}
}

func TestRegistry_Deliver(t *testing.T) {
	r := NewRegistry(nil)
	ch := model.TradesChannel(testAddrA)
	h1, _ := r.Subscribe(ch, 4)
	h2, _ := r.Subscribe(ch, 4)

	ev := model.Event{Kind: model.EventTrade, Channel: ch, Seq: 1, Trade: &model.Trade{Price: 100}}
	if n := r.Deliver(ev); n != 2 {
		t.Fatalf("Deliver = %d listeners, want 2", n)
	}
	for _, h := range []*Handle{h1, h2} {
		select {
		case got := <-h.Events():
			if got.Kind != model.EventTrade || got.Seq != 1 {
				t.Errorf("received %+v, want trade seq 1", got)
			}
		default:
			t.Error("listener did not receive the event")
		}
	}

	// Nobody listens on an unknown channel.
	other := model.Event{Kind: model.EventTrade, Channel: model.TradesChannel(testAddrB)}
	if n := r.Deliver(other); n != 0 {
		t.Errorf("Deliver to inactive channel = %d, want 0", n)
	}
}

func TestRegistry_DeliverDropsSlowListener(t *testing.T) {
	r := NewRegistry(nil)
	ch := model.TradesChannel(testAddrA)
	slow, _ := r.Subscribe(ch, 1)
	fast, _ := r.Subscribe(ch, 8)

	ev := model.Event{Kind: model.EventTrade, Channel: ch}
	if n := r.Deliver(ev); n != 2 {
		t.Fatalf("first Deliver = %d, want 2", n)
	}
	// slow's buffer is now full; the next delivery drops it.
	if n := r.Deliver(ev); n != 1 {
		t.Fatalf("second Deliver = %d, want 1", n)
	}

	if err := slow.Err(); !errors.Is(err, ErrSlowListener) {
		t.Errorf("slow.Err() = %v, want ErrSlowListener", err)
	}
	if err := fast.Err(); err != nil {
		t.Errorf("fast.Err() = %v, want nil", err)
	}

	// The buffered event stays readable, then the feed closes.
	<-slow.Events()
	select {
	case _, ok := <-slow.Events():
		if ok {
			t.Error("expected slow feed to be closed after the buffered event")
		}
	case <-time.After(time.Second):
		t.Error("slow feed not closed")
	}

	// The surviving listener keeps receiving.
	if n := r.Deliver(ev); n != 1 {
		t.Errorf("third Deliver = %d, want 1", n)
	}
	if !r.Active(ch) {
		t.Error("channel should stay active while a listener remains")
	}
	if got := r.Stats().DroppedListeners; got != 1 {
		t.Errorf("DroppedListeners = %d, want 1", got)
	}
}

func TestRegistry_DropLastListenerFiresHook(t *testing.T) {
	r := NewRegistry(nil)
	ch := model.TradesChannel(testAddrA)
	var fired int
	r.onLast = func(model.Channel) { fired++ }

	r.Subscribe(ch, 1)
	ev := model.Event{Kind: model.EventTrade, Channel: ch}
	r.Deliver(ev)
	r.Deliver(ev) // drops the only listener

	if fired != 1 {
		t.Errorf("onLast fired %d times, want 1", fired)
	}
	if r.Active(ch) {
		t.Error("channel should be inactive after its only listener was dropped")
	}
}

func TestRegistry_RecordSeq(t *testing.T) {
	r := NewRegistry(nil)
	ch := model.OrderbookChannel(testAddrA)
	r.Subscribe(ch, 1)

	steps := []struct {
		seq         uint64
		wantDeliver bool
		wantGap     *model.SequenceGap
	}{
		{5, true, nil}, // first observation, never a gap
		{6, true, nil},
		{7, true, nil},
		{9, true, &model.SequenceGap{From: 8, To: 8}},
		{9, false, nil}, // duplicate
		{4, false, nil}, // regression
		{12, true, &model.SequenceGap{From: 10, To: 11}},
		{0, true, nil}, // untracked frame
		{13, true, nil},
	}
	for i, s := range steps {
		gap, deliver := r.RecordSeq(ch, s.seq)
		if deliver != s.wantDeliver {
			t.Errorf("step %d seq %d: deliver = %v, want %v", i, s.seq, deliver, s.wantDeliver)
		}
		switch {
		case s.wantGap == nil && gap != nil:
			t.Errorf("step %d seq %d: unexpected gap %+v", i, s.seq, gap)
		case s.wantGap != nil && gap == nil:
			t.Errorf("step %d seq %d: missing gap, want %+v", i, s.seq, s.wantGap)
		case s.wantGap != nil && gap != nil && *gap != *s.wantGap:
			t.Errorf("step %d seq %d: gap = %+v, want %+v", i, s.seq, gap, s.wantGap)
		}
	}
}

func TestRegistry_RecordSeqUntrackedChannel(t *testing.T) {
	r := NewRegistry(nil)
	gap, deliver := r.RecordSeq(model.TradesChannel(testAddrB), 42)
	if gap != nil || !deliver {
		t.Errorf("RecordSeq on inactive channel = (%v, %v), want (nil, true)", gap, deliver)
	}
}

func TestRegistry_ResetSeqs(t *testing.T) {
	r := NewRegistry(nil)
	ch := model.OrderbookChannel(testAddrA)
	r.Subscribe(ch, 1)

	r.RecordSeq(ch, 10)
	r.ResetSeqs()

	// After a reset the next observation is first-seen again: no gap,
	// even far from the old counter.
	gap, deliver := r.RecordSeq(ch, 3)
	if gap != nil || !deliver {
		t.Errorf("after reset: (%v, %v), want (nil, true)", gap, deliver)
	}
}

func TestRegistry_ReleaseDropsSeqState(t *testing.T) {
	r := NewRegistry(nil)
	ch := model.OrderbookChannel(testAddrA)
	h, _ := r.Subscribe(ch, 1)
	r.RecordSeq(ch, 50)
	r.Release(h)

	// A fresh subscription starts sequence tracking over.
	r.Subscribe(ch, 1)
	gap, deliver := r.RecordSeq(ch, 2)
	if gap != nil || !deliver {
		t.Errorf("after release and re-subscribe: (%v, %v), want (nil, true)", gap, deliver)
	}
}

func TestRegistry_Stats(t *testing.T) {
	r := NewRegistry(nil)
	r.Subscribe(model.OrderbookChannel(testAddrA), 1)
	r.Subscribe(model.OrderbookChannel(testAddrA), 1)
	r.Subscribe(model.TradesChannel(testAddrA), 1)

	s := r.Stats()
	if s.Channels != 2 {
		t.Errorf("Channels = %d, want 2", s.Channels)
	}
	if s.Listeners != 3 {
		t.Errorf("Listeners = %d, want 3", s.Listeners)
	}
}
