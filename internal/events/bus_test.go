package events

import (
	"fmt"
	"testing"
)

func TestBus_PublishDelivers(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	b.State(UploadStart, map[string]any{"video_id": "v1"})

	ev := <-sub.C
	if ev.Type != TypeState || ev.Name != UploadStart {
		t.Errorf("event = %+v", ev)
	}
	if ev.Data["video_id"] != "v1" {
		t.Errorf("data = %v", ev.Data)
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
}

func TestBus_ReplayBufferExcludesProgress(t *testing.T) {
	b := NewBus()

	b.Log("info", "started", nil)
	b.Progress(DownloadProgress, map[string]any{"downloaded": 1})
	b.State(UploadComplete, nil)

	sub := b.Subscribe()
	defer sub.Unsubscribe()

	first := <-sub.C
	second := <-sub.C
	if first.Type != TypeLog || second.Name != UploadComplete {
		t.Errorf("replayed = %+v, %+v", first, second)
	}
	select {
	case ev := <-sub.C:
		t.Errorf("unexpected replayed event: %+v", ev)
	default:
	}
}

func TestBus_ReplayBufferBounded(t *testing.T) {
	b := NewBus()
	for i := 0; i < defaultBufferSize+20; i++ {
		b.Log("info", fmt.Sprintf("msg-%d", i), nil)
	}

	sub := b.Subscribe()
	defer sub.Unsubscribe()

	// The subscriber channel is smaller than the buffer; replay fills it and
	// silently drops the rest.
	got := 0
	for {
		select {
		case <-sub.C:
			got++
			continue
		default:
		}
		break
	}
	if got != subscriberChannelSize {
		t.Errorf("replayed %d events, want %d", got, subscriberChannelSize)
	}
}

func TestBus_SlowSubscriberDropsProgress(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	// Fill the channel to capacity.
	for i := 0; i < subscriberChannelSize; i++ {
		b.State(UploadProgress, nil)
	}

	// Progress overflow is dropped without evicting the subscriber.
	b.Progress(DownloadProgress, nil)
	if b.SubscriberCount() != 1 {
		t.Fatal("progress back-pressure must not evict")
	}

	// A state event that cannot be delivered evicts the subscriber.
	b.State(UploadComplete, nil)
	if b.SubscriberCount() != 0 {
		t.Error("undeliverable state event must evict the subscriber")
	}

	// Eviction closes the channel after the buffered events drain.
	for i := 0; i < subscriberChannelSize; i++ {
		<-sub.C
	}
	if _, ok := <-sub.C; ok {
		t.Error("expected closed channel after eviction")
	}
}

func TestBus_UnsubscribeIdempotentWithEviction(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()

	for i := 0; i < subscriberChannelSize+1; i++ {
		b.State(UploadProgress, nil)
	}
	// The subscriber was evicted above; Unsubscribe must not panic.
	sub.Unsubscribe()
	if b.SubscriberCount() != 0 {
		t.Errorf("count = %d", b.SubscriberCount())
	}
}
