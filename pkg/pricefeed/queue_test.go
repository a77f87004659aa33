package pricefeed

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTickQueueFIFO(t *testing.T) {
	q := NewTickQueue()
	for i := 1; i <= 5; i++ {
		q.Push(Tick{Token: "T", LTP: decimal.NewFromInt(int64(i))})
	}
	if q.Len() != 5 {
		t.Fatalf("len = %d, want 5", q.Len())
	}
	for i := 1; i <= 5; i++ {
		tick, err := q.Pop(context.Background())
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if tick.LTP.Cmp(decimal.NewFromInt(int64(i))) != 0 {
			t.Errorf("pop %d = %s", i, tick.LTP)
		}
	}
}

func TestTickQueuePopBlocksUntilPush(t *testing.T) {
	q := NewTickQueue()
	done := make(chan Tick, 1)
	go func() {
		tick, err := q.Pop(context.Background())
		if err != nil {
			return
		}
		done <- tick
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(Tick{Token: "T", LTP: decimal.NewFromInt(42)})

	select {
	case tick := <-done:
		if tick.LTP.Cmp(decimal.NewFromInt(42)) != 0 {
			t.Errorf("tick = %s, want 42", tick.LTP)
		}
	case <-time.After(time.Second):
		t.Fatal("pop did not wake up")
	}
}

func TestTickQueuePopHonoursContext(t *testing.T) {
	q := NewTickQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	if err == nil {
		t.Fatal("expected context error")
	}
}
