package switches

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestActivateCollapses(t *testing.T) {
	b := NewBus()
	var calls int
	var last interface{}
	b.Register("save", func(ctx context.Context, ctxVal interface{}) error {
		calls++
		last = ctxVal
		return nil
	})

	b.Activate("save", 1)
	b.Activate("save", 2)
	b.Activate("save", 3)
	b.RunPending(context.Background())

	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
	if last != 3 {
		t.Errorf("last ctxVal = %v, want 3 (last activation wins)", last)
	}
}

func TestDistinctSwitchesAllRun(t *testing.T) {
	b := NewBus()
	ran := map[string]bool{}
	for _, name := range []string{"a", "b"} {
		name := name
		b.Register(name, func(ctx context.Context, ctxVal interface{}) error {
			ran[name] = true
			return nil
		})
		b.Activate(name, nil)
	}
	b.RunPending(context.Background())
	if !ran["a"] || !ran["b"] {
		t.Errorf("ran = %v", ran)
	}
}

func TestHandlerErrorIsolated(t *testing.T) {
	b := NewBus()
	var second int
	b.Register("boom", func(ctx context.Context, ctxVal interface{}) error {
		return errors.New("boom")
	})
	b.Register("ok", func(ctx context.Context, ctxVal interface{}) error {
		second++
		return nil
	})
	b.Activate("boom", nil)
	b.Activate("ok", nil)
	b.RunPending(context.Background())
	if second != 1 {
		t.Errorf("handler after failure ran %d times, want 1", second)
	}

	// A failed switch runs again on the next activation.
	b.Activate("boom", nil)
	b.RunPending(context.Background())
}

func TestRunNow_displacesPending(t *testing.T) {
	b := NewBus()
	var got []interface{}
	b.Register("save", func(ctx context.Context, ctxVal interface{}) error {
		got = append(got, ctxVal)
		return nil
	})
	b.Activate("save", "queued")
	if err := b.RunNow(context.Background(), "save", "inline"); err != nil {
		t.Fatal(err)
	}
	b.RunPending(context.Background())
	if len(got) != 1 || got[0] != "inline" {
		t.Errorf("got %v, want just the inline call", got)
	}
}

func TestRunNow_noHandler(t *testing.T) {
	b := NewBus()
	err := b.RunNow(context.Background(), "missing", nil)
	if !errors.Is(err, ErrNoHandler) {
		t.Fatalf("err = %v, want ErrNoHandler", err)
	}
}

func TestAutoBackgroundTask(t *testing.T) {
	b := NewBus()
	var got interface{}
	enqueue := b.AutoBackgroundTask("task", func(ctx context.Context, args interface{}) error {
		got = args
		return nil
	})
	enqueue("first")
	enqueue("second")
	b.RunPending(context.Background())
	if got != "second" {
		t.Errorf("got %v, want second (displacing)", got)
	}
}
