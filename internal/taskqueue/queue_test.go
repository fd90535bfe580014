package taskqueue

import (
	"errors"
	"sync"
	"testing"
)

func TestSendRecvPreservesOrder(t *testing.T) {
	sender, receiver := New()

	var got []int
	for i := 1; i <= 5; i++ {
		i := i
		if err := sender.Send(func() { got = append(got, i) }); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if receiver.Len() != 5 {
		t.Fatalf("len = %d, want 5", receiver.Len())
	}

	for {
		task, ok := receiver.TryRecv()
		if !ok {
			break
		}
		task()
	}

	want := []int{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if receiver.Len() != 0 {
		t.Fatalf("len after drain = %d, want 0", receiver.Len())
	}
}

func TestTryRecvEmpty(t *testing.T) {
	_, receiver := New()
	if task, ok := receiver.TryRecv(); ok || task != nil {
		t.Fatal("expected empty queue to return no task")
	}
}

func TestSendDuringDrainIsObserved(t *testing.T) {
	sender, receiver := New()

	var got []string
	err := sender.Send(func() {
		got = append(got, "first")
		if err := sender.Send(func() { got = append(got, "nested") }); err != nil {
			t.Errorf("nested send: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	for {
		task, ok := receiver.TryRecv()
		if !ok {
			break
		}
		task()
	}
	if len(got) != 2 || got[0] != "first" || got[1] != "nested" {
		t.Fatalf("got %v, want [first nested]", got)
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	sender, receiver := New()
	if err := sender.Send(func() {}); err != nil {
		t.Fatalf("send: %v", err)
	}

	receiver.Close()

	if !receiver.Closed() {
		t.Fatal("expected receiver to report closed")
	}
	if receiver.Len() != 0 {
		t.Fatalf("len after close = %d, want 0", receiver.Len())
	}
	err := sender.Send(func() {})
	if !errors.Is(err, ErrReceiverClosed) {
		t.Fatalf("send after close = %v, want %v", err, ErrReceiverClosed)
	}
}

func TestSendNilTask(t *testing.T) {
	sender, _ := New()
	if err := sender.Send(nil); !errors.Is(err, ErrNilTask) {
		t.Fatalf("send nil = %v, want %v", err, ErrNilTask)
	}
}

func TestConcurrentSenders(t *testing.T) {
	sender, receiver := New()

	const producers = 8
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := sender.Send(func() {}); err != nil {
					t.Errorf("send: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	count := 0
	for {
		task, ok := receiver.TryRecv()
		if !ok {
			break
		}
		task()
		count++
	}
	if count != producers*perProducer {
		t.Fatalf("received %d tasks, want %d", count, producers*perProducer)
	}
}

func TestCloseRunsDropHooks(t *testing.T) {
	sender, receiver := New()

	var dropped []int
	ran := false
	for i := 1; i <= 3; i++ {
		i := i
		if err := sender.SendWithDrop(func() { ran = true }, func() { dropped = append(dropped, i) }); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if err := sender.Send(func() { ran = true }); err != nil {
		t.Fatalf("send without hook: %v", err)
	}
	first, ok := receiver.TryRecv()
	if !ok {
		t.Fatal("expected a task")
	}
	first()
	ran = false

	receiver.Close()

	if ran {
		t.Fatal("dropped task ran")
	}
	if len(dropped) != 2 || dropped[0] != 2 || dropped[1] != 3 {
		t.Fatalf("dropped = %v, want [2 3]", dropped)
	}
	err := sender.SendWithDrop(func() {}, func() { t.Error("drop hook ran for rejected send") })
	if !errors.Is(err, ErrReceiverClosed) {
		t.Fatalf("send after close = %v, want %v", err, ErrReceiverClosed)
	}
}
