package cosmopolite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPromise_SucceedResolvesWait(t *testing.T) {
	p := NewPromise[int](nil, nil)
	p.Succeed(42)

	got, err := p.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestPromise_FailResolvesWait(t *testing.T) {
	p := NewPromise[int](nil, nil)
	wantErr := errors.New("boom")
	p.Fail(wantErr)

	_, err := p.Wait(context.Background())
	if !errors.Is(err, wantErr) {
		t.Errorf("got err %v, want %v", err, wantErr)
	}
}

func TestPromise_SecondCompletionIsNoop(t *testing.T) {
	p := NewPromise[int](nil, nil)
	p.Succeed(1)
	p.Succeed(2)
	p.Fail(errors.New("ignored"))

	got, err := p.Wait(context.Background())
	if err != nil || got != 1 {
		t.Errorf("got (%d, %v), want (1, nil)", got, err)
	}
}

func TestPromise_WaitRespectsContextCancellation(t *testing.T) {
	p := NewPromise[int](nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want context.DeadlineExceeded", err)
	}
}

func TestPromise_CallbacksInvoked(t *testing.T) {
	var mu sync.Mutex
	var successVal int
	var failErr error

	success := NewPromise[int](func(v int) {
		mu.Lock()
		successVal = v
		mu.Unlock()
	}, nil)
	success.Succeed(7)

	mu.Lock()
	if successVal != 7 {
		t.Errorf("successVal = %d, want 7", successVal)
	}
	mu.Unlock()

	failure := NewPromise[int](nil, func(err error) {
		mu.Lock()
		failErr = err
		mu.Unlock()
	})
	wantErr := errors.New("nope")
	failure.Fail(wantErr)

	mu.Lock()
	if !errors.Is(failErr, wantErr) {
		t.Errorf("failErr = %v, want %v", failErr, wantErr)
	}
	mu.Unlock()
}

func TestPromise_DoneChannelClosesOnCompletion(t *testing.T) {
	p := NewPromise[struct{}](nil, nil)
	select {
	case <-p.Done():
		t.Fatal("Done channel closed before completion")
	default:
	}

	p.Succeed(struct{}{})

	select {
	case <-p.Done():
	default:
		t.Fatal("Done channel not closed after completion")
	}
}
