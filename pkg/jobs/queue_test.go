package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	done := make(chan string, 1)
	queue := NewQueue("test", func(ctx context.Context, job Job) error {
		done <- job.ID
		return nil
	}, QueueConfig{Workers: 1})

	queue.Start(context.Background())
	defer queue.Stop()

	require.NoError(t, queue.Enqueue(Job{ID: "j1", Type: "report"}))
	select {
	case id := <-done:
		assert.Equal(t, "j1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{}, 1)
	queue := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			return fmt.Errorf("transient failure")
		}
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: 10 * time.Millisecond})

	queue.Start(context.Background())
	defer queue.Stop()

	require.NoError(t, queue.Enqueue(Job{ID: "j1"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
	mu.Lock()
	assert.Equal(t, 2, attempts)
	mu.Unlock()
}

func TestQueueEnqueueBeforeStartFails(t *testing.T) {
	queue := NewQueue("test", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	err := queue.Enqueue(Job{ID: "j1"})
	require.Error(t, err)
}

func TestQueueJobTimeoutCancelsHandler(t *testing.T) {
	timedOut := make(chan struct{}, 1)
	queue := NewQueue("test", func(ctx context.Context, job Job) error {
		<-ctx.Done()
		timedOut <- struct{}{}
		return ctx.Err()
	}, QueueConfig{Workers: 1, MaxRetries: 1, JobTimeout: 20 * time.Millisecond})

	queue.Start(context.Background())
	defer queue.Stop()

	require.NoError(t, queue.Enqueue(Job{ID: "j1"}))
	select {
	case <-timedOut:
	case <-time.After(2 * time.Second):
		t.Fatal("handler context was not cancelled")
	}
}
