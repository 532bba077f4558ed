package purge

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/RichardoC/pawtrack/internal/backend"
	"github.com/RichardoC/pawtrack/internal/models"
)

func TestDeleteAllCountsOutcomes(t *testing.T) {
	fake := newFakeBackend(5)
	fake.deleted["msg-0001"] = true
	fake.deleteErr["msg-0003"] = &backend.StatusError{Op: "delete", StatusCode: http.StatusInternalServerError}
	fake.deleteErr["msg-0004"] = errors.New("connection reset")

	msgs := append([]models.Message{}, fake.messages...)
	msgs = append(msgs, models.Message{Role: models.RoleSystem}, fake.messages[0])

	d := NewDeleter(fake, 4, zaptest.NewLogger(t), nil)
	out := d.DeleteAll(context.Background(), "tok", msgs)

	assert.Equal(t, 5, out.Attempted)
	assert.Equal(t, 3, out.Confirmed)
	assert.Equal(t, 1, out.Skipped)
	assert.Equal(t, []string{"msg-0003", "msg-0004"}, out.Failed)

	_, deleteCalls := fake.calls()
	assert.Equal(t, 5, deleteCalls)
}

func TestDeleteAllEmpty(t *testing.T) {
	fake := newFakeBackend(0)
	d := NewDeleter(fake, 4, zaptest.NewLogger(t), nil)

	out := d.DeleteAll(context.Background(), "tok", []models.Message{{Content: "no id"}})
	assert.Equal(t, 0, out.Attempted)
	assert.Equal(t, 1, out.Skipped)
	assert.Empty(t, out.Failed)

	_, deleteCalls := fake.calls()
	assert.Zero(t, deleteCalls)
}

func TestDeleteAllRunsConcurrently(t *testing.T) {
	const n = 25

	var (
		inFlight, maxInFlight atomic.Int64
		arrived               atomic.Int64
		allIn                 = make(chan struct{})
		once                  sync.Once
	)

	fake := newFakeBackend(n)
	fake.beforeDelete = func(string) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		if arrived.Add(1) == n {
			once.Do(func() { close(allIn) })
		}
		// Every delete waits until all of them have started.
		select {
		case <-allIn:
		case <-time.After(5 * time.Second):
		}
	}

	d := NewDeleter(fake, n, zaptest.NewLogger(t), nil)
	out := d.DeleteAll(context.Background(), "tok", fake.messages)

	assert.Equal(t, n, out.Attempted)
	assert.Equal(t, n, out.Confirmed)
	assert.EqualValues(t, n, maxInFlight.Load())
}

func TestDeleteAllRespectsConcurrencyLimit(t *testing.T) {
	const limit = 3

	var inFlight, maxInFlight atomic.Int64
	fake := newFakeBackend(30)
	fake.beforeDelete = func(string) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
	}

	d := NewDeleter(fake, limit, zaptest.NewLogger(t), nil)
	out := d.DeleteAll(context.Background(), "tok", fake.messages)

	assert.Equal(t, 30, out.Confirmed)
	assert.LessOrEqual(t, maxInFlight.Load(), int64(limit))
	assert.Positive(t, maxInFlight.Load())
}
