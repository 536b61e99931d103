package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublish_DeliversToSubscribers(t *testing.T) {
	m := NewManager(true, discardLogger())

	var (
		mu  sync.Mutex
		got []Event
	)
	m.Subscribe(EventTripPlanned, func(ctx context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
		return nil
	})

	m.PublishTripPlanned(context.Background(), TripPlannedData{Origin: "NYC", Destination: "PAR", Nights: 7})
	m.PublishTripRejected(context.Background(), TripRejectedData{Origin: "NYC"})
	m.Wait()

	require.Len(t, got, 1)
	assert.Equal(t, EventTripPlanned, got[0].Type)
	assert.NotEmpty(t, got[0].ID)
	data, ok := got[0].Data.(TripPlannedData)
	require.True(t, ok)
	assert.Equal(t, 7, data.Nights)
}

func TestPublish_HandlerSurvivesCancelledContext(t *testing.T) {
	m := NewManager(true, discardLogger())

	done := make(chan error, 1)
	m.Subscribe(EventTripRejected, func(ctx context.Context, e Event) error {
		done <- ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.PublishTripRejected(ctx, TripRejectedData{Origin: "NYC"})
	m.Wait()

	assert.NoError(t, <-done)
}

func TestDisabledManager_DropsEvents(t *testing.T) {
	m := NewManager(false, discardLogger())

	called := false
	m.Subscribe(EventTripPlanned, func(ctx context.Context, e Event) error {
		called = true
		return nil
	})
	m.PublishTripPlanned(context.Background(), TripPlannedData{})
	m.Wait()

	assert.False(t, called)
}

func TestShutdown_StopsDelivery(t *testing.T) {
	m := NewManager(true, discardLogger())

	var (
		mu    sync.Mutex
		count int
	)
	m.Subscribe(EventTripPlanned, func(ctx context.Context, e Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return errors.New("ignored")
	})

	m.PublishTripPlanned(context.Background(), TripPlannedData{})
	m.Shutdown()
	m.PublishTripPlanned(context.Background(), TripPlannedData{})
	m.Wait()

	assert.Equal(t, 1, count)
}

func TestShutdown_WaitsForConcurrentPublishers(t *testing.T) {
	m := NewManager(true, discardLogger())

	var delivered atomic.Int64
	m.Subscribe(EventTripPlanned, func(ctx context.Context, e Event) error {
		time.Sleep(time.Millisecond)
		delivered.Add(1)
		return nil
	})

	stop := make(chan struct{})
	var publishers sync.WaitGroup
	for i := 0; i < 8; i++ {
		publishers.Add(1)
		go func() {
			defer publishers.Done()
			for {
				select {
				case <-stop:
					return
				default:
					m.PublishTripPlanned(context.Background(), TripPlannedData{})
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	m.Shutdown()
	afterShutdown := delivered.Load()
	time.Sleep(20 * time.Millisecond)

	close(stop)
	publishers.Wait()

	assert.Equal(t, afterShutdown, delivered.Load(), "no handler may run after Shutdown returns")
	assert.Positive(t, afterShutdown)
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink_WritesJSONKeyedByType(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSinkWithWriter(w)

	err := sink.Handle(context.Background(), Event{
		ID:   "evt-1",
		Type: EventTripRejected,
		Data: TripRejectedData{Origin: "NYC", Destination: "PAR", Budget: 300, OffersFound: 4},
	})
	require.NoError(t, err)

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "trip.rejected", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "evt-1", string(msg.Headers[0].Value))

	var decoded struct {
		ID   string           `json:"id"`
		Type string           `json:"type"`
		Data TripRejectedData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "evt-1", decoded.ID)
	assert.Equal(t, 4, decoded.Data.OffersFound)

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestKafkaSink_WrapsWriteError(t *testing.T) {
	sink := NewKafkaSinkWithWriter(&fakeWriter{err: errors.New("broker down")})

	err := sink.Handle(context.Background(), Event{ID: "evt-2", Type: EventTripPlanned})
	require.Error(t, err)
	assert.Equal(t, "failed to write message: broker down", err.Error())
}
