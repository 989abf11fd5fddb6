package stream_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raaf-ai/raaf-go/stream"
)

func TestNoopSink_DiscardsAndNeverErrors(t *testing.T) {
	var sink stream.Sink = stream.NoopSink{}
	err := sink.Publish(context.Background(), stream.Event{
		Type: stream.EventItem, RunID: "r1", SessionID: "s1", Agent: "A", Payload: "hello",
	})
	assert.NoError(t, err)
}

type recordingSink struct{ events []stream.Event }

func (r *recordingSink) Publish(ctx context.Context, event stream.Event) error {
	r.events = append(r.events, event)
	return nil
}

func TestSink_CustomImplementationReceivesEvent(t *testing.T) {
	rec := &recordingSink{}
	var sink stream.Sink = rec

	err := sink.Publish(context.Background(), stream.Event{Type: stream.EventHandoff, Agent: "A"})
	assert.NoError(t, err)
	assert.Len(t, rec.events, 1)
	assert.Equal(t, stream.EventHandoff, rec.events[0].Type)
}
