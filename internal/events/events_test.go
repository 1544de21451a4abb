package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

type recordingPublisher struct {
	got []Event
	err error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.got = append(p.got, e)
	return p.err
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{writer: w}

	e := New(InvoiceIssued, "inv-1", map[string]string{"number": "ECO 0042"})
	require.NoError(t, p.Publish(context.Background(), e))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "inv-1", string(w.msgs[0].Key))
	assert.Equal(t, InvoiceIssued, string(w.msgs[0].Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, InvoiceIssued, decoded.Type)

	w.err = errors.New("broker down")
	assert.ErrorContains(t, p.Publish(context.Background(), e), "broker down")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestMulti_PublishesToAllAndJoinsErrors(t *testing.T) {
	ok := &recordingPublisher{}
	failing := &recordingPublisher{err: errors.New("sink failed")}
	m := Multi{ok, nil, failing, Nop{}}

	err := m.Publish(context.Background(), New(PaymentsSynced, "sync-1", nil))
	assert.ErrorContains(t, err, "sink failed")
	assert.Len(t, ok.got, 1)
	assert.Len(t, failing.got, 1)
}
