package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "veritas/pkg/platform/audit"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var results kgo.ProduceResults
	for _, r := range rs {
		f.records = append(f.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func TestSinkAppend(t *testing.T) {
	producer := &fakeProducer{}
	sink := NewSink(producer, "veritas.audit")

	err := sink.Append(context.Background(), audit.Event{
		Action:  string(audit.EventEmergencyBlacklisted),
		Subject: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		Reason:  "threat",
	})
	require.NoError(t, err)
	require.Len(t, producer.records, 1)

	rec := producer.records[0]
	assert.Equal(t, "veritas.audit", rec.Topic)
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", string(rec.Key))
	assert.Equal(t, "security", string(rec.Headers[0].Value))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Value, &body))
	assert.Equal(t, "emergency_blacklisted", body["action"])
	assert.Equal(t, "threat", body["reason"])
	assert.NotEmpty(t, body["id"])
}

func TestSinkPropagatesProduceError(t *testing.T) {
	sink := NewSink(&fakeProducer{err: errors.New("broker down")}, "t")
	err := sink.Append(context.Background(), audit.Event{Action: "vote_cast"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
