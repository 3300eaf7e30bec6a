package natspub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mcdev12/wordgame/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJetStream struct {
	msgs []*nats.Msg
	err  error
}

func (f *fakeJetStream) PublishMsg(_ context.Context, msg *nats.Msg, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, msg)
	return &jetstream.PubAck{Stream: "WORDGAME_EVENTS", Sequence: uint64(len(f.msgs))}, nil
}

func newTestPublisher(js msgPublisher) *JetStreamPublisher {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &JetStreamPublisher{js: js, config: DefaultJetStreamConfig(), now: func() time.Time { return fixed }}
}

func TestPublishRoundResult(t *testing.T) {
	js := &fakeJetStream{}
	p := newTestPublisher(js)

	res := models.RoundResult{Round: 2, Won: true, Word: "PROGRAM", Reason: "Round ended early"}
	require.NoError(t, p.PublishRoundResult(context.Background(), "s1", "alice", res))

	require.Len(t, js.msgs, 1)
	msg := js.msgs[0]
	assert.Equal(t, "wordgame.events.round_result", msg.Subject)
	assert.Equal(t, EventRoundResult, msg.Header.Get("Event-Type"))
	assert.Equal(t, "s1", msg.Header.Get("Session-ID"))

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	assert.Equal(t, "alice", env.Username)
	assert.Equal(t, msg.Header.Get("Event-ID"), env.EventID)
	assert.True(t, env.Timestamp.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))

	var got models.RoundResult
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, res, got)
}

func TestPublishGameOutcome(t *testing.T) {
	js := &fakeJetStream{}
	p := newTestPublisher(js)

	outcome := models.GameOutcome{SessionID: "s1", Winner: "bob", Tally: map[string]int{"alice": 1, "bob": 3}}
	require.NoError(t, p.PublishGameOutcome(context.Background(), "alice", outcome))

	require.Len(t, js.msgs, 1)
	assert.Equal(t, "wordgame.events.game_outcome", js.msgs[0].Subject)
	assert.Equal(t, "s1", js.msgs[0].Header.Get("Session-ID"))
}

func TestPublishErrorWrapped(t *testing.T) {
	boom := errors.New("no responders")
	p := newTestPublisher(&fakeJetStream{err: boom})

	err := p.PublishRoundResult(context.Background(), "s1", "alice", models.RoundResult{Round: 1})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, p.Close())
}
