package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSender struct {
	err  error
	sent []OfflineNotice
}

func (r *recordingSender) Send(_ context.Context, notice OfflineNotice) error {
	r.sent = append(r.sent, notice)
	return r.err
}

func TestNewEnvelope(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	notice := OfflineNotice{To: "a@example.com", Subject: "New message", Body: "hi", ConversationID: "k1", MessageID: "m1"}

	env := NewEnvelope(notice, now)
	assert.NotEmpty(t, env.Meta.ID)
	assert.Equal(t, OfflineMessageType, env.Meta.Type)
	assert.Equal(t, now.UTC(), env.Meta.Time)
	require.NotNil(t, env.Meta.CorrelationID)
	assert.Equal(t, "m1", *env.Meta.CorrelationID)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "a@example.com", decoded["data"]["to"])
	assert.Equal(t, "k1", decoded["data"]["conversation_id"])
	assert.Equal(t, OfflineMessageType, decoded["meta"]["type"])
}

func TestNewEnvelope_NoCorrelationWithoutMessage(t *testing.T) {
	env := NewEnvelope(OfflineNotice{To: "x"}, time.Now())
	assert.Nil(t, env.Meta.CorrelationID)
}

func TestLogSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sender := NewLogSender(zap.New(core), "support@example.com")

	require.NoError(t, sender.Send(context.Background(), OfflineNotice{To: "a@example.com", MessageID: "m1"}))
	entries := logs.FilterMessage("offline notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "a@example.com", entries[0].ContextMap()["to"])
}

func TestFallbackSender(t *testing.T) {
	notice := OfflineNotice{To: "a@example.com"}

	t.Run("primary ok", func(t *testing.T) {
		primary, secondary := &recordingSender{}, &recordingSender{}
		require.NoError(t, NewFallbackSender(primary, secondary, nil).Send(context.Background(), notice))
		assert.Len(t, primary.sent, 1)
		assert.Empty(t, secondary.sent)
	})

	t.Run("primary fails", func(t *testing.T) {
		primary, secondary := &recordingSender{err: errors.New("broker down")}, &recordingSender{}
		require.NoError(t, NewFallbackSender(primary, secondary, nil).Send(context.Background(), notice))
		assert.Len(t, secondary.sent, 1)
	})
}

func TestNewRabbitSender_NilConnection(t *testing.T) {
	_, err := NewRabbitSender(nil, "", nil)
	assert.Error(t, err)
}
