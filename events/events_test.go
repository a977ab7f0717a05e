package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeUsesSnakeCase(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	payload, err := Encode(SuggestionResolved{
		SessionID:    "s1",
		MessageIndex: 3,
		DocumentID:   "custom-main.go-1",
		Path:         "src/main.go",
		Status:       StatusAccepted,
		Applied:      true,
		ResolvedAt:   at,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"session_id": "s1",
		"message_index": 3,
		"document_id": "custom-main.go-1",
		"path": "src/main.go",
		"status": "accepted",
		"applied": true,
		"resolved_at": "2025-03-01T12:00:00Z"
	}`, string(payload))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)
}

func TestUnconfiguredPublisher(t *testing.T) {
	var p *NATSPublisher
	assert.Error(t, p.Publish(context.Background(), SuggestionResolved{}))
	assert.NoError(t, Nop{}.Publish(context.Background(), SuggestionResolved{}))
	p.Close()

	_, err := NewNATSPublisher("nats://127.0.0.1:1", "", nil)
	assert.Error(t, err)
}
