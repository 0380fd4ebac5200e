package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/financialstatementflow/internal/models"
)

func TestChannel(t *testing.T) {
	assert.Equal(t, "statements:status:user-1", Channel("statements:", "user-1"))
}

func TestEnvelope(t *testing.T) {
	progress := 40.0
	ev := models.StatusEvent{ID: "doc-1", Status: models.StatusRecognizing, Progress: &progress}

	data, err := Envelope(DefaultSource, ev)
	require.NoError(t, err)

	var e cloudevents.Event
	require.NoError(t, json.Unmarshal(data, &e))
	assert.Equal(t, EventType, e.Type())
	assert.Equal(t, DefaultSource, e.Source())
	assert.Equal(t, "doc-1", e.Subject())
	assert.NotEmpty(t, e.ID())

	var got models.StatusEvent
	require.NoError(t, e.DataAs(&got))
	assert.Equal(t, ev, got)
}

func TestEnvelope_OmitsAbsentFields(t *testing.T) {
	data, err := Envelope(DefaultSource, models.StatusEvent{ID: "doc-1", Status: models.StatusUploaded})
	require.NoError(t, err)

	var e cloudevents.Event
	require.NoError(t, json.Unmarshal(data, &e))
	var payload map[string]any
	require.NoError(t, json.Unmarshal(e.Data(), &payload))
	assert.Equal(t, map[string]any{"id": "doc-1", "status": models.StatusUploaded}, payload)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := LogPublisher{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	progress := 50.0
	require.NoError(t, p.Publish(context.Background(), "user-1", models.StatusEvent{ID: "doc-1", Status: "Convirtiendo", Progress: &progress}))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "doc-1", line["documentId"])
	assert.Equal(t, 50.0, line["progress"])
}
