package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mathscrap/mathscrap-backend/internal/events"
	"github.com/mathscrap/mathscrap-backend/internal/logger"
)

func TestJobEventLoggerHandlesAllEventShapes(t *testing.T) {
	log, err := logger.New("development")
	require.NoError(t, err)

	sink := jobEventLogger(log)
	require.NotNil(t, sink)

	idx := 1
	require.NotPanics(t, func() {
		sink(events.JobEvent{JobID: "j1", Status: "processing", Stage: "ocr", ImageIndex: &idx, Detail: "failed: unreadable image"})
		sink(events.JobEvent{JobID: "j1", Status: "completed"})
		sink(events.JobEvent{})
	})
}
