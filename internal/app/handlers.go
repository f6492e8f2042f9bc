package app

import (
	"github.com/mathscrap/mathscrap-backend/internal/handlers"
)

type Handlers struct {
	Upload *handlers.UploadHandler
	Status *handlers.StatusHandler
	Health *handlers.HealthHandler
}

func wireHandlers(serviceset Services) Handlers {
	return Handlers{
		Upload: handlers.NewUploadHandler(serviceset.Pipeline),
		Status: handlers.NewStatusHandler(serviceset.Status),
		Health: handlers.NewHealthHandler(),
	}
}
