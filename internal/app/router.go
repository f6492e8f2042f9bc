package app

import (
	"github.com/mathscrap/mathscrap-backend/internal/logger"
	"github.com/mathscrap/mathscrap-backend/internal/server"
)

func wireRouter(log *logger.Logger, handlerset Handlers) *server.Router {
	return server.NewRouter(log, handlerset.Upload, handlerset.Status, handlerset.Health)
}
