// internal/app/features/cascades/handler.go
package cascades

import (
	"github.com/dalemusser/centerhub/internal/app/engine/coordinator"
	"go.uber.org/zap"
)

// Handler exposes persisted cascade cursors to operators.
type Handler struct {
	Coordinator *coordinator.Coordinator
	Log         *zap.Logger
}

func NewHandler(co *coordinator.Coordinator, logger *zap.Logger) *Handler {
	return &Handler{Coordinator: co, Log: logger}
}
