// internal/app/features/members/handler.go
package members

import (
	"github.com/dalemusser/centerhub/internal/app/engine/coordinator"
	"github.com/dalemusser/centerhub/internal/app/engine/directory"
	"github.com/dalemusser/centerhub/internal/app/system/ratelimit"
	"go.uber.org/zap"
)

// Handler is the feature-level entry point for membership changes.
// Reads go through the directory; every write goes through the coordinator.
type Handler struct {
	Coordinator *coordinator.Coordinator
	Directory   *directory.Directory
	Log         *zap.Logger

	// Joins throttles join-by-code attempts; nil disables throttling.
	Joins *ratelimit.JoinLimiter
}

func NewHandler(co *coordinator.Coordinator, dir *directory.Directory, logger *zap.Logger) *Handler {
	return &Handler{Coordinator: co, Directory: dir, Log: logger}
}

type moveClassRequest struct {
	CenterID  string `json:"center_id" validate:"required,objectid" label:"Center"`
	Course    string `json:"course" validate:"max=80" label:"Course"`
	ClassName string `json:"class_name" validate:"required,max=80" label:"Class"`
}

type joinRequest struct {
	Code string `json:"code" validate:"required,accesscode" label:"Access code"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required,role" label:"Role"`
}
