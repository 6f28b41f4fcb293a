// internal/app/features/centers/handler.go
package centers

import (
	"github.com/dalemusser/centerhub/internal/app/engine/registry"
	"github.com/dalemusser/centerhub/internal/app/system/ratelimit"
	"go.uber.org/zap"
)

// Handler is the feature-level entry point for Centers.
type Handler struct {
	Registry *registry.Registry
	Log      *zap.Logger

	// Lookups throttles GET /centers/by-code; it shares its budget with
	// joins. Nil disables throttling.
	Lookups *ratelimit.JoinLimiter
}

func NewHandler(reg *registry.Registry, logger *zap.Logger) *Handler {
	return &Handler{Registry: reg, Log: logger}
}

type createRequest struct {
	Name string `json:"name" validate:"required,max=200" label:"Center name"`
}

// updateRequest edits any subset of the direct fields.
type updateRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=200" label:"Center name"`
	ImageURL *string `json:"image_url" validate:"omitempty,httpurl" label:"Image URL"`
}

type pinResponse struct {
	Pinned bool `json:"is_pinned"`
}

type codeResponse struct {
	Code string `json:"code"`
}
