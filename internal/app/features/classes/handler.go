// internal/app/features/classes/handler.go
package classes

import (
	"github.com/dalemusser/centerhub/internal/app/engine/catalog"
	"go.uber.org/zap"
)

// Handler is the feature-level entry point for a center's class list.
type Handler struct {
	Catalog *catalog.Catalog
	Log     *zap.Logger
}

func NewHandler(cat *catalog.Catalog, logger *zap.Logger) *Handler {
	return &Handler{Catalog: cat, Log: logger}
}

// addRequest names a class either directly (standard or custom) or as a
// standard course + letter pair.
type addRequest struct {
	Name   string `json:"name" validate:"required_without=Course,max=80" label:"Class name"`
	Course string `json:"course" validate:"required_with=Letter,max=8" label:"Course"`
	Letter string `json:"letter" validate:"required_with=Course,max=1" label:"Letter"`
}

type imageRequest struct {
	ImageURL string `json:"image_url" validate:"omitempty,httpurl" label:"Image URL"`
}
