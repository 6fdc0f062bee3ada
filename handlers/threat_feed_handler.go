package handlers

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/threatlens/threatfeed-backend/services"
	"github.com/threatlens/threatfeed-backend/shared"
)

type ThreatFeedHandler struct {
	Service *services.ThreatFeedService
}

func NewThreatFeedHandler(service *services.ThreatFeedService) *ThreatFeedHandler {
	return &ThreatFeedHandler{Service: service}
}

type refreshRequest struct {
	Limit *int `json:"limit"`
}

// GetLatest serves GET /api/threat-feed/latest. Unparseable or out-of-range
// query values fall back to their defaults rather than failing the request.
func (h *ThreatFeedHandler) GetLatest(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", services.DefaultFeedLimit)
	if limit < 1 || limit > services.MaxFeedLimit {
		limit = services.DefaultFeedLimit
	}

	source := c.Query("source", services.SourceCache)
	if source != services.SourceCache && source != services.SourceNVD {
		source = services.SourceCache
	}

	records, err := h.Service.Latest(c.Context(), limit, source)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(records)
}

// Refresh serves POST /api/threat-feed/refresh.
func (h *ThreatFeedHandler) Refresh(c *fiber.Ctx) error {
	limit := services.DefaultFeedLimit

	if body := c.Body(); len(body) > 0 {
		var req refreshRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return respondValidation(c, shared.NewValidationError("limit", "Invalid request body"))
		}
		if req.Limit != nil {
			if *req.Limit < 1 || *req.Limit > services.MaxFeedLimit {
				return respondValidation(c, shared.NewValidationError("limit", "limit must be between 1 and 200"))
			}
			limit = *req.Limit
		}
	}

	result, err := h.Service.Refresh(c.Context(), limit)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"inserted": result.Inserted,
		"updated":  result.Updated,
		"total":    result.Inserted + result.Updated,
	})
}

// respondError maps service failures onto the wire contract: upstream failures
// become 502 with an upstream tag, anything else is a 500.
func respondError(c *fiber.Ctx, err error) error {
	var upstreamErr *shared.UpstreamError
	if errors.As(err, &upstreamErr) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"message":  upstreamErr.Message,
			"upstream": "nvd",
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": "Internal server error",
	})
}

func respondValidation(c *fiber.Ctx, err *shared.ValidationError) error {
	payload := fiber.Map{"message": err.Message}
	if err.Field != "" {
		payload["field"] = err.Field
	}
	return c.Status(fiber.StatusBadRequest).JSON(payload)
}
