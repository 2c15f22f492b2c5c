package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-groups/internal/model"
	"github.com/fairyhunter13/coupon-groups/internal/service"
)

// RedemptionServiceInterface defines the redemption operations exposed over HTTP.
type RedemptionServiceInterface interface {
	Inspect(ctx context.Context, code string, userID int64) (*model.RedemptionOffer, error)
	Redeem(ctx context.Context, code string, userID int64, resourceID string) (*model.Redemption, error)
}

// RedemptionHandler handles HTTP requests for redeeming coupon codes.
type RedemptionHandler struct {
	service   RedemptionServiceInterface
	validator *validator.Validate
}

// NewRedemptionHandler creates a new RedemptionHandler.
func NewRedemptionHandler(svc RedemptionServiceInterface, v *validator.Validate) *RedemptionHandler {
	return &RedemptionHandler{service: svc, validator: v}
}

// statusFor maps a result error kind to an HTTP status.
func statusFor(kind service.ErrorKind) int {
	switch kind {
	case "":
		return fiber.StatusOK
	case service.KindInvalidRequest:
		return fiber.StatusBadRequest
	case service.KindCodeNotFound:
		return fiber.StatusNotFound
	case service.KindAlreadyRedeemedInGroup:
		return fiber.StatusConflict
	case service.KindLimitExhausted:
		return fiber.StatusBadRequest
	case service.KindResourceUnavailable, service.KindNoEligibleResource:
		return fiber.StatusUnprocessableEntity
	case service.KindExternalEffectFailed:
		return fiber.StatusBadGateway
	case service.KindTemporarilyUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func invalidResult(c *fiber.Ctx) error {
	kind := string(service.KindInvalidRequest)
	return c.Status(fiber.StatusBadRequest).JSON(model.RedemptionResult{ErrorKind: &kind})
}

// Inspect handles POST /api/redemptions/inspect. It reports what the code
// would grant without redeeming it.
func (h *RedemptionHandler) Inspect(c *fiber.Ctx) error {
	var req model.InspectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	offer, err := h.service.Inspect(c.Context(), req.Code, req.UserID)
	if err != nil {
		kind := service.Kind(err)
		if !service.IsRejection(err) && kind != service.KindInvalidRequest {
			log.Error().
				Err(err).
				Str("request_id", c.GetRespHeader("X-Request-ID")).
				Int64("user_id", req.UserID).
				Str("code", req.Code).
				Msg("failed to inspect coupon code")
		}
		return c.Status(statusFor(kind)).JSON(fiber.Map{"error_kind": kind})
	}
	return c.JSON(offer)
}

// Redeem handles POST /api/redemptions. The body is always a RedemptionResult.
func (h *RedemptionHandler) Redeem(c *fiber.Ctx) error {
	var req model.RedeemRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidResult(c)
	}
	if err := h.validator.Struct(req); err != nil {
		log.Debug().Str("reason", formatValidationError(err)).Msg("redemption request rejected")
		return invalidResult(c)
	}

	red, err := h.service.Redeem(c.Context(), req.Code, req.UserID, req.ResourceID)
	result := service.Result(red, err)
	if err != nil {
		evt := log.Info()
		if !service.IsRejection(err) {
			evt = log.Error()
		}
		evt.Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int64("user_id", req.UserID).
			Str("code", req.Code).
			Str("error_kind", *result.ErrorKind).
			Msg("coupon redemption failed")
		return c.Status(statusFor(service.Kind(err))).JSON(result)
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Int64("user_id", req.UserID).
		Str("code", req.Code).
		Int64("group_id", red.GroupID).
		Str("reward_kind", string(red.RewardKind)).
		Msg("coupon redeemed successfully")
	return c.JSON(result)
}
