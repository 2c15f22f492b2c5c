package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-groups/internal/model"
	"github.com/fairyhunter13/coupon-groups/internal/service"
)

// CatalogServiceInterface defines the catalog operations exposed over HTTP.
type CatalogServiceInterface interface {
	CreateGroup(ctx context.Context, name string) (*model.CouponGroup, error)
	GetGroup(ctx context.Context, id int64) (*model.CouponGroup, error)
	ListGroups(ctx context.Context, page int) (*model.GroupPage, error)
	GroupDetail(ctx context.Context, groupID int64, page int) (*model.GroupDetail, error)
	DeleteGroup(ctx context.Context, id int64) error
	AddItem(ctx context.Context, groupID int64, code string, reward model.Reward, usageLimit int) (*model.CouponGroupItem, error)
}

// IssuanceServiceInterface defines bulk code generation.
type IssuanceServiceInterface interface {
	Issue(ctx context.Context, groupID int64, prefix string, count int, reward model.Reward, usageLimit int) (*model.IssueResult, error)
}

// StatsServiceInterface defines group reporting.
type StatsServiceInterface interface {
	Stats(ctx context.Context, groupID int64) (*model.GroupStats, error)
}

// GroupHandler handles HTTP requests for coupon groups and their items.
type GroupHandler struct {
	catalog   CatalogServiceInterface
	issuance  IssuanceServiceInterface
	stats     StatsServiceInterface
	validator *validator.Validate
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(catalog CatalogServiceInterface, issuance IssuanceServiceInterface, stats StatsServiceInterface, v *validator.Validate) *GroupHandler {
	return &GroupHandler{catalog: catalog, issuance: issuance, stats: stats, validator: v}
}

// formatValidationError converts the first validator error into a client message.
func formatValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			return "invalid request: " + field + " is required"
		case "notblank":
			return "invalid request: " + field + " cannot be whitespace only"
		case "max", "lte":
			return "invalid request: " + field + " exceeds maximum of " + fe.Param()
		case "gte", "gt":
			return "invalid request: " + field + " is below minimum of " + fe.Param()
		case "codeprefix":
			return "invalid request: " + field + " may only contain letters, digits, '_' and '-'"
		default:
			return "invalid request: " + field + " is invalid"
		}
	}
	return "invalid request"
}

// rewardFrom builds a reward from request columns where zero means absent.
func rewardFrom(amount int64, days int) (model.Reward, error) {
	var d *int
	if days > 0 {
		d = &days
	}
	return model.NewReward(amount, d)
}

func groupID(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// writeCatalogError maps catalog errors to HTTP responses.
func writeCatalogError(c *fiber.Ctx, err error, msg string) error {
	switch {
	case errors.Is(err, service.ErrInvalidReward):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: exactly one of amount or days must be positive"})
	case errors.Is(err, service.ErrInvalidRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	case errors.Is(err, service.ErrGroupNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "coupon group not found"})
	case errors.Is(err, service.ErrDuplicateName):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "coupon group already exists"})
	case errors.Is(err, service.ErrDuplicateCode):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "coupon code already exists"})
	}
	log.Error().
		Err(err).
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Msg(msg)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}

// CreateGroup handles POST /api/groups.
func (h *GroupHandler) CreateGroup(c *fiber.Ctx) error {
	var req model.CreateGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	group, err := h.catalog.CreateGroup(c.Context(), req.Name)
	if err != nil {
		return writeCatalogError(c, err, "failed to create coupon group")
	}

	log.Info().Int64("group_id", group.ID).Str("group_name", group.Name).Msg("coupon group created")
	return c.Status(fiber.StatusCreated).JSON(group)
}

// ListGroups handles GET /api/groups?page=N.
func (h *GroupHandler) ListGroups(c *fiber.Ctx) error {
	page, err := h.catalog.ListGroups(c.Context(), c.QueryInt("page", 1))
	if err != nil {
		return writeCatalogError(c, err, "failed to list coupon groups")
	}
	return c.JSON(page)
}

// GetGroup handles GET /api/groups/:id?page=N and returns the group with
// its stats and one page of items.
func (h *GroupHandler) GetGroup(c *fiber.Ctx) error {
	id, ok := groupID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: id must be a positive integer"})
	}
	detail, err := h.catalog.GroupDetail(c.Context(), id, c.QueryInt("page", 1))
	if err != nil {
		return writeCatalogError(c, err, "failed to get coupon group")
	}
	return c.JSON(detail)
}

// DeleteGroup handles DELETE /api/groups/:id. Items and receipts go with it.
func (h *GroupHandler) DeleteGroup(c *fiber.Ctx) error {
	id, ok := groupID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: id must be a positive integer"})
	}
	if err := h.catalog.DeleteGroup(c.Context(), id); err != nil {
		return writeCatalogError(c, err, "failed to delete coupon group")
	}
	log.Info().Int64("group_id", id).Msg("coupon group deleted")
	return c.SendStatus(fiber.StatusNoContent)
}

// AddItem handles POST /api/groups/:id/items.
func (h *GroupHandler) AddItem(c *fiber.Ctx) error {
	id, ok := groupID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: id must be a positive integer"})
	}
	var req model.AddItemRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}
	reward, err := rewardFrom(req.Amount, req.Days)
	if err != nil {
		return writeCatalogError(c, err, "invalid reward")
	}

	item, err := h.catalog.AddItem(c.Context(), id, req.Code, reward, req.UsageLimit)
	if err != nil {
		return writeCatalogError(c, err, "failed to add coupon item")
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

// IssueItems handles POST /api/groups/:id/issue. When the store fails
// midway the codes created so far are still returned.
func (h *GroupHandler) IssueItems(c *fiber.Ctx) error {
	id, ok := groupID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: id must be a positive integer"})
	}
	var req model.IssueRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}
	reward, err := rewardFrom(req.Amount, req.Days)
	if err != nil {
		return writeCatalogError(c, err, "invalid reward")
	}

	result, err := h.issuance.Issue(c.Context(), id, req.Prefix, req.Count, reward, req.UsageLimit)
	if err != nil {
		if result == nil {
			return writeCatalogError(c, err, "failed to issue coupon items")
		}
		log.Error().
			Err(err).
			Int64("group_id", id).
			Int("created", len(result.Created)).
			Msg("coupon issuance interrupted")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "issuance interrupted",
			"created": result.Created,
			"skipped": result.Skipped,
		})
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// GetStats handles GET /api/groups/:id/stats.
func (h *GroupHandler) GetStats(c *fiber.Ctx) error {
	id, ok := groupID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: id must be a positive integer"})
	}
	if _, err := h.catalog.GetGroup(c.Context(), id); err != nil {
		return writeCatalogError(c, err, "failed to get coupon group stats")
	}
	stats, err := h.stats.Stats(c.Context(), id)
	if err != nil {
		return writeCatalogError(c, err, "failed to get coupon group stats")
	}
	return c.JSON(stats)
}
