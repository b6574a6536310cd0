package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/Abdullah2434/backend/internal/pkg/billing"
	"github.com/Abdullah2434/backend/internal/pkg/usercontext"
)

// SubscriptionController serves the owner facing subscription API and the
// internal quota hook.
type SubscriptionController struct {
	service *billing.Service
}

func NewSubscriptionController(service *billing.Service) *SubscriptionController {
	return &SubscriptionController{service: service}
}

type createSubscriptionRequest struct {
	PlanID string `json:"plan_id" validate:"required"`
	Email  string `json:"email" validate:"omitempty,email"`
}

type cancelSubscriptionRequest struct {
	AtPeriodEnd bool `json:"at_period_end"`
}

type changePlanRequest struct {
	PlanID string `json:"plan_id" validate:"required"`
}

func outcomeResponse(out *billing.Outcome) fiber.Map {
	return fiber.Map{"result": out.Result, "subscription": out.Subscription}
}

func (s *SubscriptionController) ctx(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

// HandleCurrent returns the owner's subscription.
func (s *SubscriptionController) HandleCurrent(c *fiber.Ctx) error {
	ctx, cancel := s.ctx(c)
	defer cancel()

	sub, err := s.service.Current(ctx, usercontext.OwnerID(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"subscription": sub})
}

func (s *SubscriptionController) HandleCreate(c *fiber.Ctx) error {
	var req createSubscriptionRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}
	ctx, cancel := s.ctx(c)
	defer cancel()

	ownerID := usercontext.OwnerID(c)
	out, err := s.service.Create(ctx, ownerID, req.PlanID, req.Email)
	if err != nil {
		log.Warnf("[Billing] Create subscription for owner %s failed: %v", ownerID, err)
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(outcomeResponse(out))
}

func (s *SubscriptionController) HandleCancel(c *fiber.Ctx) error {
	var req cancelSubscriptionRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return badRequest(c, err)
		}
	}
	ctx, cancel := s.ctx(c)
	defer cancel()

	out, err := s.service.Cancel(ctx, usercontext.OwnerID(c), req.AtPeriodEnd)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(outcomeResponse(out))
}

func (s *SubscriptionController) HandleChangePlan(c *fiber.Ctx) error {
	var req changePlanRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}
	ctx, cancel := s.ctx(c)
	defer cancel()

	out, err := s.service.ChangePlan(ctx, usercontext.OwnerID(c), req.PlanID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(outcomeResponse(out))
}

func (s *SubscriptionController) HandleUsage(c *fiber.Ctx) error {
	ctx, cancel := s.ctx(c)
	defer cancel()

	usage, err := s.service.Usage(ctx, usercontext.OwnerID(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(usage)
}

func (s *SubscriptionController) HandleBillingRecords(c *fiber.Ctx) error {
	ctx, cancel := s.ctx(c)
	defer cancel()

	records, err := s.service.BillingHistory(ctx, usercontext.OwnerID(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"records": records})
}

func (s *SubscriptionController) HandlePlans(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"plans": s.service.Plans()})
}

// HandleConsumeVideo takes one video from the owner's quota. A denied
// request is still a 200; the body says whether it was granted.
func (s *SubscriptionController) HandleConsumeVideo(c *fiber.Ctx) error {
	ctx, cancel := s.ctx(c)
	defer cancel()

	decision, err := s.service.ConsumeVideo(ctx, usercontext.OwnerID(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(decision)
}
