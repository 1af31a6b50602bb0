package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/content-pipeline/internal/apperr"
	"github.com/codebuildervaibhav/content-pipeline/internal/logger"
	"github.com/codebuildervaibhav/content-pipeline/internal/types"
	"github.com/codebuildervaibhav/content-pipeline/internal/vapi"
)

// InterviewHandler manages interview records and their calls
type InterviewHandler struct {
	d   *Deps
	log *logger.Logger
	now func() time.Time
}

// NewInterviewHandler creates a new interview handler
func NewInterviewHandler(d *Deps) *InterviewHandler {
	return &InterviewHandler{d: d, log: d.Log.Component("interviews"), now: time.Now}
}

type createInterviewRequest struct {
	ClientName    string     `json:"clientName"`
	ClientEmail   string     `json:"clientEmail"`
	ClientPhone   string     `json:"clientPhone"`
	ScheduledTime *time.Time `json:"scheduledTime"`
}

type updateInterviewRequest struct {
	ClientName    *string        `json:"clientName"`
	ClientEmail   *string        `json:"clientEmail"`
	ClientPhone   *string        `json:"clientPhone"`
	ScheduledTime *time.Time     `json:"scheduledTime"`
	Status        *types.Status  `json:"status"`
	Metadata      types.Metadata `json:"metadata"`
}

func (h *InterviewHandler) List(c *fiber.Ctx) error {
	list, err := h.d.Store.Interviews().List(c.UserContext())
	if err != nil {
		return apperr.Internal("Failed to list interviews", err)
	}
	return c.JSON(list)
}

func (h *InterviewHandler) Get(c *fiber.Ctx) error {
	iv, err := h.find(c)
	if err != nil {
		return err
	}
	return c.JSON(iv)
}

func (h *InterviewHandler) Status(c *fiber.Ctx) error {
	iv, err := h.find(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": iv.Status})
}

// Create stores a scheduled interview and books its call when a time is given.
// A booking failure leaves the interview without a call id.
func (h *InterviewHandler) Create(c *fiber.Ctx) error {
	var req createInterviewRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.ClientEmail = strings.TrimSpace(req.ClientEmail)
	if req.ClientName == "" || req.ClientEmail == "" {
		return apperr.Validation("ERR_MISSING_FIELDS", "clientName and clientEmail are required")
	}

	ctx := c.UserContext()
	iv := &types.Interview{
		Base:          types.Base{Status: types.StatusScheduled},
		ClientID:      fmt.Sprintf("client_%d", h.now().UnixMilli()),
		ClientName:    req.ClientName,
		ClientEmail:   req.ClientEmail,
		ClientPhone:   req.ClientPhone,
		ScheduledTime: req.ScheduledTime,
	}
	if err := h.d.Store.Interviews().Insert(ctx, iv); err != nil {
		return apperr.Internal("Failed to create interview", err)
	}

	log := h.log.WithFields(logrus.Fields{"interview_id": iv.ID, "client_id": iv.ClientID})
	if iv.ScheduledTime != nil && h.d.Calls != nil {
		call, err := h.d.Calls.ScheduleCall(ctx, callRequest(iv))
		if err != nil {
			log.WithField("error", err.Error()).Error("Failed to schedule call")
		} else {
			iv.CallID = call.ID
			if err := h.d.Store.Interviews().Update(ctx, iv); err != nil {
				return apperr.Internal("Failed to save call id", err)
			}
			log.WithField("call_id", call.ID).Info("Scheduled interview call")
		}
	}

	return c.Status(fiber.StatusCreated).JSON(iv)
}

// Update applies the fields present in the body. Status changes follow the
// interview transition graph.
func (h *InterviewHandler) Update(c *fiber.Ctx) error {
	iv, err := h.find(c)
	if err != nil {
		return err
	}
	var req updateInterviewRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if req.ClientName != nil {
		iv.ClientName = *req.ClientName
	}
	if req.ClientEmail != nil {
		iv.ClientEmail = *req.ClientEmail
	}
	if req.ClientPhone != nil {
		iv.ClientPhone = *req.ClientPhone
	}
	if req.ScheduledTime != nil {
		iv.ScheduledTime = req.ScheduledTime
	}
	for k, v := range req.Metadata {
		iv.SetMeta(k, v)
	}
	if req.Status != nil {
		if !types.ValidStatus(types.KindInterview, *req.Status) {
			return apperr.Validation("ERR_INVALID_STATUS", fmt.Sprintf("Invalid status %q", *req.Status))
		}
		if err := iv.SetStatus(*req.Status); err != nil {
			return apperr.Validation("ERR_INVALID_TRANSITION", err.Error())
		}
	}

	if err := h.d.Store.Interviews().Update(c.UserContext(), iv); err != nil {
		return apperr.Internal("Failed to update interview", err)
	}
	return c.JSON(iv)
}

func (h *InterviewHandler) Delete(c *fiber.Ctx) error {
	if err := deleted(h.d.Store.Interviews().Delete(c.UserContext(), c.Params("id")), "ERR_INTERVIEW_NOT_FOUND", "Interview not found"); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Interview deleted"})
}

// Call starts the interview call now
func (h *InterviewHandler) Call(c *fiber.Ctx) error {
	iv, err := h.find(c)
	if err != nil {
		return err
	}
	if iv.Status == types.StatusCompleted {
		return apperr.Validation("ERR_INTERVIEW_COMPLETED", "Interview already completed")
	}
	if !types.CanTransition(types.KindInterview, iv.Status, types.StatusInProgress) {
		return apperr.Validation("ERR_INVALID_TRANSITION", fmt.Sprintf("Interview is %s", iv.Status))
	}
	if h.d.Calls == nil {
		return apperr.Internal("Voice API is not configured", nil)
	}

	ctx := c.UserContext()
	call, err := h.d.Calls.InitiateCall(ctx, callRequest(iv))
	if err != nil {
		return apperr.Internal("Failed to initiate call", err)
	}

	iv.CallID = call.ID
	_ = iv.SetStatus(types.StatusInProgress)
	if err := h.d.Store.Interviews().Update(ctx, iv); err != nil {
		return apperr.Internal("Failed to update interview", err)
	}

	h.log.WithFields(logrus.Fields{"interview_id": iv.ID, "call_id": call.ID}).Info("Initiated interview call")
	return c.JSON(fiber.Map{"message": "Call initiated", "callId": call.ID, "interview": iv})
}

// Continuation returns the resume context for an interrupted interview
func (h *InterviewHandler) Continuation(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		return apperr.Validation("ERR_MISSING_EMAIL", "email is required")
	}
	if h.d.Continuation == nil {
		return apperr.NotFound("ERR_NO_CONTINUATION", "No interrupted interview for this email")
	}
	cc, ok := h.d.Continuation.Prepare(email)
	if !ok {
		return apperr.NotFound("ERR_NO_CONTINUATION", "No interrupted interview for this email")
	}
	return c.JSON(cc)
}

func (h *InterviewHandler) find(c *fiber.Ctx) (*types.Interview, error) {
	iv, err := h.d.Store.Interviews().Get(c.UserContext(), c.Params("id"))
	return lookup(iv, err, "ERR_INTERVIEW_NOT_FOUND", "Interview not found")
}

func callRequest(iv *types.Interview) vapi.CallRequest {
	return vapi.CallRequest{
		ClientID:      iv.ClientID,
		ClientName:    iv.ClientName,
		ClientEmail:   iv.ClientEmail,
		ClientPhone:   iv.ClientPhone,
		ScheduledTime: iv.ScheduledTime,
	}
}
