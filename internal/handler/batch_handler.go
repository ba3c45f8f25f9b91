package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/kitchen-engine/internal/domain"
	"github.com/kursadbilgin/kitchen-engine/internal/service"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100

	defaultClockInterval = time.Second
)

type BatchService interface {
	CreateBatch(ctx context.Context, in service.CreateBatchInput) (*service.BatchDetail, error)
	GetBatch(ctx context.Context, batchID string) (*service.BatchDetail, error)
	ListBatches(ctx context.Context, in service.BatchListInput) ([]domain.Batch, int64, error)
	StartStep(ctx context.Context, batchID string, instanceID string, remarks string) (*domain.ProcessInstance, error)
	EndStep(ctx context.Context, instanceID string, remarks string) (*domain.ProcessInstance, service.Advance, error)
	FinishBatch(ctx context.Context, batchID string) (*domain.Batch, error)
	ValidateBatch(ctx context.Context, batchID string) (*service.ValidationOutcome, error)
	RevalidateBatch(ctx context.Context, batchID string) (*service.ValidationOutcome, error)
	ActiveClock(ctx context.Context, batchID string) (domain.ClockReading, error)
	WatchActiveStep(ctx context.Context, batchID string, interval time.Duration, emit func(domain.ClockReading) error) error
}

type CatalogService interface {
	ListProcessTypes(ctx context.Context) ([]domain.ProcessType, error)
}

type BatchHandler struct {
	service       BatchService
	catalog       CatalogService
	clockInterval time.Duration
	logger        *zap.Logger
}

func NewBatchHandler(svc BatchService, catalog CatalogService, clockInterval time.Duration, logger *zap.Logger) (*BatchHandler, error) {
	if svc == nil {
		return nil, fmt.Errorf("batch service is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog service is required")
	}
	if clockInterval <= 0 {
		clockInterval = defaultClockInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchHandler{
		service:       svc,
		catalog:       catalog,
		clockInterval: clockInterval,
		logger:        logger,
	}, nil
}

func RegisterBatchRoutes(router fiber.Router, h *BatchHandler) {
	v1 := router.Group("/v1")
	v1.Get("/process-types", h.ListProcessTypes)
	v1.Get("/batches", h.ListBatches)
	v1.Post("/batches", h.CreateBatch)
	v1.Get("/batches/:batchId", h.GetBatch)
	v1.Post("/batches/:batchId/steps/:instanceId/start", h.StartStep)
	v1.Post("/batches/:batchId/steps/:instanceId/end", h.EndStep)
	v1.Post("/batches/:batchId/finish", h.FinishBatch)
	v1.Post("/batches/:batchId/validate", h.ValidateBatch)
	v1.Post("/batches/:batchId/revalidate", h.RevalidateBatch)
	v1.Get("/batches/:batchId/clock", h.GetClock)
	v1.Get("/batches/:batchId/clock/stream", h.StreamClock)
}

type createBatchRequest struct {
	ProductID      string   `json:"productId"`
	InputQuantity  float64  `json:"inputQuantity"`
	ProcessTypeIDs []string `json:"processTypeIds"`
}

type stepRequest struct {
	Remarks string `json:"remarks"`
}

func (h *BatchHandler) ListProcessTypes(c *fiber.Ctx) error {
	types, err := h.catalog.ListProcessTypes(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": toProcessTypeResponses(types),
	})
}

func (h *BatchHandler) CreateBatch(c *fiber.Ctx) error {
	var req createBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	detail, err := h.service.CreateBatch(c.UserContext(), service.CreateBatchInput{
		ProductID:      req.ProductID,
		InputQuantity:  req.InputQuantity,
		ProcessTypeIDs: req.ProcessTypeIDs,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toBatchDetailResponse(detail))
}

func (h *BatchHandler) GetBatch(c *fiber.Ctx) error {
	detail, err := h.service.GetBatch(c.UserContext(), batchIDParam(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toBatchDetailResponse(detail))
}

func (h *BatchHandler) ListBatches(c *fiber.Ctx) error {
	in, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	batches, total, err := h.service.ListBatches(c.UserContext(), in)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listBatchesResponse{
		Data: toBatchResponses(batches),
		Meta: listMeta{
			Page:     in.Page,
			PageSize: in.PageSize,
			Total:    total,
		},
	})
}

func (h *BatchHandler) StartStep(c *fiber.Ctx) error {
	req, err := parseStepRequest(c)
	if err != nil {
		return err
	}

	started, err := h.service.StartStep(c.UserContext(), batchIDParam(c), instanceIDParam(c), req.Remarks)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(stepResponse{Step: toInstanceResponse(started)})
}

func (h *BatchHandler) EndStep(c *fiber.Ctx) error {
	req, err := parseStepRequest(c)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	batchID, instanceID := batchIDParam(c), instanceIDParam(c)

	// The engine addresses steps by id alone; the route also names the batch.
	detail, err := h.service.GetBatch(ctx, batchID)
	if err != nil {
		return toHTTPError(err)
	}
	if detail.Timeline.IndexOf(instanceID) < 0 {
		return toHTTPError(fmt.Errorf("%w: step %s in batch %s", domain.ErrNotFound, instanceID, batchID))
	}

	ended, advance, err := h.service.EndStep(ctx, instanceID, req.Remarks)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(stepResponse{
		Step:           toInstanceResponse(ended),
		BatchComplete:  advance.BatchComplete,
		NextInstanceID: advance.NextInstanceID,
	})
}

func (h *BatchHandler) FinishBatch(c *fiber.Ctx) error {
	batch, err := h.service.FinishBatch(c.UserContext(), batchIDParam(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) ValidateBatch(c *fiber.Ctx) error {
	outcome, err := h.service.ValidateBatch(c.UserContext(), batchIDParam(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toValidationResponse(outcome))
}

func (h *BatchHandler) RevalidateBatch(c *fiber.Ctx) error {
	outcome, err := h.service.RevalidateBatch(c.UserContext(), batchIDParam(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toValidationResponse(outcome))
}

func (h *BatchHandler) GetClock(c *fiber.Ctx) error {
	reading, err := h.service.ActiveClock(c.UserContext(), batchIDParam(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toClockResponse(reading))
}

// StreamClock serves the current step's clock as Server-Sent Events until
// the batch leaves in_progress or the client disconnects.
func (h *BatchHandler) StreamClock(c *fiber.Ctx) error {
	ctx := c.UserContext()
	batchID := batchIDParam(c)

	if _, err := h.service.ActiveClock(ctx, batchID); err != nil {
		return toHTTPError(err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	interval := h.clockInterval
	logger := h.logger.With(zap.String("batchId", batchID))
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		var clientGone bool
		err := h.service.WatchActiveStep(ctx, batchID, interval, func(r domain.ClockReading) error {
			if err := writeSSE(w, "clock", toClockResponse(r)); err != nil {
				clientGone = true
				return err
			}
			return nil
		})
		switch {
		case clientGone:
			logger.Debug("clock stream client disconnected")
		case err != nil:
			logger.Warn("clock stream stopped", zap.Error(err))
			_ = writeSSE(w, "error", fiber.Map{"error": err.Error()})
		default:
			_ = writeSSE(w, "end", fiber.Map{"batchId": batchID})
		}
	}))
	return nil
}

func writeSSE(w *bufio.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}

func parseStepRequest(c *fiber.Ctx) (stepRequest, error) {
	var req stepRequest
	if len(c.Body()) == 0 {
		return req, nil
	}
	if err := c.BodyParser(&req); err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return req, nil
}

func parseListParams(c *fiber.Ctx) (service.BatchListInput, error) {
	in := service.BatchListInput{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if in.Page < 1 {
		return service.BatchListInput{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if in.PageSize < 1 || in.PageSize > maxPageSize {
		return service.BatchListInput{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseBatchStatusFromString(rawStatus)
		if err != nil {
			return service.BatchListInput{}, err
		}
		in.Status = &status
	}

	return in, nil
}

// Route params alias fiber's request buffer; clone them before they outlive
// the handler.
func batchIDParam(c *fiber.Ctx) string {
	return strings.Clone(strings.TrimSpace(c.Params("batchId")))
}

func instanceIDParam(c *fiber.Ctx) string {
	return strings.Clone(strings.TrimSpace(c.Params("instanceId")))
}
