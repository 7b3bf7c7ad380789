package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/ledgerops/approvia/pkg/journal"
	"github.com/ledgerops/approvia/pkg/models"
	"github.com/ledgerops/approvia/pkg/persistence"
	"github.com/ledgerops/approvia/pkg/workflow"
)

// APIHandlers carries the engine services behind the HTTP surface.
type APIHandlers struct {
	service     *workflow.Service
	recorder    *workflow.Recorder
	runner      *journal.Runner
	persistence persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(
	service *workflow.Service,
	recorder *workflow.Recorder,
	runner *journal.Runner,
	persistence persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		service:     service,
		recorder:    recorder,
		runner:      runner,
		persistence: persistence,
		validator:   validator,
	}
}

func (h *APIHandlers) SubmitDocument(c fiber.Ctx) error {
	var req SubmitDocumentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.service.SubmitForApproval(c.Context(), models.DocumentRef{
		Type:        models.DocumentType(req.DocumentType),
		ID:          req.DocumentID,
		Amount:      req.Amount,
		CurrencyID:  req.CurrencyID,
		BranchID:    req.BranchID,
		InitiatorID: req.InitiatorID,
		Fields:      req.Fields,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(newInstanceResponse(instance))
}

func (h *APIHandlers) RecordAction(c fiber.Ctx) error {
	id := c.Params("id")

	var req RecordActionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.recorder.RecordAction(c.Context(), id, req.UserID, models.Decision(req.Decision), req.Notes)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(newInstanceResponse(instance))
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	id := c.Params("id")

	if err := h.service.Cancel(c.Context(), id); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	id := c.Params("id")

	instance, err := h.service.Instance(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(newInstanceResponse(instance))
}

func (h *APIHandlers) CreateJournalDefinition(c fiber.Ctx) error {
	var req CreateJournalDefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := journal.ValidateTemplatePayload(req.Template); err != nil {
		return badRequest(c, err.Error())
	}

	var template models.CompoundJournalTemplate
	if err := json.Unmarshal(req.Template, &template); err != nil {
		return badRequest(c, "Invalid template payload")
	}

	def := &models.CompoundJournalDefinition{
		Name:               req.Name,
		Template:           template,
		TriggerType:        models.TriggerType(req.TriggerType),
		Active:             req.Active,
		RunOnApproval:      req.RunOnApproval,
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
		RecurrenceInterval: req.RecurrenceInterval,
	}

	if req.Recurrence != nil {
		recurrence := models.Recurrence(*req.Recurrence)
		def.Recurrence = &recurrence
	}

	if err := def.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	if err := journal.ValidateTemplate(&def.Template); err != nil {
		return badRequest(c, err.Error())
	}

	if err := def.InitializeNextRun(time.Now().UTC()); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.persistence.JournalDefinitions().Save(c.Context(), def); err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(def)
}

func (h *APIHandlers) ListJournalDefinitions(c fiber.Ctx) error {
	definitions, err := h.persistence.JournalDefinitions().List(c.Context())
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{
		"definitions": definitions,
		"total_count": len(definitions),
	})
}

func (h *APIHandlers) GetJournalDefinitionLogs(c fiber.Ctx) error {
	id := c.Params("id")

	if _, err := h.persistence.JournalDefinitions().ByID(c.Context(), id); err != nil {
		return handleEngineError(c, err)
	}

	logs, err := h.persistence.ExecutionLogs().ByDefinition(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{
		"logs":        logs,
		"total_count": len(logs),
	})
}

func (h *APIHandlers) RunJournalDefinition(c fiber.Ctx) error {
	id := c.Params("id")

	var req RunJournalDefinitionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	executionLog, err := h.runner.Run(c.Context(), id, req.Overrides, false)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(executionLog)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Approvia API is healthy"
	httpStatus := http.StatusOK

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "Approvia API is unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}
