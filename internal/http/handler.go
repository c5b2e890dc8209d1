package http

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/weighbridge-allocations/internal/engine"
	"github.com/nurpe/weighbridge-allocations/internal/model"
	"github.com/nurpe/weighbridge-allocations/internal/service"
)

type Handler struct {
	allocations *service.AllocationService
	log         zerolog.Logger

	// Acknowledgement is a display overlay, deliberately not engine state:
	// evaluation stays pure and the alert set reproducible.
	ackMu sync.Mutex
	acked map[string]struct{}
}

func NewHandler(allocations *service.AllocationService, log zerolog.Logger) *Handler {
	return &Handler{
		allocations: allocations,
		log:         log,
		acked:       make(map[string]struct{}),
	}
}

func (h *Handler) Register(router *gin.Engine) {
	router.POST("/allocations", h.createAllocation)
	router.POST("/allocations/import", h.importAllocations)
	router.GET("/allocations", h.listAllocations)
	router.GET("/allocations/:id", h.getAllocation)
	router.POST("/allocations/:id/measurements", h.recordMeasurement)
	router.POST("/allocations/:id/events", h.applyTransition)
	router.PUT("/allocations/:id/driver-status", h.setDriverStatus)
	router.PUT("/allocations/:id/stockpile", h.assignStockpile)
	router.GET("/allocations/:id/reconciliation", h.exportReconciliationPDF)

	router.POST("/check-ins", h.checkIn)

	router.GET("/alerts", h.listAlerts)
	router.POST("/alerts/:id/ack", h.ackAlert)
	router.DELETE("/alerts/:id/ack", h.unackAlert)

	router.GET("/stockpiles", h.listStockpiles)
	router.POST("/stockpiles/:id/credit", h.creditStockpile)
	router.POST("/stockpiles/:id/debit", h.debitStockpile)

	router.GET("/reports/throughput", h.throughputReport)
	router.POST("/reports/export", h.exportReportExcel)
}

type createAllocationRequest struct {
	VehicleReg    string  `json:"vehicle_reg" binding:"required"`
	OrderRef      string  `json:"order_ref" binding:"required"`
	TransporterID string  `json:"transporter_id"`
	Product       string  `json:"product"`
	ScheduledDate string  `json:"scheduled_date"`
	DriverRef     *string `json:"driver_ref"`
}

func (req createAllocationRequest) toInput() (engine.CreateAllocationInput, error) {
	input := engine.CreateAllocationInput{
		VehicleReg: req.VehicleReg,
		OrderRef:   req.OrderRef,
		Product:    req.Product,
		DriverRef:  req.DriverRef,
	}
	if req.TransporterID != "" {
		id, err := uuid.Parse(strings.TrimSpace(req.TransporterID))
		if err != nil {
			return input, errors.New("invalid transporter_id")
		}
		input.TransporterID = id
	}
	if req.ScheduledDate != "" {
		scheduled, err := parseDate(req.ScheduledDate)
		if err != nil {
			return input, errors.New("invalid scheduled_date")
		}
		input.ScheduledDate = scheduled
	}
	return input, nil
}

func (h *Handler) createAllocation(c *gin.Context) {
	var req createAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	allocation, err := h.allocations.CreateAllocation(c.Request.Context(), input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, allocation)
}

type importAllocationsRequest struct {
	Rows []createAllocationRequest `json:"rows" binding:"required"`
}

func (h *Handler) importAllocations(c *gin.Context) {
	var req importAllocationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inputs := make([]engine.CreateAllocationInput, 0, len(req.Rows))
	for i, row := range req.Rows {
		input, err := row.toInput()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "row": i + 1})
			return
		}
		inputs = append(inputs, input)
	}

	result, err := h.allocations.ImportAllocations(c.Request.Context(), inputs)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"created": result.Created,
		"errors":  result.Errors,
	})
}

func (h *Handler) listAllocations(c *gin.Context) {
	c.JSON(http.StatusOK, h.allocations.Allocations())
}

func (h *Handler) getAllocation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid allocation id"})
		return
	}
	allocation, err := h.allocations.Allocation(id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, allocation)
}

type recordMeasurementRequest struct {
	Site      string  `json:"site" binding:"required"`
	GrossKg   float64 `json:"gross_kg" binding:"required"`
	TareKg    float64 `json:"tare_kg"`
	TicketRef string  `json:"ticket_ref"`
}

func (h *Handler) recordMeasurement(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid allocation id"})
		return
	}
	var req recordMeasurementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := h.allocations.RecordMeasurement(c.Request.Context(), id, req.Site, req.GrossKg, req.TareKg, req.TicketRef)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

type transitionRequest struct {
	Event string `json:"event" binding:"required"`
	Site  string `json:"site"`
	Actor string `json:"actor"`
}

func (h *Handler) applyTransition(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid allocation id"})
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	event, err := engine.ParseEvent(req.Event)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	allocation, err := h.allocations.ApplyTransition(c.Request.Context(), id, event, engine.TransitionContext{
		Site:  req.Site,
		Actor: req.Actor,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, allocation)
}

type driverStatusRequest struct {
	Status    string  `json:"status" binding:"required"`
	DriverRef *string `json:"driver_ref"`
}

func (h *Handler) setDriverStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid allocation id"})
		return
	}
	var req driverStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := model.DriverStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if err := h.allocations.SetDriverStatus(c.Request.Context(), id, status, req.DriverRef); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type assignStockpileRequest struct {
	StockpileID   string  `json:"stockpile_id" binding:"required"`
	PlannedTonnes float64 `json:"planned_tonnes"`
}

func (h *Handler) assignStockpile(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid allocation id"})
		return
	}
	var req assignStockpileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	stockpileID, err := uuid.Parse(strings.TrimSpace(req.StockpileID))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stockpile_id"})
		return
	}

	if err := h.allocations.AssignStockpile(c.Request.Context(), id, stockpileID, req.PlannedTonnes); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type checkInRequest struct {
	VehicleReg string `json:"vehicle_reg" binding:"required"`
	Site       string `json:"site"`
}

func (h *Handler) checkIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	allocation, matched, err := h.allocations.CheckInVehicle(c.Request.Context(), req.VehicleReg, req.Site)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if !matched {
		c.JSON(http.StatusAccepted, gin.H{
			"matched": false,
			"detail":  "no open allocation for vehicle, sighting recorded",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matched": true, "allocation": allocation})
}

type alertView struct {
	model.Alert
	Acknowledged bool `json:"acknowledged"`
}

func (h *Handler) listAlerts(c *gin.Context) {
	alerts := h.allocations.EvaluateAlerts(time.Now())

	h.ackMu.Lock()
	views := make([]alertView, 0, len(alerts))
	for _, a := range alerts {
		_, acked := h.acked[a.ID]
		views = append(views, alertView{Alert: a, Acknowledged: acked})
	}
	h.ackMu.Unlock()

	c.JSON(http.StatusOK, views)
}

func (h *Handler) ackAlert(c *gin.Context) {
	id := c.Param("id")
	h.ackMu.Lock()
	h.acked[id] = struct{}{}
	h.ackMu.Unlock()
	c.Status(http.StatusNoContent)
}

func (h *Handler) unackAlert(c *gin.Context) {
	id := c.Param("id")
	h.ackMu.Lock()
	delete(h.acked, id)
	h.ackMu.Unlock()
	c.Status(http.StatusNoContent)
}

func (h *Handler) listStockpiles(c *gin.Context) {
	c.JSON(http.StatusOK, h.allocations.Stockpiles())
}

type tonnageRequest struct {
	Tonnes float64 `json:"tonnes" binding:"required"`
}

func (h *Handler) creditStockpile(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stockpile id"})
		return
	}
	var req tonnageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.allocations.CreditStockpile(c.Request.Context(), id, req.Tonnes)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"applied_tonnes":  result.Applied,
		"overflow_tonnes": result.OverflowTonnes,
	})
}

func (h *Handler) debitStockpile(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stockpile id"})
		return
	}
	var req tonnageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	applied, err := h.allocations.DebitStockpile(c.Request.Context(), id, req.Tonnes)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied_tonnes": applied})
}

func (h *Handler) throughputReport(c *gin.Context) {
	from, to, err := parsePeriod(c.Query("from"), c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.allocations.Report(from, to))
}

type exportRequest struct {
	PeriodStart string `json:"period_start" binding:"required"`
	PeriodEnd   string `json:"period_end" binding:"required"`
}

func (h *Handler) exportReportExcel(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, err := parseDate(req.PeriodStart)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period_start"})
		return
	}
	end, err := parseDate(req.PeriodEnd)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period_end"})
		return
	}

	result, err := h.allocations.ExportReportExcel(c.Request.Context(), start, end)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", result.Content)
}

func (h *Handler) exportReconciliationPDF(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid allocation id"})
		return
	}

	result, err := h.allocations.ExportReconciliationPDF(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, "application/pdf", result.Content)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	var tErr *engine.TransitionError
	switch {
	case errors.As(err, &tErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":  "illegal transition",
			"status": tErr.Status,
			"event":  tErr.Event,
			"reason": tErr.Reason,
		})
	case errors.Is(err, engine.ErrIllegalTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrMissingMeasurement):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNoData):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parsePeriod(fromRaw, toRaw string) (time.Time, time.Time, error) {
	if fromRaw == "" || toRaw == "" {
		return time.Time{}, time.Time{}, errors.New("from and to are required")
	}
	from, err := parseDate(fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid from date")
	}
	to, err := parseDate(toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid to date")
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, errors.New("from must not be after to")
	}
	return from, to.Add(24 * time.Hour), nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("empty date")
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, errors.New("unrecognized date format")
}
