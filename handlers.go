package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/eppcloud/epp_backend/config"
	"github.com/eppcloud/epp_backend/middlewares"
	"github.com/eppcloud/epp_backend/models"
	"github.com/eppcloud/epp_backend/models/reports"
	"github.com/eppcloud/epp_backend/utils"
	"github.com/gin-gonic/gin"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrInsufficientStock),
		errors.Is(err, utils.ErrOverReversal),
		errors.Is(err, utils.ErrLotInUse),
		errors.Is(err, utils.ErrInvalidTransition),
		errors.Is(err, utils.ErrAlreadyReviewed),
		errors.Is(err, utils.ErrConcurrentModification),
		errors.Is(err, utils.ErrLedgerInconsistent):
		return http.StatusConflict
	case errors.Is(err, utils.ErrConfigurationMissing):
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func abortWithError(c *gin.Context, err error) {
	correlationId, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	config.GetLogger().WithField("correlationId", correlationId).
		WithField("path", c.FullPath()).
		WithField("error", err.Error()).
		Warn("request failed")
	c.AbortWithStatusJSON(errorStatus(err), gin.H{"error": err.Error()})
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) int {
	n, _ := strconv.Atoi(c.Query(name))
	return n
}

// ---- lots ----

func registerLotHandler(c *gin.Context) {
	var input models.NewLot
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	lot, warning, err := models.RegisterLot(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"lot": lot, "warning": warning})
}

func getLotHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	lot, err := models.GetLot(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, lot)
}

func deleteLotHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	lot, err := models.DeleteLot(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, lot)
}

func availableLotsHandler(c *gin.Context) {
	materialId := queryInt(c, "material_id")
	warehouseId := queryInt(c, "warehouse_id")
	if materialId <= 0 || warehouseId <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "material_id and warehouse_id are required"})
		return
	}
	lots, err := models.AvailableLots(c.Request.Context(), materialId, warehouseId,
		queryInt(c, "after_id"), queryInt(c, "limit"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, lots)
}

// ---- stock ----

func getStockHandler(c *gin.Context) {
	warehouseId := queryInt(c, "warehouse_id")
	materialId := queryInt(c, "material_id")
	record, err := models.GetStockRecord(c.Request.Context(), warehouseId, materialId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func updateStockThresholdsHandler(c *gin.Context) {
	warehouseId := queryInt(c, "warehouse_id")
	materialId := queryInt(c, "material_id")
	var input models.StockThresholdInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	record, err := models.UpdateStockThresholds(c.Request.Context(), warehouseId, materialId, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func lowStockHandler(c *gin.Context) {
	var warehouseId *int
	if v := queryInt(c, "warehouse_id"); v > 0 {
		warehouseId = &v
	}
	records, err := models.GetLowStockRecords(c.Request.Context(), warehouseId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// ---- deliveries ----

func createDeliveryHandler(c *gin.Context) {
	var input models.NewDelivery
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	delivery, warning, err := models.CreateDelivery(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"delivery": delivery, "warning": warning})
}

func amendDeliveryHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.NewDelivery
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	delivery, warning, err := models.AmendDelivery(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivery": delivery, "warning": warning})
}

func deleteDeliveryHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	delivery, err := models.DeleteDelivery(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, delivery)
}

func getDeliveryHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	delivery, err := models.GetDelivery(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, delivery)
}

func employeeDeliveriesHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	deliveries, err := models.GetDeliveriesByEmployee(c.Request.Context(), id, queryInt(c, "limit"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, deliveries)
}

// ---- requisitions ----

func createRequisitionHandler(c *gin.Context) {
	var input models.NewRequisition
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	requisition, err := models.CreateRequisition(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, requisition)
}

func getRequisitionHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	userId, _ := utils.GetUserIdFromContext(ctx)
	allowed, err := models.CanViewRequisition(ctx, id, userId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !allowed {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not allowed to view this requisition"})
		return
	}
	requisition, err := models.GetRequisition(ctx, id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, requisition)
}

func listRequisitionsHandler(c *gin.Context) {
	status, err := models.ParseRequisitionStatus(c.Query("status"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	requisitions, err := models.GetRequisitionsByStatus(c.Request.Context(), status,
		queryInt(c, "offset"), queryInt(c, "limit"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, requisitions)
}

func approveRequisitionHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.ApproveRequisitionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	requisition, err := models.ApproveRequisition(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, requisition)
}

func deliverRequisitionHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.DeliverRequisitionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	requisition, warnings, err := models.DeliverRequisition(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requisition": requisition, "warnings": warnings})
}

func cancelRequisitionHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	requisition, err := models.CancelRequisition(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, requisition)
}

// ---- thresholds ----

func createThresholdHandler(c *gin.Context) {
	var input models.NewMaterialThreshold
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	threshold, err := models.CreateMaterialThreshold(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, threshold)
}

func updateThresholdHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.NewMaterialThreshold
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	threshold, err := models.UpdateMaterialThreshold(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, threshold)
}

func listThresholdsHandler(c *gin.Context) {
	thresholds, err := models.GetMaterialThresholdsAll(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, thresholds)
}

// ---- alerts ----

func pendingAlertsHandler(c *gin.Context) {
	var employeeId *int
	if v := queryInt(c, "employee_id"); v > 0 {
		employeeId = &v
	}
	var kind *models.AlertKind
	if v := c.Query("kind"); v != "" {
		parsed, err := models.ParseAlertKind(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		kind = &parsed
	}
	alerts, err := models.GetPendingAlerts(c.Request.Context(), employeeId, kind,
		queryInt(c, "offset"), queryInt(c, "limit"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func reviewAlertHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.ReviewAlertInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	alert, err := models.ReviewAlert(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

type bulkReviewRequest struct {
	AlertIds []int                   `json:"alert_ids" binding:"required,min=1"`
	Review   models.ReviewAlertInput `json:"review" binding:"required"`
}

func bulkReviewAlertsHandler(c *gin.Context) {
	var input bulkReviewRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	results, succeeded, err := models.BulkReviewAlerts(c.Request.Context(), input.AlertIds, &input.Review)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "succeeded": succeeded})
}

// ---- reports ----

func consumptionRankingHandler(c *gin.Context) {
	input := reports.ConsumptionRankingInput{
		Year:  queryInt(c, "year"),
		Month: queryInt(c, "month"),
		TopN:  queryInt(c, "top_n"),
	}
	if v := queryInt(c, "project_id"); v > 0 {
		input.ProjectId = &v
	}
	if v := c.Query("job_role"); v != "" {
		input.JobRole = &v
	}
	if input.Year <= 0 || input.Month < 1 || input.Month > 12 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "year and month are required"})
		return
	}
	report, err := reports.GetConsumptionRanking(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func consumptionRankingExcelHandler(c *gin.Context) {
	input := reports.ConsumptionRankingInput{
		Year:  queryInt(c, "year"),
		Month: queryInt(c, "month"),
		TopN:  queryInt(c, "top_n"),
	}
	if input.Year <= 0 || input.Month < 1 || input.Month > 12 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "year and month are required"})
		return
	}
	report, err := reports.GetConsumptionRanking(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	file, err := reports.ExportConsumptionRankingExcel(report)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=consumption_ranking.xlsx")
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := file.Write(c.Writer); err != nil {
		abortWithError(c, err)
	}
}

func registerRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(middlewares.Auth())

	api.POST("/lots", registerLotHandler)
	api.GET("/lots", availableLotsHandler)
	api.GET("/lots/:id", getLotHandler)
	api.DELETE("/lots/:id", deleteLotHandler)

	api.GET("/stock", getStockHandler)
	api.PUT("/stock/thresholds", updateStockThresholdsHandler)
	api.GET("/stock/low", lowStockHandler)

	api.POST("/deliveries", createDeliveryHandler)
	api.GET("/deliveries/:id", getDeliveryHandler)
	api.PUT("/deliveries/:id", amendDeliveryHandler)
	api.DELETE("/deliveries/:id", deleteDeliveryHandler)
	api.GET("/employees/:id/deliveries", employeeDeliveriesHandler)

	api.POST("/requisitions", createRequisitionHandler)
	api.GET("/requisitions", listRequisitionsHandler)
	api.GET("/requisitions/:id", getRequisitionHandler)
	api.POST("/requisitions/:id/approve", middlewares.RequireRole("supervisor"), approveRequisitionHandler)
	api.POST("/requisitions/:id/deliver", middlewares.RequireRole("warehouse"), deliverRequisitionHandler)
	api.POST("/requisitions/:id/cancel", cancelRequisitionHandler)

	api.POST("/material-thresholds", createThresholdHandler)
	api.PUT("/material-thresholds/:id", updateThresholdHandler)
	api.GET("/material-thresholds", listThresholdsHandler)

	api.GET("/alerts", pendingAlertsHandler)
	api.POST("/alerts/:id/review", reviewAlertHandler)
	api.POST("/alerts/bulk-review", bulkReviewAlertsHandler)

	api.GET("/reports/consumption-ranking", consumptionRankingHandler)
	api.GET("/reports/consumption-ranking/export", consumptionRankingExcelHandler)
}
