package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/riceworks/millbooks_backend/config"
	"github.com/riceworks/millbooks_backend/models"
	"github.com/riceworks/millbooks_backend/models/reports"
	"github.com/riceworks/millbooks_backend/utils"
)

// respondBindError turns request binding failures into a 400 response,
// with per-field tags when the validator produced them.
func respondBindError(c *gin.Context, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": utils.CodeValidation, "fields": utils.ProcessValidationErrors(ve)}})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": utils.CodeValidation, "message": "invalid request body"}})
}

// respondError maps an error onto its HTTP status and stable code. Internal
// details are logged, never returned to the client.
func respondError(c *gin.Context, err error) {
	appErr := utils.AsAppError(err)
	if appErr == nil {
		return
	}
	if appErr.HTTPStatus() == http.StatusInternalServerError {
		config.LogError(config.GetLogger(), "handlers.go", c.FullPath(), "request failed", c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": appErr.Code(), "message": "internal error"}})
		return
	}
	c.JSON(appErr.HTTPStatus(), gin.H{"error": gin.H{"code": appErr.Code(), "message": appErr.Error()}})
}

func respondList(c *gin.Context, data interface{}, pagination *models.Pagination) {
	c.JSON(http.StatusOK, gin.H{"data": data, "pagination": pagination})
}

func intParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		respondError(c, utils.ValidationError{Message: "invalid " + name})
		return 0, false
	}
	return id, true
}

func pageQuery(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return page, limit
}

func dateQuery(c *gin.Context, name string) *time.Time {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}

// --- auth ---

func loginHandler(c *gin.Context) {
	var input models.LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	user, token, err := models.Login(c.Request.Context(), &input)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "UNAUTHORIZED", "message": "invalid credentials"}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// --- mills (platform admin) ---

func createMillHandler(c *gin.Context) {
	var input models.NewMill
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	mill, err := models.CreateMill(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, mill)
}

func listMillsHandler(c *gin.Context) {
	var name *string
	if v := c.Query("name"); v != "" {
		name = &v
	}
	mills, err := models.GetMillsAll(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": mills})
}

func getMillHandler(c *gin.Context) {
	mill, err := models.GetMill(c.Request.Context(), c.Param("millId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mill)
}

func updateMillHandler(c *gin.Context) {
	var input models.NewMill
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	mill, err := models.UpdateMill(c.Request.Context(), c.Param("millId"), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mill)
}

type millSettingInput struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value" binding:"required"`
}

func upsertMillSettingHandler(c *gin.Context) {
	var input millSettingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	setting, err := models.UpsertMillSetting(c.Request.Context(), c.Param("millId"), input.Key, input.Value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, setting)
}

func createUserHandler(c *gin.Context) {
	var input models.NewUser
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	user, err := models.CreateUser(c.Request.Context(), c.Param("millId"), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// --- parties ---

func createPartyHandler(c *gin.Context) {
	var input models.NewParty
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	party, err := models.CreateParty(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, party)
}

func listPartiesHandler(c *gin.Context) {
	var name *string
	if v := c.Query("name"); v != "" {
		name = &v
	}
	var partyType *models.PartyType
	if v := c.Query("type"); v != "" {
		t := models.PartyType(v)
		partyType = &t
	}
	parties, err := models.GetPartiesAll(c.Request.Context(), name, partyType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": parties})
}

func getPartyHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	party, err := models.GetParty(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, party)
}

func updatePartyHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var input models.NewParty
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	party, err := models.UpdateParty(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, party)
}

func deletePartyHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	party, err := models.DeleteParty(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, party)
}

// --- brokers ---

func createBrokerHandler(c *gin.Context) {
	var input models.NewBroker
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	broker, err := models.CreateBroker(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, broker)
}

func listBrokersHandler(c *gin.Context) {
	var name *string
	if v := c.Query("name"); v != "" {
		name = &v
	}
	brokers, err := models.GetBrokersAll(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": brokers})
}

func getBrokerHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	broker, err := models.GetBroker(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, broker)
}

func updateBrokerHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var input models.NewBroker
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	broker, err := models.UpdateBroker(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, broker)
}

func deleteBrokerHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	broker, err := models.DeleteBroker(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, broker)
}

// --- purchases ---

func createPurchaseHandler(c *gin.Context) {
	var input models.NewPurchase
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	purchase, err := models.CreatePurchase(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, purchase)
}

func listPurchasesHandler(c *gin.Context) {
	filter := models.PurchaseFilter{
		FromDate: dateQuery(c, "from"),
		ToDate:   dateQuery(c, "to"),
	}
	filter.Page, filter.Limit = pageQuery(c)
	if v := c.Query("party_id"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			filter.PartyId = &id
		}
	}
	if v := c.Query("stock_type"); v != "" {
		t := models.StockType(v)
		filter.StockType = &t
	}
	if v := c.Query("payment_status"); v != "" {
		s := models.PaymentStatus(v)
		filter.PaymentStatus = &s
	}
	purchases, pagination, err := models.ListPurchases(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondList(c, purchases, pagination)
}

func getPurchaseHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	purchase, err := models.GetPurchase(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchase)
}

func updatePurchaseHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var input models.NewPurchase
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	purchase, err := models.UpdatePurchase(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchase)
}

func deletePurchaseHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	purchase, err := models.DeletePurchase(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchase)
}

func recordPurchasePaymentHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var input models.PaymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	purchase, err := models.RecordPurchasePayment(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchase)
}

// --- sales ---

func createSaleHandler(c *gin.Context) {
	var input models.NewSale
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	sale, err := models.CreateSale(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

func listSalesHandler(c *gin.Context) {
	filter := models.SaleFilter{
		FromDate: dateQuery(c, "from"),
		ToDate:   dateQuery(c, "to"),
	}
	filter.Page, filter.Limit = pageQuery(c)
	if v := c.Query("party_id"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			filter.PartyId = &id
		}
	}
	if v := c.Query("stock_type"); v != "" {
		t := models.StockType(v)
		filter.StockType = &t
	}
	if v := c.Query("payment_status"); v != "" {
		s := models.PaymentStatus(v)
		filter.PaymentStatus = &s
	}
	sales, pagination, err := models.ListSales(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondList(c, sales, pagination)
}

func getSaleHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	sale, err := models.GetSale(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func updateSaleHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var input models.NewSale
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	sale, err := models.UpdateSale(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func deleteSaleHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	sale, err := models.DeleteSale(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func recordSalePaymentHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var input models.PaymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	sale, err := models.RecordSalePayment(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

// --- stocks ---

func listStocksHandler(c *gin.Context) {
	var stockType *models.StockType
	if v := c.Query("stock_type"); v != "" {
		t := models.StockType(v)
		stockType = &t
	}
	var variety *string
	if v := c.Query("variety"); v != "" {
		variety = &v
	}
	records, err := models.GetStocksAll(c.Request.Context(), stockType, variety)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

func initializeStockHandler(c *gin.Context) {
	var input models.NewStockRecord
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	record, err := models.InitializeStockRecord(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

type stockAdjustmentInput struct {
	StockType models.StockType `json:"stock_type" binding:"required"`
	Variety   string           `json:"variety" binding:"required"`
	Delta     string           `json:"delta" binding:"required"`
	Reason    string           `json:"reason" binding:"required"`
}

func adjustStockHandler(c *gin.Context) {
	var input stockAdjustmentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	delta, err := utils.ParseDecimal(input.Delta)
	if err != nil {
		respondError(c, utils.ValidationError{Message: "invalid delta"})
		return
	}
	record, err := models.AdjustStock(c.Request.Context(), input.StockType, input.Variety, delta, input.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

type thresholdInput struct {
	LowStockThreshold string `json:"low_stock_threshold" binding:"required"`
}

func updateThresholdHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var input thresholdInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	threshold, err := utils.ParseDecimal(input.LowStockThreshold)
	if err != nil {
		respondError(c, utils.ValidationError{Message: "invalid low_stock_threshold"})
		return
	}
	record, err := models.UpdateLowStockThreshold(c.Request.Context(), id, threshold)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// --- transfers ---

func createTransferHandler(c *gin.Context) {
	var input models.NewStockTransfer
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	transfer, err := models.CreateStockTransfer(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, transfer)
}

func listTransfersHandler(c *gin.Context) {
	filter := models.StockTransferFilter{
		FromDate: dateQuery(c, "from"),
		ToDate:   dateQuery(c, "to"),
	}
	filter.Page, filter.Limit = pageQuery(c)
	if v := c.Query("from_stock_type"); v != "" {
		t := models.StockType(v)
		filter.FromStockType = &t
	}
	if v := c.Query("to_stock_type"); v != "" {
		t := models.StockType(v)
		filter.ToStockType = &t
	}
	transfers, pagination, err := models.ListStockTransfers(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondList(c, transfers, pagination)
}

func getTransferHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	transfer, err := models.GetStockTransfer(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, transfer)
}

func deleteTransferHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	transfer, err := models.DeleteStockTransfer(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, transfer)
}

// --- reports ---

func stockSummaryHandler(c *gin.Context) {
	summary, err := reports.GetStockSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func lowStockAlertsHandler(c *gin.Context) {
	alerts, err := reports.GetLowStockAlerts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

func exportStockReportHandler(c *gin.Context) {
	buf, filename, err := reports.ExportStockReportXLSX(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func partyBalancesHandler(c *gin.Context) {
	rows, err := reports.GetPartyBalanceSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func brokerCommissionsHandler(c *gin.Context) {
	rows, err := reports.GetBrokerCommissionSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func reconciliationHandler(c *gin.Context) {
	report, err := reports.GetReconciliationReport(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
