package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/systemizing-solutions/shuttle-bridge/internal/models"
	"github.com/systemizing-solutions/shuttle-bridge/internal/tenant"
)

// DatasetHandler serves the reference customer/order dataset. Every write
// goes through the regular store path, so the change hooks assign ids, bump
// versions and append change-log entries exactly as any synchronized
// application would.
type DatasetHandler struct {
	Manager *tenant.Manager
	Logger  *zap.Logger
}

func (h *DatasetHandler) Register(r *gin.Engine) {
	g := r.Group("/customers")
	g.POST("", h.createCustomer)
	g.GET("", h.listCustomers)
	g.GET("/:id", h.getCustomer)
	g.PUT("/:id", h.updateCustomer)
	g.DELETE("/:id", h.deleteCustomer)

	o := r.Group("/orders")
	o.POST("", h.createOrder)
	o.GET("", h.listOrders)
	o.DELETE("/:id", h.deleteOrder)
}

func (h *DatasetHandler) db(c *gin.Context) (*gorm.DB, bool) {
	db, err := h.Manager.DB(tenant.From(c.Request.Context()))
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("tenant store open failed", zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, "store unavailable")
		return nil, false
	}
	return db.WithContext(c.Request.Context()), true
}

type customerRequest struct {
	Name   string `json:"name" binding:"required"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

func (h *DatasetHandler) createCustomer(c *gin.Context) {
	var req customerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body")
		return
	}
	db, ok := h.db(c)
	if !ok {
		return
	}
	if req.Status == "" {
		req.Status = "active"
	}
	cust := models.Customer{Name: req.Name, Email: req.Email, Status: req.Status}
	if err := db.Create(&cust).Error; err != nil {
		Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusCreated, cust)
}

func (h *DatasetHandler) listCustomers(c *gin.Context) {
	db, ok := h.db(c)
	if !ok {
		return
	}
	limit := intQuery(c, "limit", 100)
	var customers []models.Customer
	if err := db.Order("id asc").Limit(limit).Find(&customers).Error; err != nil {
		Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

func (h *DatasetHandler) getCustomer(c *gin.Context) {
	db, ok := h.db(c)
	if !ok {
		return
	}
	id := int64Param(c, "id")
	var cust models.Customer
	if err := db.Where("id = ?", id).Take(&cust).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Error(c, http.StatusNotFound, "customer not found")
			return
		}
		Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, cust)
}

func (h *DatasetHandler) updateCustomer(c *gin.Context) {
	var req customerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body")
		return
	}
	db, ok := h.db(c)
	if !ok {
		return
	}
	id := int64Param(c, "id")
	var cust models.Customer
	if err := db.Where("id = ?", id).Take(&cust).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Error(c, http.StatusNotFound, "customer not found")
			return
		}
		Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	cust.Name = req.Name
	cust.Email = req.Email
	if req.Status != "" {
		cust.Status = req.Status
	}
	if err := db.Save(&cust).Error; err != nil {
		Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, cust)
}

func (h *DatasetHandler) deleteCustomer(c *gin.Context) {
	db, ok := h.db(c)
	if !ok {
		return
	}
	id := int64Param(c, "id")
	var cust models.Customer
	if err := db.Where("id = ?", id).Take(&cust).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
			return
		}
		Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	if err := db.Delete(&cust).Error; err != nil {
		Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type orderRequest struct {
	CustomerID int64  `json:"customer_id" binding:"required"`
	Status     string `json:"status"`
	Total      string `json:"total"`
}

func (h *DatasetHandler) createOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body")
		return
	}
	total := decimal.Zero
	if req.Total != "" {
		var err error
		total, err = decimal.NewFromString(req.Total)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid total")
			return
		}
	}
	db, ok := h.db(c)
	if !ok {
		return
	}
	var cust models.Customer
	if err := db.Where("id = ?", req.CustomerID).Take(&cust).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Error(c, http.StatusBadRequest, "unknown customer_id")
			return
		}
		Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	if req.Status == "" {
		req.Status = "new"
	}
	order := models.Order{CustomerID: req.CustomerID, Status: req.Status, Total: total}
	if err := db.Create(&order).Error; err != nil {
		Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *DatasetHandler) listOrders(c *gin.Context) {
	db, ok := h.db(c)
	if !ok {
		return
	}
	limit := intQuery(c, "limit", 100)
	q := db.Order("id asc").Limit(limit)
	if customerID := int64Query(c, "customer_id", 0); customerID != 0 {
		q = q.Where("customer_id = ?", customerID)
	}
	var orders []models.Order
	if err := q.Find(&orders).Error; err != nil {
		Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *DatasetHandler) deleteOrder(c *gin.Context) {
	db, ok := h.db(c)
	if !ok {
		return
	}
	id := int64Param(c, "id")
	var order models.Order
	if err := db.Where("id = ?", id).Take(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
			return
		}
		Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	if err := db.Delete(&order).Error; err != nil {
		Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
