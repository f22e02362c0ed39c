package handler

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"waste-portal/internal/dashboard"
	"waste-portal/internal/middleware"
	"waste-portal/internal/model"
	"waste-portal/internal/workspace"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type PaymentHandler struct {
	workspace *workspace.Registry
}

func NewPaymentHandler(ws *workspace.Registry) *PaymentHandler {
	return &PaymentHandler{workspace: ws}
}

func (h *PaymentHandler) dashboard(c *gin.Context) *dashboard.Dashboard {
	return h.workspace.Dashboard(middleware.GetSession(c).ID)
}

// Handles GET /admin/payments - (re)loads every collection and renders the
// table. Fetch failures show up as the view's error with the stale rows.
func (h *PaymentHandler) List(c *gin.Context) {
	d := h.dashboard(c)
	if err := d.Load(c.Request.Context()); err != nil {
		_ = c.Error(err)
	}
	c.JSON(http.StatusOK, d.View())
}

// Handles POST /admin/payments
func (h *PaymentHandler) Create(c *gin.Context) {
	var req model.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d := h.dashboard(c)
	if err := d.EnsureLoaded(c.Request.Context()); err != nil {
		_ = c.Error(err)
	}
	payment, err := d.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": dashboard.MsgPaymentAdded,
		"payment": payment,
		"view":    d.View(),
	})
}

// Handles PUT /admin/payments/:id
func (h *PaymentHandler) Update(c *gin.Context) {
	var req model.UpdatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d := h.dashboard(c)
	if err := d.EnsureLoaded(c.Request.Context()); err != nil {
		_ = c.Error(err)
	}
	payment, err := d.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": dashboard.MsgPaymentUpdated,
		"payment": payment,
		"view":    d.View(),
	})
}

// Handles DELETE /admin/payments/:id
func (h *PaymentHandler) Delete(c *gin.Context) {
	d := h.dashboard(c)
	if err := d.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": dashboard.MsgPaymentDeleted,
		"view":    d.View(),
	})
}

// Handles GET /admin/payments/users/:userId/history
func (h *PaymentHandler) History(c *gin.Context) {
	userID := c.Param("userId")
	details, err := h.dashboard(c).Details(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":  userID,
		"payments": details,
	})
}

// Handles GET /admin/payments/export - the current table as a workbook.
func (h *PaymentHandler) Export(c *gin.Context) {
	d := h.dashboard(c)
	if err := d.EnsureLoaded(c.Request.Context()); err != nil {
		_ = c.Error(err)
	}

	var buf bytes.Buffer
	if err := d.Export(&buf); err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="payments.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
