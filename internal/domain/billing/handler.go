package billing

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medsettle/medsettle/internal/platform/auth"
	"github.com/medsettle/medsettle/internal/platform/gateway"
	"github.com/medsettle/medsettle/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – admin, finance, support
	readGroup := api.Group("", auth.RequireRole("admin", "finance", "support"))
	readGroup.GET("/bills", h.ListBills)
	readGroup.GET("/bills/:uuid", h.GetBill)

	// Write endpoints – admin, finance
	writeGroup := api.Group("", auth.RequireRole("admin", "finance"))
	writeGroup.POST("/bills", h.CreateBill)
	writeGroup.POST("/bills/:uuid/status", h.ChangeStatus)
	writeGroup.POST("/bills/:uuid/cancel", h.CancelBill)
	writeGroup.POST("/bills/:uuid/refund", h.RefundBill)
	writeGroup.PUT("/bills/:uuid/schedule", h.RescheduleBill)
}

func (h *Handler) CreateBill(c echo.Context) error {
	var in CreateBillInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.CreateBill(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBill(c echo.Context) error {
	id, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid bill uuid")
	}
	b, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return billError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBills(c echo.Context) error {
	pg := pagination.FromContext(c)

	var f ListFilter
	if v := c.QueryParam("payor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid payor_id")
		}
		f.PayorID = &id
	}
	if v := c.QueryParam("payor_type"); v != "" {
		pt := PayorType(v)
		if !pt.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid payor_type")
		}
		f.PayorType = &pt
	}
	if v := c.QueryParam("status"); v != "" {
		st := Status(v)
		f.Status = &st
	}
	if v := c.QueryParam("label"); v != "" {
		f.Label = &v
	}

	bills, total, err := h.svc.List(c.Request().Context(), f, pg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(bills, total, pg.Limit, pg.Offset))
}

// ChangeStatusRequest is the administrative status-change body. PROCESSING
// is the only status an operator may request directly; every other
// transition happens through its own endpoint or through the sweeps.
type ChangeStatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=PROCESSING"`
}

func (h *Handler) ChangeStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid bill uuid")
	}
	var req ChangeStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.ProcessBill(c.Request().Context(), id)
	if err != nil {
		return billError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) CancelBill(c echo.Context) error {
	id, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid bill uuid")
	}
	b, err := h.svc.Cancel(c.Request().Context(), id)
	if err != nil {
		return billError(err)
	}
	return c.JSON(http.StatusOK, b)
}

type refundRequest struct {
	AmountCents *int64 `json:"amount,omitempty"`
}

func (h *Handler) RefundBill(c echo.Context) error {
	id, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid bill uuid")
	}
	var req refundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	refund, err := h.svc.IssueRefund(c.Request().Context(), id, req.AmountCents)
	if err != nil {
		return billError(err)
	}
	return c.JSON(http.StatusCreated, refund)
}

type rescheduleRequest struct {
	ProcessingScheduledAtOrAfter *time.Time `json:"processing_scheduled_at_or_after"`
}

func (h *Handler) RescheduleBill(c echo.Context) error {
	id, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid bill uuid")
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.Reschedule(c.Request().Context(), id, req.ProcessingScheduledAtOrAfter)
	if err != nil {
		return billError(err)
	}
	return c.JSON(http.StatusOK, b)
}

// billError maps service errors onto HTTP statuses.
func billError(err error) error {
	var invalid *InvalidStatusChangeError
	var gwErr *gateway.Error
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "bill not found")
	case errors.As(err, &invalid):
		return echo.NewHTTPError(http.StatusConflict, invalid.Error())
	case errors.Is(err, ErrAlreadyClaimed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrMissingPaymentGatewayInformation):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrRefundNotAllowed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &gwErr):
		return echo.NewHTTPError(http.StatusBadGateway, gwErr.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
