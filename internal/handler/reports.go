package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cangre-pos/api/internal/enum"
	"github.com/cangre-pos/api/internal/middleware"
	"github.com/cangre-pos/api/internal/report"
	"github.com/cangre-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ReportBuilder assembles daily sales reports.
// Satisfied by *report.Builder.
type ReportBuilder interface {
	BuildDaily(ctx context.Context, date pgtype.Date, userID pgtype.UUID) (*report.DailyReport, error)
}

// ReportsHandler handles sales report endpoints.
type ReportsHandler struct {
	builder    ReportBuilder
	cutoffHour int
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(builder ReportBuilder, cutoffHour int) *ReportsHandler {
	return &ReportsHandler{builder: builder, cutoffHour: cutoffHour}
}

// RegisterRoutes registers report endpoints on the given Chi router.
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/daily", h.Daily)
	r.Get("/daily/export", h.Export)
}

// --- Response types ---

type dailyReportResponse struct {
	Date           string                 `json:"date"`
	TotalSales     string                 `json:"total_sales"`
	OrderCount     int                    `json:"order_count"`
	CancelledCount int                    `json:"cancelled_count"`
	Products       []productSalesResponse `json:"products"`
	Payments       []paymentMethodSales   `json:"payments"`
	Sessions       []sessionResponse      `json:"sessions"`
}

type productSalesResponse struct {
	Name         string `json:"name"`
	TotalSold    int64  `json:"total_sold"`
	TotalRevenue string `json:"total_revenue"`
}

type paymentMethodSales struct {
	PaymentMethod    string `json:"payment_method"`
	TransactionCount int64  `json:"transaction_count"`
	TotalRevenue     string `json:"total_revenue"`
}

// --- Handlers ---

// Daily handles GET /api/reports/daily?date=YYYY-MM-DD. Cashiers only see
// their own sales; admins see everything.
func (h *ReportsHandler) Daily(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.buildReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toDailyReportResponse(rep))
}

// Export handles GET /api/reports/daily/export, streaming the daily report
// as an xlsx workbook.
func (h *ReportsHandler) Export(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.buildReport(w, r)
	if !ok {
		return
	}

	f, err := report.Workbook(rep)
	if err != nil {
		slog.Error("render report workbook", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	filename := "cierre-" + rep.Date.Format("2006-01-02") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if _, err := f.WriteTo(w); err != nil {
		slog.Error("write report workbook", "error", err)
	}
}

// --- Helpers ---

func (h *ReportsHandler) buildReport(w http.ResponseWriter, r *http.Request) (*report.DailyReport, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return nil, false
	}

	date := service.BusinessDate(time.Now(), h.cutoffHour)
	if s := r.URL.Query().Get("date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date format, use YYYY-MM-DD"})
			return nil, false
		}
		date = pgtype.Date{Time: t, Valid: true}
	}

	var userID pgtype.UUID
	if claims.Role != enum.UserRoleAdmin {
		userID = pgtype.UUID{Bytes: claims.UserID, Valid: true}
	}

	rep, err := h.builder.BuildDaily(r.Context(), date, userID)
	if err != nil {
		slog.Error("build daily report", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return nil, false
	}
	return rep, true
}

func toDailyReportResponse(rep *report.DailyReport) dailyReportResponse {
	resp := dailyReportResponse{
		Date:           rep.Date.Format("2006-01-02"),
		TotalSales:     rep.TotalSales.StringFixed(2),
		OrderCount:     rep.OrderCount,
		CancelledCount: rep.CancelledCount,
		Products:       make([]productSalesResponse, len(rep.Products)),
		Payments:       make([]paymentMethodSales, len(rep.Payments)),
		Sessions:       make([]sessionResponse, len(rep.Sessions)),
	}
	for i, p := range rep.Products {
		resp.Products[i] = productSalesResponse{
			Name:         p.Name,
			TotalSold:    p.TotalSold,
			TotalRevenue: service.NumericToDecimal(p.TotalRevenue).StringFixed(2),
		}
	}
	for i, p := range rep.Payments {
		resp.Payments[i] = paymentMethodSales{
			PaymentMethod:    p.PaymentMethod,
			TransactionCount: p.TransactionCount,
			TotalRevenue:     service.NumericToDecimal(p.TotalRevenue).StringFixed(2),
		}
	}
	for i, s := range rep.Sessions {
		resp.Sessions[i] = toSessionResponse(s)
	}
	return resp
}
