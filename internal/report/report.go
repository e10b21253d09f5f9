// Package report aggregates a business day's sales and renders the daily
// closure workbook.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/cangre-pos/api/internal/database"
	"github.com/cangre-pos/api/internal/enum"
	"github.com/cangre-pos/api/internal/service"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Store defines the database methods needed to build reports.
// Satisfied by *database.Queries.
type Store interface {
	SumSales(ctx context.Context, arg database.DateRangeParams) (pgtype.Numeric, error)
	ListOrdersInRange(ctx context.Context, arg database.DateRangeParams) ([]database.Order, error)
	ProductSalesReport(ctx context.Context, arg database.DateRangeParams) ([]database.ProductSalesRow, error)
	PaymentMethodReport(ctx context.Context, arg database.DateRangeParams) ([]database.PaymentMethodRow, error)
	ListSessionsForDate(ctx context.Context, date pgtype.Date) ([]database.CashierSession, error)
}

// DailyReport is one business day's sales summary.
type DailyReport struct {
	Date           time.Time
	TotalSales     decimal.Decimal
	OrderCount     int
	CancelledCount int
	Products       []database.ProductSalesRow
	Payments       []database.PaymentMethodRow
	Sessions       []database.CashierSession
}

// Builder assembles daily reports.
type Builder struct {
	store      Store
	cutoffHour int
}

// NewBuilder creates a report Builder.
func NewBuilder(store Store, cutoffHour int) *Builder {
	return &Builder{store: store, cutoffHour: cutoffHour}
}

// Range converts a business date into the timestamp window it covers:
// cutoff hour on that calendar day up to (exclusive) cutoff hour the next.
func (b *Builder) Range(date pgtype.Date) (pgtype.Timestamptz, pgtype.Timestamptz) {
	day := date.Time
	start := time.Date(day.Year(), day.Month(), day.Day(), b.cutoffHour, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	return pgtype.Timestamptz{Time: start, Valid: true}, pgtype.Timestamptz{Time: end, Valid: true}
}

// BuildDaily aggregates one business day. A zero userID means all cashiers.
func (b *Builder) BuildDaily(ctx context.Context, date pgtype.Date, userID pgtype.UUID) (*DailyReport, error) {
	start, end := b.Range(date)
	params := database.DateRangeParams{Start: start, End: end, UserID: userID}

	total, err := b.store.SumSales(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("sum sales: %w", err)
	}
	orders, err := b.store.ListOrdersInRange(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	products, err := b.store.ProductSalesReport(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("product sales: %w", err)
	}
	payments, err := b.store.PaymentMethodReport(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("payment methods: %w", err)
	}
	sessions, err := b.store.ListSessionsForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("sessions: %w", err)
	}

	report := &DailyReport{
		Date:       date.Time,
		TotalSales: service.NumericToDecimal(total),
		Products:   products,
		Payments:   payments,
		Sessions:   sessions,
	}
	for _, o := range orders {
		if o.Status == enum.OrderStatusCancelled {
			report.CancelledCount++
			continue
		}
		report.OrderCount++
	}
	return report, nil
}

const sheetName = "Cierre diario"

// Workbook renders the daily report as an xlsx workbook for download and
// archival alongside the closure record.
func Workbook(r *DailyReport) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	set := func(cell string, value any) {
		_ = f.SetCellValue(sheetName, cell, value)
	}
	head := func(cell, label string) {
		set(cell, label)
		_ = f.SetCellStyle(sheetName, cell, cell, bold)
	}

	head("A1", "Cierre diario")
	set("B1", r.Date.Format("2006-01-02"))
	head("A3", "Total vendido")
	set("B3", r.TotalSales.StringFixed(2))
	head("A4", "Pedidos")
	set("B4", r.OrderCount)
	head("A5", "Anulados")
	set("B5", r.CancelledCount)

	row := 6
	head(fmt.Sprintf("A%d", row), "Producto")
	head(fmt.Sprintf("B%d", row), "Cantidad")
	head(fmt.Sprintf("C%d", row), "Importe")
	for _, p := range r.Products {
		row++
		set(fmt.Sprintf("A%d", row), p.Name)
		set(fmt.Sprintf("B%d", row), p.TotalSold)
		set(fmt.Sprintf("C%d", row), service.NumericToDecimal(p.TotalRevenue).StringFixed(2))
	}

	row += 2
	head(fmt.Sprintf("A%d", row), "Medio de pago")
	head(fmt.Sprintf("B%d", row), "Operaciones")
	head(fmt.Sprintf("C%d", row), "Importe")
	for _, p := range r.Payments {
		row++
		set(fmt.Sprintf("A%d", row), p.PaymentMethod)
		set(fmt.Sprintf("B%d", row), p.TransactionCount)
		set(fmt.Sprintf("C%d", row), service.NumericToDecimal(p.TotalRevenue).StringFixed(2))
	}

	row += 2
	head(fmt.Sprintf("A%d", row), "Caja")
	head(fmt.Sprintf("B%d", row), "Apertura")
	head(fmt.Sprintf("C%d", row), "Cierre")
	head(fmt.Sprintf("D%d", row), "Estado")
	for _, s := range r.Sessions {
		row++
		set(fmt.Sprintf("A%d", row), s.UserID.String())
		set(fmt.Sprintf("B%d", row), service.NumericToDecimal(s.StartAmount).StringFixed(2))
		if s.EndAmount.Valid {
			set(fmt.Sprintf("C%d", row), service.NumericToDecimal(s.EndAmount).StringFixed(2))
		}
		set(fmt.Sprintf("D%d", row), s.Status)
	}

	return f, nil
}
