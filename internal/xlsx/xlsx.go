// Package xlsx serializes closed positions to and from Excel workbooks.
package xlsx

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/velora/optionsim/internal/domain"
)

const sheetName = "Positions"

// Column layout shared by Export and Import. Import reads the same
// indexes Export writes so a round trip reproduces the original rows.
var header = []string{
	"ID",
	"Symbol",
	"Direction",
	"Amount",
	"Entry Price",
	"Close Price",
	"Result",
	"PnL",
	"Settled At",
}

const settledAtLayout = "2006-01-02 15:04:05"

// ──────────────────────────────────────────────────────────────────────────────
// Export
// ──────────────────────────────────────────────────────────────────────────────

// Export writes the given closed positions as a single-sheet workbook.
// Positions that are still open are skipped.
func Export(w io.Writer, positions []*domain.Position, payoutRate decimal.Decimal) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for col, title := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetName, cell, title); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	row := 2
	for _, p := range positions {
		if p.IsOpen() || p.ClosePrice == nil || p.SettledAt == nil {
			continue
		}
		values := []any{
			p.ID.String(),
			p.Symbol,
			string(p.Direction),
			p.Amount.String(),
			p.EntryPrice.String(),
			p.ClosePrice.String(),
			string(p.Result),
			formatPnl(p.Pnl(payoutRate)),
			p.SettledAt.UTC().Format(settledAtLayout),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", row, err)
			}
		}
		row++
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// formatPnl renders profit with an explicit sign so exported sheets read
// the same way the trade history panel does.
func formatPnl(pnl decimal.Decimal) string {
	if pnl.IsNegative() {
		return pnl.String()
	}
	return "+" + pnl.String()
}

// ──────────────────────────────────────────────────────────────────────────────
// Import
// ──────────────────────────────────────────────────────────────────────────────

// Import parses a workbook produced by Export (or a hand-edited copy of
// one) and returns the closed positions it contains. Rows that cannot be
// parsed into a settled position are skipped rather than failing the
// whole file; a workbook that yields no positions at all is an error.
func Import(r io.Reader, defaultSymbol string) ([]*domain.Position, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrImportFormat, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrImportFormat, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: no data rows", domain.ErrImportFormat)
	}

	positions := make([]*domain.Position, 0, len(rows)-1)
	for _, row := range rows[1:] {
		p, ok := parseRow(row, defaultSymbol)
		if !ok {
			continue
		}
		positions = append(positions, p)
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("%w: no valid rows", domain.ErrImportFormat)
	}
	return positions, nil
}

func parseRow(row []string, defaultSymbol string) (*domain.Position, bool) {
	if len(row) < 8 {
		return nil, false
	}

	id, err := uuid.Parse(strings.TrimSpace(cell(row, 0)))
	if err != nil {
		return nil, false
	}

	direction := domain.Direction(strings.ToUpper(strings.TrimSpace(cell(row, 2))))
	if !direction.IsValid() {
		return nil, false
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(cell(row, 3)))
	if err != nil || !amount.IsPositive() {
		return nil, false
	}
	entryPrice, err := decimal.NewFromString(strings.TrimSpace(cell(row, 4)))
	if err != nil {
		return nil, false
	}
	closePrice, err := decimal.NewFromString(strings.TrimSpace(cell(row, 5)))
	if err != nil {
		return nil, false
	}

	result := domain.Result(strings.ToUpper(strings.TrimSpace(cell(row, 6))))
	if result != domain.ResultWin && result != domain.ResultLose {
		return nil, false
	}

	settledAt := time.Now().UTC()
	if t, err := time.Parse(settledAtLayout, strings.TrimSpace(cell(row, 8))); err == nil {
		settledAt = t.UTC()
	}

	symbol := strings.TrimSpace(cell(row, 1))
	if symbol == "" {
		symbol = defaultSymbol
	}

	cp := closePrice
	return &domain.Position{
		ID:         id,
		Symbol:     symbol,
		Direction:  direction,
		Amount:     amount,
		EntryPrice: entryPrice,
		ExpiryTime: settledAt,
		Status:     domain.StatusClosed,
		CreatedAt:  settledAt,
		Result:     result,
		ClosePrice: &cp,
		SettledAt:  &settledAt,
	}, true
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return row[idx]
}

