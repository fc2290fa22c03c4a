package backtesting

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

var tradeCSVHeader = []string{
	"id", "contract", "type", "strike", "expiration", "quantity",
	"entry_premium", "current_premium", "target_premium", "stop_premium",
	"status", "opened_at", "closed_at", "close_reason", "condition",
	"confidence", "profit", "profit_percent", "commission", "tax",
}

// WriteTradesCSV writes one row per trade in open order
func WriteTradesCSV(w io.Writer, trades []SimulatedTrade) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(tradeCSVHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, t := range trades {
		closedAt := ""
		if t.ClosedAt != nil {
			closedAt = t.ClosedAt.Format(time.DateOnly)
		}
		record := []string{
			t.ID,
			t.ContractID,
			string(t.Type),
			t.Strike.String(),
			t.Expiration.Format(time.DateOnly),
			strconv.FormatInt(t.Quantity, 10),
			t.EntryPremium.StringFixed(2),
			t.CurrentPremium.StringFixed(2),
			t.TargetPremium.StringFixed(2),
			t.StopPremium.StringFixed(2),
			string(t.Status),
			t.OpenedAt.Format(time.DateOnly),
			closedAt,
			string(t.CloseReason),
			string(t.Condition),
			strconv.FormatFloat(t.ConfidenceScore, 'f', 2, 64),
			t.Profit.StringFixed(2),
			strconv.FormatFloat(t.ProfitPercent, 'f', 2, 64),
			t.Commission.StringFixed(2),
			t.Tax.StringFixed(2),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write trade %s: %w", t.ID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteEquityCSV writes the equity curve as date,equity,cash
func WriteEquityCSV(w io.Writer, curve []EquityPoint) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"date", "equity", "cash"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range curve {
		if err := writer.Write([]string{p.Date.Format(time.DateOnly), p.Equity.StringFixed(2), p.Cash.StringFixed(2)}); err != nil {
			return fmt.Errorf("write equity point: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
