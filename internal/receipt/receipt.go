// Package receipt renders a persisted sale into the fixed-width text
// grid a thermal printer expects. Output is byte-identical for the
// same sale and store details; nothing here reads the clock.
package receipt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/money"
)

// DefaultWidth is the column count of a standard 80mm thermal roll.
const DefaultWidth = 42

const nameCols = 18

// Format renders the receipt text block for a sale.
func Format(sale domain.Sale, store domain.StoreDetails, width int) string {
	if width < 32 {
		width = DefaultWidth
	}
	rule := strings.Repeat("-", width)
	inv := sale.Invoice

	lines := make([]string, 0, 24+len(inv.Items))
	lines = append(lines, center(store.Name, width))
	if store.Address != "" {
		lines = append(lines, center(store.Address, width))
	}
	if store.Phone != "" {
		lines = append(lines, center("Ph: "+store.Phone, width))
	}
	if store.GSTIN != "" {
		lines = append(lines, center("GSTIN: "+store.GSTIN, width))
	}
	lines = append(lines, rule)
	lines = append(lines, "Bill No : "+sale.BillNumber)
	lines = append(lines, "Date    : "+sale.CreatedAt.Format("02-01-2006 15:04"))
	if sale.SoldBy != "" {
		lines = append(lines, "Cashier : "+sale.SoldBy)
	}
	if sale.CustomerName != "" {
		lines = append(lines, "Customer: "+sale.CustomerName)
	}
	lines = append(lines, rule)
	lines = append(lines, itemRow("Item", "Qty", "Rate", "Amount", width))
	lines = append(lines, rule)

	for _, item := range inv.Items {
		amount := formatAmount(item.PriceAtSale * item.Quantity)
		if item.IsFreeItem {
			amount = "FREE"
		}
		lines = append(lines, itemRow(
			truncate(item.ProductName, nameCols),
			formatQty(item.Quantity, item.UnitType),
			formatAmount(item.PriceAtSale),
			amount,
			width,
		))
	}

	lines = append(lines, rule)
	if inv.MRPTotal > inv.DisplaySubtotal {
		lines = append(lines, totalRow("MRP Total", formatAmount(inv.MRPTotal), width))
		lines = append(lines, totalRow("You Saved", formatAmount(inv.ItemSavings), width))
	}
	lines = append(lines, totalRow("Subtotal", formatAmount(inv.DisplaySubtotal), width))
	if inv.AdditionalDiscountAmount > 0 {
		lines = append(lines, totalRow("Discount", "-"+formatAmount(inv.AdditionalDiscountAmount), width))
	}
	if inv.LoyaltyDiscountAmount > 0 {
		label := fmt.Sprintf("Loyalty (%d pts)", inv.LoyaltyPointsUsed)
		lines = append(lines, totalRow(label, "-"+formatAmount(inv.LoyaltyDiscountAmount), width))
	}
	if inv.GSTForDB > 0 {
		// Display convention: inclusive GST shown as equal CGST/SGST
		// halves. The ledger keeps the unsplit sum.
		half := money.Round2(inv.GSTForDB / 2)
		lines = append(lines, totalRow("CGST (incl)", formatAmount(half), width))
		lines = append(lines, totalRow("SGST (incl)", formatAmount(inv.GSTForDB-half), width))
	}
	if money.Round2(inv.RoundOffAmount) != 0 {
		lines = append(lines, totalRow("Round Off", formatSigned(inv.RoundOffAmount), width))
	}
	lines = append(lines, rule)
	lines = append(lines, totalRow("TOTAL", formatAmount(inv.TotalAmount), width))
	lines = append(lines, rule)
	lines = append(lines, "Payment : "+sale.PaymentMode)
	if sale.PaymentMode == domain.PaymentCash {
		lines = append(lines, totalRow("Received", formatAmount(sale.AmountReceived), width))
		lines = append(lines, totalRow("Change", formatAmount(sale.ChangeGiven), width))
	}
	if inv.LoyaltyPointsEarned > 0 {
		lines = append(lines, totalRow("Points Earned", fmt.Sprintf("%d", inv.LoyaltyPointsEarned), width))
	}
	lines = append(lines, rule)
	footer := store.Footer
	if footer == "" {
		footer = "Thank you, visit again!"
	}
	lines = append(lines, center(footer, width))
	lines = append(lines, "")

	return strings.Join(lines, "\n")
}

// EscposEncode wraps the receipt text in ESC/POS initialize and
// partial-cut commands for the local printer bridge.
func EscposEncode(text string) []byte {
	buf := []byte{0x1b, 0x40}
	buf = append(buf, []byte(text)...)
	buf = append(buf, '\n')
	buf = append(buf, []byte{0x1d, 0x56, 0x41, 0x10}...)
	return buf
}

// itemRow lays out name | qty | rate | amount with the amount's last
// character on the right margin.
func itemRow(name string, qty string, rate string, amount string, width int) string {
	rest := width - nameCols
	qtyCols := 5
	rateCols := (rest - qtyCols) / 2
	amountCols := rest - qtyCols - rateCols
	return padRight(truncate(name, nameCols), nameCols) +
		padLeft(qty, qtyCols) + padLeft(rate, rateCols) + padLeft(amount, amountCols)
}

// totalRow right-pads the label and left-pads the value so the value
// ends exactly at the right margin.
func totalRow(label string, value string, width int) string {
	if utf8.RuneCountInString(label)+utf8.RuneCountInString(value) >= width {
		label = truncate(label, width-utf8.RuneCountInString(value)-1)
	}
	return label + padLeft(value, width-utf8.RuneCountInString(label))
}

func center(s string, width int) string {
	s = truncate(s, width)
	pad := (width - utf8.RuneCountInString(s)) / 2
	return strings.Repeat(" ", pad) + s
}

// Column arithmetic counts runes, never bytes, so Devanagari product
// names stay on the grid instead of splitting mid-rune.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func padRight(s string, cols int) string {
	if gap := cols - utf8.RuneCountInString(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

func padLeft(s string, cols int) string {
	if gap := cols - utf8.RuneCountInString(s); gap > 0 {
		return strings.Repeat(" ", gap) + s
	}
	return s
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", money.Round2(v))
}

func formatSigned(v float64) string {
	v = money.Round2(v)
	if v > 0 {
		return "+" + fmt.Sprintf("%.2f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

func formatQty(qty float64, unitType string) string {
	if unitType == domain.UnitWeight {
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", qty), "0"), ".")
	}
	return fmt.Sprintf("%.0f", qty)
}
