package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"rsc.io/qr"
)

const qrQuietZone = 2

// RenderQR draws text as a QR code using half-block characters, two
// modules per terminal row. Dark modules are drawn in the foreground
// colour on a light background so the code scans on dark terminals.
func RenderQR(text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("nothing to encode")
	}
	code, err := qr.Encode(text, qr.M)
	if err != nil {
		return "", fmt.Errorf("encoding qr code: %w", err)
	}

	lo := -qrQuietZone
	hi := code.Size + qrQuietZone
	var rows []string
	for y := lo; y < hi; y += 2 {
		var b strings.Builder
		for x := lo; x < hi; x++ {
			top := code.Black(x, y)
			bottom := y+1 < hi && code.Black(x, y+1)
			switch {
			case top && bottom:
				b.WriteString("█")
			case top:
				b.WriteString("▀")
			case bottom:
				b.WriteString("▄")
			default:
				b.WriteString(" ")
			}
		}
		rows = append(rows, b.String())
	}

	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("15"))
	for i, row := range rows {
		rows[i] = style.Render(row)
	}
	return strings.Join(rows, "\n"), nil
}

// FormatPrice renders a price in VND with dot thousands separators,
// e.g. "1.200.000 VND".
func FormatPrice(price decimal.Decimal) string {
	digits := price.Abs().Round(0).StringFixed(0)
	var b strings.Builder
	if price.IsNegative() {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte('.')
		b.WriteString(digits[i : i+3])
	}
	b.WriteString(" VND")
	return b.String()
}
