package sales

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/nahum29/tiendita/internal/shared"
)

// StoreName heads every ticket.
const StoreName = "Tiendita C.P.S"

// Renderer converts HTML into a PDF.
type Renderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

var ticketTemplate = template.Must(template.New("ticket").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Store}}</title>
<style>
@page { size: 80mm {{.HeightMM}}mm; margin: 4mm; }
body { font-family: monospace; font-size: 8pt; width: 72mm; }
h1 { font-size: 12pt; text-align: center; margin: 0 0 2mm; }
.row { display: flex; justify-content: space-between; }
.total { font-size: 10pt; font-weight: bold; }
.footer { text-align: center; margin-top: 4mm; }
</style></head>
<body>
<h1>{{.Store}}</h1>
<div>Venta: {{.SaleID}}</div>
<div>Fecha: {{.Date}}</div>
{{- if .Customer}}
<div>Cliente: {{.Customer}}</div>
{{- end}}
<hr>
{{- range .Lines}}
<div>{{.Name}}</div>
<div class="row"><span>{{.Quantity}} x {{.Unit}}</span><span>{{.Total}}</span></div>
{{- end}}
<hr>
<div class="row total"><span>Total:</span><span>{{.Total}}</span></div>
{{- if .Payment}}
<div>Pago: {{.Payment}}</div>
{{- end}}
<div class="footer"><strong>DLP</strong><br><small>Dios le pague</small></div>
</body></html>
`))

type ticketLine struct {
	Name     string
	Quantity string
	Unit     string
	Total    string
}

type ticketView struct {
	Store    string
	SaleID   string
	Date     string
	Customer string
	Lines    []ticketLine
	Total    string
	Payment  string
	HeightMM int
}

// TicketHTML renders the thermal ticket of a sale. Times print in loc.
func TicketHTML(sale Sale, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	view := ticketView{
		Store:    StoreName,
		SaleID:   sale.ID.String(),
		Date:     sale.CreatedAt.In(loc).Format("02/01/2006 15:04"),
		Customer: sale.CustomerName,
		Total:    shared.FormatMoney(sale.Total),
		HeightMM: max(80, 50+len(sale.Items)*6),
	}
	for _, it := range sale.Items {
		view.Lines = append(view.Lines, ticketLine{
			Name:     it.ProductName,
			Quantity: it.QuantityLabel(),
			Unit:     shared.FormatMoney(it.UnitPrice),
			Total:    shared.FormatMoney(it.TotalPrice),
		})
	}
	if sale.Status == StatusPaid {
		view.Payment = fmt.Sprintf("%s (%s)", shared.FormatMoney(sale.Total), sale.Method)
	}
	var buf bytes.Buffer
	if err := ticketTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("sales: render ticket: %w", err)
	}
	return buf.String(), nil
}
