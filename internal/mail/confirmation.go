package mail

import (
	"bytes"
	"fmt"
	"html/template"

	"sevirun/internal/domain"
)

// Confirmation is the data behind the order confirmation e-mail.
type Confirmation struct {
	Order          domain.Order
	TrackingNumber string
	TrackingURL    string
}

type confirmationView struct {
	Confirmation
	Totals domain.OrderTotals
}

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<body>
<h1>Thank you for your order #{{.Order.ID}}</h1>
<p>Tracking number: <strong>{{.TrackingNumber}}</strong><br>
Follow your order at <a href="{{.TrackingURL}}">{{.TrackingURL}}</a></p>
<table>
<tr><th>Product</th><th>Size</th><th>Colour</th><th>Qty</th><th>Price</th></tr>
{{range .Order.Lines}}<tr><td>{{.ProductName}}</td><td>{{.SizeName}}</td><td>{{.ColourName}}</td><td>{{.Quantity}}</td><td>{{.Total.StringFixed 2}} €</td></tr>
{{end}}</table>
<p>Subtotal: {{.Totals.Subtotal.StringFixed 2}} €<br>
Delivery: {{.Totals.DeliveryCost.StringFixed 2}} €<br>
VAT: {{.Totals.Tax.StringFixed 2}} €<br>
{{if .Totals.Discount.IsPositive}}Discount: -{{.Totals.Discount.StringFixed 2}} €<br>{{end}}
<strong>Total: {{.Totals.Total.StringFixed 2}} €</strong></p>
{{if .Order.ShippingAddress}}<p>Shipping to: {{.Order.ShippingAddress}}</p>{{end}}
<p>Payment: {{if eq .Order.PaymentMethod "cash"}}cash on delivery{{else}}card{{end}}</p>
</body>
</html>
`))

// OrderConfirmation renders the confirmation message for recipient.
func OrderConfirmation(to string, c Confirmation) (Message, error) {
	var buf bytes.Buffer
	if err := confirmationTemplate.Execute(&buf, confirmationView{Confirmation: c, Totals: c.Order.Totals()}); err != nil {
		return Message{}, fmt.Errorf("mail: render confirmation: %w", err)
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Order #%d confirmed", c.Order.ID),
		HTML:    buf.String(),
	}, nil
}
