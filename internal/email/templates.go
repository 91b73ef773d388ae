package email

import (
	"fmt"
	"strings"

	"github.com/clovemart/clovemart/internal/models"
)

// BuildOrderConfirmation renders the post-payment confirmation from the
// order's frozen metadata snapshot; nothing here is recomputed.
func BuildOrderConfirmation(order *models.Order) *Email {
	var items strings.Builder
	for _, item := range order.Items {
		fmt.Fprintf(&items, "- %s x%d — ₹%.2f\n", item.SKU, item.Quantity, paiseToRupees(item.SubtotalPaise))
	}

	address := order.Metadata.ShippingAddress
	addressLines := []string{order.Metadata.CustomerName, address.Line1}
	if address.Line2 != "" {
		addressLines = append(addressLines, address.Line2)
	}
	addressLines = append(addressLines,
		fmt.Sprintf("%s, %s %s", address.City, address.State, address.Pincode),
		address.Country,
	)

	text := fmt.Sprintf(`Hi %s,

Thanks for your order %s! Your payment has been received.

Items:
%s
Subtotal: ₹%.2f
Shipping: ₹%.2f
Total: ₹%.2f

Shipping to:
%s

We'll email you again when your order ships.
`,
		order.Metadata.CustomerName,
		order.OrderNumber,
		items.String(),
		paiseToRupees(order.SubtotalPaise),
		paiseToRupees(order.ShippingFeePaise),
		paiseToRupees(order.TotalPaise),
		strings.Join(addressLines, "\n"),
	)

	return &Email{
		To:      order.Metadata.CustomerEmail,
		Subject: fmt.Sprintf("Order %s confirmed", order.OrderNumber),
		Text:    text,
	}
}

// BuildOTP renders the login-code email.
func BuildOTP(to, code string, minutesValid int) *Email {
	return &Email{
		To:      to,
		Subject: "Your Clovemart login code",
		Text: fmt.Sprintf(`Your one-time login code is %s.

It expires in %d minutes. If you didn't request this, you can ignore this email.
`, code, minutesValid),
	}
}

func paiseToRupees(paise int) float64 {
	return float64(paise) / 100
}
