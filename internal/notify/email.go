package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/bookwise-api/internal/common"
	"github.com/noah-isme/bookwise-api/internal/obs"
	"github.com/noah-isme/bookwise-api/internal/queue"
	"github.com/noah-isme/bookwise-api/internal/resilience"
)

// OrderConfirmationSubject is the subject line of order confirmation emails.
const OrderConfirmationSubject = "Order Confirmed - BookWise Pro"

// Mailer renders transactional emails and sends them through a breaker-guarded sender.
type Mailer struct {
	Sender  common.EmailSender
	Breaker *resilience.Breaker
	Logger  zerolog.Logger
}

// SendOrderConfirmation implements queue.OrderMailer.
func (m Mailer) SendOrderConfirmation(ctx context.Context, p queue.OrderConfirmation) error {
	if m.Sender == nil {
		return nil
	}
	msg := common.Email{
		To:      p.Email,
		ToName:  p.Name,
		Subject: OrderConfirmationSubject,
		Text:    orderText(p),
		HTML:    orderHTML(p),
	}
	send := func(ctx context.Context) error { return m.Sender.Send(ctx, msg) }
	var err error
	if m.Breaker != nil {
		err = m.Breaker.Execute(ctx, send)
	} else {
		err = send(ctx)
	}
	if err != nil {
		obs.Inc(obs.EmailDeliveriesTotal, "error")
		return fmt.Errorf("send order confirmation %s: %w", p.OrderID, err)
	}
	obs.Inc(obs.EmailDeliveriesTotal, "sent")
	m.Logger.Info().Str("order_id", p.OrderID).Msg("order confirmation sent")
	return nil
}

func orderText(p queue.OrderConfirmation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your order #%s is confirmed! Total: %s %s. Thank you!\n", p.OrderID, p.Total, p.Currency)
	if len(p.Lines) > 0 {
		b.WriteString("\n")
		for _, l := range p.Lines {
			fmt.Fprintf(&b, "- %s x%d @ %s USD\n", l.Title, l.Quantity, l.UnitPrice)
		}
	}
	if p.Code != "" {
		fmt.Fprintf(&b, "\nDiscount %s saved you %s %s.\n", p.Code, p.Discount, p.Currency)
	}
	return b.String()
}

func orderHTML(p queue.OrderConfirmation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Your order <strong>#%s</strong> is confirmed! Total: <strong>%s %s</strong>. Thank you!</p>",
		html.EscapeString(p.OrderID), html.EscapeString(p.Total), html.EscapeString(p.Currency))
	if len(p.Lines) > 0 {
		b.WriteString("<ul>")
		for _, l := range p.Lines {
			fmt.Fprintf(&b, "<li>%s &times; %d</li>", html.EscapeString(l.Title), l.Quantity)
		}
		b.WriteString("</ul>")
	}
	return b.String()
}
