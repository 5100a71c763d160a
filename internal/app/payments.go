package app

import (
	"context"
	"errors"
	"fmt"

	"starcast/internal/domain"
	"starcast/internal/observability/metrics"
	"starcast/internal/storage"
	"starcast/internal/transport"
	"starcast/pkg/logx"
)

// handleCheckout answers the pre-checkout query. Approval requires the
// content to still exist, still be active and still be priced; otherwise the
// client shows the rejection message instead of charging stars.
func (a *App) handleCheckout(ctx context.Context, q *transport.Checkout) {
	ok, reason := a.checkoutVerdict(ctx, q)
	if err := a.adapter.AnswerCheckout(ctx, q.ID, ok, reason); err != nil {
		a.log.Error("checkout answer failed", logx.String("id", q.ID), logx.Err(err))
	}
}

func (a *App) checkoutVerdict(ctx context.Context, q *transport.Checkout) (bool, string) {
	id, err := domain.ParsePayloadToken(q.Payload)
	if err != nil {
		a.log.Warn("checkout with malformed payload", logx.String("payload", q.Payload), logx.Int64("user", q.FromID))
		return false, textCheckoutGone
	}
	c, err := a.store.GetContent(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			a.log.Error("checkout content lookup failed", logx.Int64("content", id), logx.Err(err))
		}
		return false, textCheckoutGone
	}
	if !c.Active || c.Free() {
		return false, textCheckoutGone
	}
	a.log.Info("checkout approved",
		logx.Int64("user", q.FromID),
		logx.Int64("content", id),
		logx.Int("total", q.Total))
	return true, ""
}

// handlePayment records the successful payment and hands the buyer the
// content. Recording comes first: a delivery hiccup must not lose the
// ledger row, the buyer can always /catalog the content again.
func (a *App) handlePayment(ctx context.Context, p *transport.Payment) {
	id, err := domain.ParsePayloadToken(p.Payload)
	if err != nil {
		a.log.Error("payment with malformed payload", logx.String("payload", p.Payload), logx.Int64("user", p.FromID))
		return
	}
	to := transport.DeliveryTarget{UserID: p.FromID, ChatID: p.ChatID}

	if err := a.store.RecordPurchase(ctx, p.FromID, id, p.Total, p.PaymentRef); err != nil {
		// The money moved; log loudly and still try to deliver.
		a.log.Error("purchase record failed",
			logx.Int64("user", p.FromID),
			logx.Int64("content", id),
			logx.String("ref", p.PaymentRef),
			logx.Err(err))
	}
	metrics.PaymentsTotal.Inc()
	metrics.StarsRevenue.Add(float64(p.Total))
	a.log.Info("payment received",
		logx.Int64("user", p.FromID),
		logx.Int64("content", id),
		logx.Int("stars", p.Total),
		logx.String("ref", p.PaymentRef))

	c, err := a.store.GetContent(ctx, id)
	if err != nil {
		a.log.Error("paid content lookup failed", logx.Int64("content", id), logx.Err(err))
		a.reply(ctx, to, textPaidContentGone)
		return
	}

	a.reply(ctx, to, fmt.Sprintf(textPaymentThanks, c.Title))
	if err := a.dispatcher.DeliverDirect(ctx, c, to); err != nil {
		a.log.Error("paid delivery failed", logx.Int64("user", p.FromID), logx.Int64("content", id), logx.Err(err))
		a.reply(ctx, to, textPaidDeliveryRetry)
	}
}
