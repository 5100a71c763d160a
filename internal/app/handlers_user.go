package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"starcast/internal/domain"
	"starcast/internal/services/dispatch"
	"starcast/internal/services/gate"
	"starcast/internal/storage"
	"starcast/internal/transport"
	"starcast/pkg/logx"
)

const viewCallbackPrefix = "view_content_"

func (a *App) cmdStart(ctx context.Context, m *transport.Message, to transport.DeliveryTarget, admin bool) {
	err := a.store.UpsertRecipient(ctx, domain.Recipient{
		UserID:    m.FromID,
		Username:  m.FromUsername,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		JoinedAt:  time.Now(),
		Active:    true,
	})
	if err != nil {
		a.log.Error("recipient registration failed", logx.Int64("user", m.FromID), logx.Err(err))
	}

	text := fmt.Sprintf(textWelcome, displayName(m))
	if admin {
		text += textWelcomeAdminHint
	}
	a.reply(ctx, to, text)
}

func displayName(m *transport.Message) string {
	if m.FirstName != "" {
		return m.FirstName
	}
	if m.FromUsername != "" {
		return "@" + m.FromUsername
	}
	return "there"
}

func (a *App) cmdCatalog(ctx context.Context, to transport.DeliveryTarget) {
	catalog, err := a.store.ListActiveContent(ctx)
	if err != nil {
		a.log.Error("catalog listing failed", logx.Err(err))
		a.reply(ctx, to, textInternalError)
		return
	}
	if len(catalog) == 0 {
		a.reply(ctx, to, textCatalogEmpty)
		return
	}

	rows := make([][]transport.InlineButton, 0, len(catalog))
	for _, c := range catalog {
		price := "FREE"
		if c.PriceStars > 0 {
			price = fmt.Sprintf("%d ⭐", c.PriceStars)
		}
		rows = append(rows, transport.Row(transport.Btn(
			fmt.Sprintf("📺 %s — %s", c.Title, price),
			viewCallbackPrefix+strconv.FormatInt(c.ID, 10),
		)))
	}
	a.replyMarkup(ctx, to, textCatalogHeader, transport.NewMarkup(rows...))
}

func (a *App) cmdResync(ctx context.Context, to transport.DeliveryTarget) {
	a.dispatcher.Resync(to)
	a.reply(ctx, to, textResyncStarted)
}

// callbackContent resolves the numeric suffix of a content callback.
func (a *App) callbackContent(ctx context.Context, data, prefix string) (*domain.Content, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
	if err != nil {
		return nil, err
	}
	return a.store.GetContent(ctx, id)
}

func (a *App) viewContent(ctx context.Context, cb *transport.Callback, to transport.DeliveryTarget) {
	c, err := a.callbackContent(ctx, cb.Data, viewCallbackPrefix)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			a.log.Error("content lookup failed", logx.String("data", cb.Data), logx.Err(err))
		}
		a.reply(ctx, to, textContentGone)
		return
	}
	if !c.Active {
		a.reply(ctx, to, textContentGone)
		return
	}
	if _, err := a.dispatcher.DeliverTo(ctx, c, to); err != nil {
		a.log.Warn("catalog delivery failed", logx.Int64("user", to.UserID), logx.Int64("content", c.ID), logx.Err(err))
	}
}

// unlockContent handles the explicit unlock action on locked content.
func (a *App) unlockContent(ctx context.Context, cb *transport.Callback, to transport.DeliveryTarget) {
	c, err := a.callbackContent(ctx, cb.Data, dispatch.UnlockCallbackPrefix)
	if err != nil || !c.Active {
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			a.log.Error("content lookup failed", logx.String("data", cb.Data), logx.Err(err))
		}
		a.reply(ctx, to, textContentGone)
		return
	}
	owned, err := a.store.HasPurchased(ctx, to.UserID, c.ID)
	if err != nil {
		a.log.Error("purchase lookup failed", logx.Int64("user", to.UserID), logx.Err(err))
		a.reply(ctx, to, textInternalError)
		return
	}

	switch gate.DecideUnlock(c, owned) {
	case gate.DeliverDirect:
		if err := a.dispatcher.DeliverDirect(ctx, c, to); err != nil {
			a.log.Warn("owned delivery failed", logx.Int64("user", to.UserID), logx.Err(err))
		}
	case gate.IssuePaymentRequest:
		err := a.adapter.SendInvoice(ctx, to, "🌟 "+c.Title, c.Description, domain.PayloadToken(c.ID), c.PriceStars)
		if err != nil {
			a.log.Error("invoice failed", logx.Int64("user", to.UserID), logx.Int64("content", c.ID), logx.Err(err))
			a.reply(ctx, to, textInternalError)
		}
	}
}
