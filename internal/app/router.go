package app

import (
	"context"
	"runtime/debug"
	"strings"

	"starcast/internal/domain"
	"starcast/internal/transport"
	"starcast/pkg/logx"
)

// route is the single event loop: updates are handled in arrival order, so
// an operator's "next message" deterministically follows the prompt that
// armed the awaited field.
func (a *App) route(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-a.updates:
			a.handle(ctx, up)
		}
	}
}

func (a *App) handle(ctx context.Context, up transport.Update) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("panic in update handler", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil {
			a.handleMessage(ctx, up.Message)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			a.handleCallback(ctx, up.Callback)
		}
	case transport.UpdateCheckout:
		if up.Checkout != nil {
			a.handleCheckout(ctx, up.Checkout)
		}
	case transport.UpdatePayment:
		if up.Payment != nil {
			a.handlePayment(ctx, up.Payment)
		}
	}
}

func (a *App) handleMessage(ctx context.Context, m *transport.Message) {
	if m.IsGroup {
		return
	}
	to := transport.DeliveryTarget{UserID: m.FromID, ChatID: m.ChatID}
	admin := a.isAdmin(m.FromID)

	if m.Media != nil {
		if !admin {
			// Subscribers don't upload; stay silent like a real channel.
			return
		}
		a.aggregator.Add(m.Media.AlbumID, m.FromID, m.ChatID, domain.Asset{
			Kind:   m.Media.Kind,
			FileID: m.Media.FileID,
		}, m.Media.Caption)
		return
	}

	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}
	if strings.HasPrefix(text, "/") {
		a.handleCommand(ctx, m, to, admin, text)
		return
	}
	if admin {
		a.handleDraftInput(ctx, to, text)
	}
}

func (a *App) handleCommand(ctx context.Context, m *transport.Message, to transport.DeliveryTarget, admin bool, text string) {
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/start":
		a.cmdStart(ctx, m, to, admin)
	case "/help":
		a.reply(ctx, to, textHelp)
	case "/catalog":
		a.cmdCatalog(ctx, to)
	case "/resync":
		a.cmdResync(ctx, to)
	case "/admin":
		if admin {
			a.cmdAdmin(ctx, to)
		}
	case "/stats":
		if admin {
			a.cmdStats(ctx, to)
		}
	case "/draft":
		if admin {
			a.cmdTextDraft(ctx, to)
		}
	case "/cancel":
		if admin {
			a.cmdCancel(ctx, to)
		}
	default:
		a.reply(ctx, to, textUnknownCommand)
	}
}

func (a *App) reply(ctx context.Context, to transport.DeliveryTarget, text string) {
	if _, err := a.adapter.SendText(ctx, to, text, nil); err != nil {
		a.log.Warn("reply failed", logx.Int64("user", to.UserID), logx.Err(err))
	}
}

func (a *App) replyMarkup(ctx context.Context, to transport.DeliveryTarget, text string, markup *transport.InlineMarkup) {
	if _, err := a.adapter.SendText(ctx, to, text, &transport.SendOptions{Markup: markup}); err != nil {
		a.log.Warn("reply failed", logx.Int64("user", to.UserID), logx.Err(err))
	}
}
