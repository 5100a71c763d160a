package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"starcast/internal/observability/metrics"
	"starcast/internal/services/dispatch"
	"starcast/internal/services/draft"
	"starcast/internal/transport"
	"starcast/pkg/logx"
)

// Callback routes. Content ids are appended to the *_content_ prefixes.
const (
	cbAdminAdd    = "admin_add_content"
	cbAdminManage = "admin_manage_content"
	cbAdminStats  = "admin_stats"

	cbDeletePrefix  = "del_content_"
	cbConfirmPrefix = "del_confirm_"

	cbDraftDescription = "draft_desc"
	cbDraftPrice       = "draft_price"
	cbDraftPricePrefix = "draft_price_set_"
	cbDraftPriceCustom = "draft_price_custom"
	cbDraftPublish     = "draft_publish"
	cbDraftCancel      = "draft_cancel"
)

func (a *App) handleCallback(ctx context.Context, cb *transport.Callback) {
	// Ack first so the client stops its spinner even if handling is slow.
	if err := a.adapter.AnswerCallback(ctx, cb.ID, ""); err != nil {
		a.log.Debug("callback ack failed", logx.String("id", cb.ID), logx.Err(err))
	}

	to := transport.DeliveryTarget{UserID: cb.FromID, ChatID: cb.ChatID}
	data := cb.Data

	switch {
	case strings.HasPrefix(data, viewCallbackPrefix):
		a.viewContent(ctx, cb, to)
		return
	case strings.HasPrefix(data, dispatch.UnlockCallbackPrefix):
		a.unlockContent(ctx, cb, to)
		return
	}

	if !a.isAdmin(cb.FromID) {
		return
	}

	switch {
	case data == cbAdminAdd:
		a.reply(ctx, to, textAdminAddHelp)
	case data == cbAdminManage:
		a.adminManage(ctx, to)
	case data == cbAdminStats:
		a.cmdStats(ctx, to)
	case strings.HasPrefix(data, cbDeletePrefix):
		a.adminDeleteAsk(ctx, cb, to)
	case strings.HasPrefix(data, cbConfirmPrefix):
		a.adminDeleteConfirm(ctx, cb, to)
	case data == cbDraftDescription:
		a.draftAwaitDescription(ctx, to)
	case data == cbDraftPrice:
		a.draftPriceMenu(ctx, to)
	case data == cbDraftPriceCustom:
		a.draftAwaitCustomPrice(ctx, to)
	case strings.HasPrefix(data, cbDraftPricePrefix):
		a.draftSetPrice(ctx, to, strings.TrimPrefix(data, cbDraftPricePrefix))
	case data == cbDraftPublish:
		a.draftPublish(ctx, to)
	case data == cbDraftCancel:
		a.cmdCancel(ctx, to)
	}
}

// ---- admin panel ----

func (a *App) cmdAdmin(ctx context.Context, to transport.DeliveryTarget) {
	markup := transport.NewMarkup(
		transport.Row(transport.Btn("➕ Add content", cbAdminAdd)),
		transport.Row(transport.Btn("📋 Manage content", cbAdminManage)),
		transport.Row(transport.Btn("📊 Stats", cbAdminStats)),
	)
	a.replyMarkup(ctx, to, textAdminPanel, markup)
}

func (a *App) cmdStats(ctx context.Context, to transport.DeliveryTarget) {
	text, err := a.stats.Render(ctx)
	if err != nil {
		a.log.Error("stats render failed", logx.Err(err))
		a.reply(ctx, to, textInternalError)
		return
	}
	a.reply(ctx, to, text)
}

func (a *App) adminManage(ctx context.Context, to transport.DeliveryTarget) {
	catalog, err := a.store.ListActiveContent(ctx)
	if err != nil {
		a.log.Error("catalog listing failed", logx.Err(err))
		a.reply(ctx, to, textInternalError)
		return
	}
	if len(catalog) == 0 {
		a.reply(ctx, to, textManageEmpty)
		return
	}
	rows := make([][]transport.InlineButton, 0, len(catalog))
	for _, c := range catalog {
		rows = append(rows, transport.Row(transport.Btn(
			fmt.Sprintf("🗑 %s (%d ⭐)", c.Title, c.PriceStars),
			cbDeletePrefix+strconv.FormatInt(c.ID, 10),
		)))
	}
	a.replyMarkup(ctx, to, textManageHeader, transport.NewMarkup(rows...))
}

func (a *App) adminDeleteAsk(ctx context.Context, cb *transport.Callback, to transport.DeliveryTarget) {
	c, err := a.callbackContent(ctx, cb.Data, cbDeletePrefix)
	if err != nil {
		a.reply(ctx, to, textContentGone)
		return
	}
	markup := transport.NewMarkup(transport.Row(
		transport.Btn("✅ Delete", cbConfirmPrefix+strconv.FormatInt(c.ID, 10)),
		transport.Btn("↩️ Back", cbAdminManage),
	))
	a.replyMarkup(ctx, to, fmt.Sprintf(textDeleteConfirm, c.Title), markup)
}

// adminDeleteConfirm hard-deletes the record. Purchases referencing the id
// stay in the ledger as historical rows.
func (a *App) adminDeleteConfirm(ctx context.Context, cb *transport.Callback, to transport.DeliveryTarget) {
	id, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, cbConfirmPrefix), 10, 64)
	if err != nil {
		return
	}
	deleted, err := a.store.DeleteContent(ctx, id)
	if err != nil {
		a.log.Error("content delete failed", logx.Int64("content", id), logx.Err(err))
		a.reply(ctx, to, textInternalError)
		return
	}
	if !deleted {
		a.reply(ctx, to, textContentGone)
		return
	}
	a.log.Info("content deleted", logx.Int64("content", id), logx.Int64("operator", to.UserID))
	a.reply(ctx, to, textDeleted)
}

// ---- draft flow ----

func (a *App) cmdTextDraft(ctx context.Context, to transport.DeliveryTarget) {
	sess, replaced := a.drafts.Begin(to.UserID, to.ChatID, nil, "")
	a.dropDraftCard(to.UserID)
	if replaced {
		a.reply(ctx, to, textDraftReplaced)
	}
	a.sendDraftCard(ctx, to, sess)
	metrics.OpenDrafts.Set(float64(a.drafts.OpenCount()))
}

func (a *App) cmdCancel(ctx context.Context, to transport.DeliveryTarget) {
	if a.drafts.Cancel(to.UserID) {
		a.dropDraftCard(to.UserID)
		a.reply(ctx, to, textDraftCancelled)
	} else {
		a.reply(ctx, to, textNoDraft)
	}
	metrics.OpenDrafts.Set(float64(a.drafts.OpenCount()))
}

// sendDraftCard shows the operator's draft card. Subsequent calls for the
// same operator edit the existing card in place; a send happens only for a
// fresh draft or when the old card can no longer be edited.
func (a *App) sendDraftCard(ctx context.Context, to transport.DeliveryTarget, sess draft.Session) {
	markup := transport.NewMarkup(
		transport.Row(
			transport.Btn("✏️ Description", cbDraftDescription),
			transport.Btn("⭐ Price", cbDraftPrice),
		),
		transport.Row(
			transport.Btn("🚀 Publish", cbDraftPublish),
			transport.Btn("✖️ Cancel", cbDraftCancel),
		),
	)
	text := renderDraftCard(sess)
	opt := &transport.SendOptions{Markup: markup}

	a.cardMu.Lock()
	ref, ok := a.draftCards[to.UserID]
	a.cardMu.Unlock()
	if ok {
		if err := a.adapter.EditText(ctx, ref, text, opt); err == nil {
			return
		}
		// The card message may be too old or deleted; send a fresh one.
	}

	newRef, err := a.adapter.SendText(ctx, to, text, opt)
	if err != nil {
		a.log.Warn("draft card failed", logx.Int64("operator", to.UserID), logx.Err(err))
		return
	}
	a.cardMu.Lock()
	a.draftCards[to.UserID] = newRef
	a.cardMu.Unlock()
}

func (a *App) dropDraftCard(userID int64) {
	a.cardMu.Lock()
	delete(a.draftCards, userID)
	a.cardMu.Unlock()
}

func (a *App) draftAwaitDescription(ctx context.Context, to transport.DeliveryTarget) {
	if err := a.drafts.AwaitDescription(to.UserID); err != nil {
		a.reply(ctx, to, textNoDraft)
		return
	}
	a.reply(ctx, to, textPromptDescription)
}

func (a *App) draftPriceMenu(ctx context.Context, to transport.DeliveryTarget) {
	if _, ok := a.drafts.Get(to.UserID); !ok {
		a.reply(ctx, to, textNoDraft)
		return
	}
	markup := transport.NewMarkup(
		transport.Row(
			transport.Btn("Free", cbDraftPricePrefix+"0"),
			transport.Btn("25 ⭐", cbDraftPricePrefix+"25"),
			transport.Btn("50 ⭐", cbDraftPricePrefix+"50"),
		),
		transport.Row(
			transport.Btn("100 ⭐", cbDraftPricePrefix+"100"),
			transport.Btn("Custom…", cbDraftPriceCustom),
		),
	)
	a.replyMarkup(ctx, to, textPromptPricePreset, markup)
}

func (a *App) draftAwaitCustomPrice(ctx context.Context, to transport.DeliveryTarget) {
	if err := a.drafts.AwaitCustomPrice(to.UserID); err != nil {
		a.reply(ctx, to, textNoDraft)
		return
	}
	a.reply(ctx, to, textPromptCustomPrice)
}

func (a *App) draftSetPrice(ctx context.Context, to transport.DeliveryTarget, raw string) {
	stars, err := strconv.Atoi(raw)
	if err != nil {
		return
	}
	sess, err := a.drafts.SetPrice(to.UserID, stars)
	if err != nil {
		a.reply(ctx, to, textNoDraft)
		return
	}
	a.sendDraftCard(ctx, to, sess)
}

// handleDraftInput consumes an operator's plain-text message as the value of
// the awaited draft field.
func (a *App) handleDraftInput(ctx context.Context, to transport.DeliveryTarget, text string) {
	sess, err := a.drafts.HandleText(to.UserID, text)
	switch {
	case err == nil:
		a.sendDraftCard(ctx, to, sess)
	case errors.Is(err, draft.ErrBadPrice):
		// Invalid input re-prompts; the awaited field stays armed.
		a.reply(ctx, to, textBadPrice)
	case errors.Is(err, draft.ErrEmptyDescription):
		a.reply(ctx, to, textEmptyDescription)
	case errors.Is(err, draft.ErrNoDraft), errors.Is(err, draft.ErrNotAwaiting):
		// Stray operator chatter; nothing is awaited.
	}
}

func (a *App) draftPublish(ctx context.Context, to transport.DeliveryTarget) {
	c, err := a.drafts.Publish(ctx, to.UserID)
	switch {
	case err == nil:
		metrics.ContentPublished.Inc()
		metrics.OpenDrafts.Set(float64(a.drafts.OpenCount()))
		a.dropDraftCard(to.UserID)
		a.reply(ctx, to, fmt.Sprintf(textPublished, c.Title))
		a.dispatcher.Broadcast(c)
	case errors.Is(err, draft.ErrNoDraft):
		a.reply(ctx, to, textNoDraft)
	case errors.Is(err, draft.ErrEmptyDescription):
		a.reply(ctx, to, textPublishNeedsDescription)
	case errors.Is(err, draft.ErrAwaitingField):
		a.reply(ctx, to, textPublishWhileAwaiting)
	default:
		// Persistence failure: the draft stays alive, nothing is lost.
		a.reply(ctx, to, textPublishFailed)
	}
}

func renderDraftCard(sess draft.Session) string {
	desc := sess.Description
	if strings.TrimSpace(desc) == "" {
		desc = "—"
	}
	price := "free"
	if sess.PriceStars > 0 {
		price = fmt.Sprintf("%d ⭐", sess.PriceStars)
	}
	return fmt.Sprintf(textDraftCard, string(sess.Kind), len(sess.Assets), desc, price)
}
