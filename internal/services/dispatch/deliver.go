package dispatch

import (
	"context"
	"fmt"

	"starcast/internal/domain"
	"starcast/internal/services/gate"
	"starcast/internal/transport"
)

// UnlockCallbackPrefix is the callback-data prefix of the unlock button on a
// locked text/document preview; the suffix is the content id.
const UnlockCallbackPrefix = "buy_content_"

// DeliverTo runs the purchase gate for one (content, recipient) pair and
// performs the corresponding delivery call. It returns the gate's action so
// callers can account for locked vs direct sends.
func (d *Dispatcher) DeliverTo(ctx context.Context, c *domain.Content, to transport.DeliveryTarget) (gate.Action, error) {
	owned, err := d.store.HasPurchased(ctx, to.UserID, c.ID)
	if err != nil {
		return gate.DeliverLockedPreview, fmt.Errorf("purchase lookup: %w", err)
	}
	act := gate.Decide(c, owned)
	switch act {
	case gate.DeliverDirect:
		err = d.DeliverDirect(ctx, c, to)
	case gate.DeliverLockedPreview:
		err = d.deliverLocked(ctx, c, to)
	}
	return act, err
}

// DeliverDirect sends the full content. Also used after a successful
// purchase, where the gate decision is already settled.
func (d *Dispatcher) DeliverDirect(ctx context.Context, c *domain.Content, to transport.DeliveryTarget) error {
	caption := Caption(c)
	switch c.Kind {
	case domain.KindText:
		// Text drops often carry links; don't let the client unfurl them.
		_, err := d.gateway.SendText(ctx, to, caption, &transport.SendOptions{DisablePreview: true})
		return err
	case domain.KindMediaGroup:
		items := make([]transport.GroupItem, len(c.Assets))
		for i, a := range c.Assets {
			items[i] = transport.GroupItem{Kind: a.Kind, FileID: a.FileID}
		}
		// The platform shows the album caption from its first item.
		items[0].Caption = caption
		return d.gateway.SendAssetGroup(ctx, to, items)
	default:
		return d.gateway.SendAsset(ctx, to, c.Kind, c.Assets[0].FileID, caption)
	}
}

// deliverLocked withholds the content. Photo and video assets go through the
// platform's paid-media primitive, which renders its own blurred preview and
// pay-to-unlock control. Documents and text, which paid media does not
// support, get a text preview with an unlock button instead.
func (d *Dispatcher) deliverLocked(ctx context.Context, c *domain.Content, to transport.DeliveryTarget) error {
	if paidMediaCapable(c) {
		return d.gateway.SendPaidAsset(ctx, to, c.PriceStars, c.Assets, Caption(c))
	}
	markup := transport.NewMarkup(transport.Row(
		transport.Btn(
			fmt.Sprintf("💫 Unlock for %d ⭐", c.PriceStars),
			fmt.Sprintf("%s%d", UnlockCallbackPrefix, c.ID),
		),
	))
	_, err := d.gateway.SendText(ctx, to, LockedPreview(c), &transport.SendOptions{DisablePreview: true, Markup: markup})
	return err
}

func paidMediaCapable(c *domain.Content) bool {
	if len(c.Assets) == 0 {
		return false
	}
	for _, a := range c.Assets {
		if a.Kind != domain.KindPhoto && a.Kind != domain.KindVideo {
			return false
		}
	}
	return true
}

// Caption renders the user-facing text of a content record.
func Caption(c *domain.Content) string {
	return fmt.Sprintf("📺 %s\n\n%s", c.Title, c.Description)
}

// LockedPreview renders the withheld-content text shown above the unlock
// button.
func LockedPreview(c *domain.Content) string {
	return fmt.Sprintf("📺 %s\n\n%s\n\n💰 Price: %d ⭐\n🔒 This content requires a purchase to access.",
		c.Title, c.Description, c.PriceStars)
}
