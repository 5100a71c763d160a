package transport

import (
	"context"

	"starcast/internal/domain"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
	UpdateCheckout UpdateKind = "checkout"
	UpdatePayment  UpdateKind = "payment"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
	Checkout *Checkout
	Payment  *Payment
}

// Message is an inbound private-chat message. At most one of Text or Media
// is meaningful; an album arrives as one Message per file sharing AlbumID.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	FirstName    string
	LastName     string
	Text         string
	Media        *Media
	IsGroup      bool
}

// Media describes one uploaded file. AlbumID is the platform-issued batch id
// grouping files uploaded together; empty for a standalone upload.
type Media struct {
	Kind    domain.MediaKind
	FileID  string
	AlbumID string
	Caption string
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

// Checkout is the platform's pre-checkout query; it must be answered before
// the payment proceeds.
type Checkout struct {
	ID      string
	FromID  int64
	Payload string
	Total   int
}

// Payment reports a settled payment.
type Payment struct {
	FromID     int64
	ChatID     int64
	Payload    string
	Total      int
	PaymentRef string
}

// DeliveryTarget identifies where a delivery goes. For private chats the
// chat id equals the user id, but callers pass both explicitly instead of
// fabricating platform update shapes for synthetic sends.
type DeliveryTarget struct {
	UserID int64
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	DisablePreview bool
	Markup         *InlineMarkup
}

// InlineMarkup is a platform-neutral inline keyboard. The adapter converts
// it to the platform's native markup type.
type InlineMarkup struct {
	Rows [][]InlineButton
}

type InlineButton struct {
	Text string
	Data string
}

func NewMarkup(rows ...[]InlineButton) *InlineMarkup {
	return &InlineMarkup{Rows: rows}
}

func Row(btns ...InlineButton) []InlineButton { return btns }

func Btn(text, data string) InlineButton { return InlineButton{Text: text, Data: data} }

// GroupItem is one entry of an album send.
type GroupItem struct {
	Kind    domain.MediaKind
	FileID  string
	Caption string
}

// Gateway is the outbound half of the platform boundary.
type Gateway interface {
	SendText(ctx context.Context, to DeliveryTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	SendAsset(ctx context.Context, to DeliveryTarget, kind domain.MediaKind, fileID, caption string) error
	SendAssetGroup(ctx context.Context, to DeliveryTarget, items []GroupItem) error
	SendPaidAsset(ctx context.Context, to DeliveryTarget, stars int, assets []domain.Asset, caption string) error
	SendInvoice(ctx context.Context, to DeliveryTarget, title, description, payload string, stars int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	AnswerCheckout(ctx context.Context, checkoutID string, ok bool, errMessage string) error
}

// Adapter is a platform transport: it feeds inbound updates into a channel
// and implements the outbound Gateway.
type Adapter interface {
	Gateway
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
