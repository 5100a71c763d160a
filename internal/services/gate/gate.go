// Package gate holds the access decision for one (content, recipient) pair.
// The decision is deliberately separate from delivery mechanics: how an
// asset kind gets sent varies, whether it may be sent does not.
package gate

import "starcast/internal/domain"

// Action is the single outcome of a gate evaluation.
type Action int

const (
	// DeliverDirect sends the full asset with its caption.
	DeliverDirect Action = iota
	// DeliverLockedPreview withholds the asset behind an unlock affordance.
	DeliverLockedPreview
	// IssuePaymentRequest creates a payment invoice for the content.
	IssuePaymentRequest
)

func (a Action) String() string {
	switch a {
	case DeliverDirect:
		return "direct"
	case DeliverLockedPreview:
		return "locked_preview"
	case IssuePaymentRequest:
		return "payment_request"
	default:
		return "unknown"
	}
}

// Decide returns how content may reach a recipient. owned is whether a
// purchase record exists for the pair; free content ignores it.
func Decide(c *domain.Content, owned bool) Action {
	if c.Free() || owned {
		return DeliverDirect
	}
	return DeliverLockedPreview
}

// DecideUnlock is the explicit unlock path: tapping the unlock affordance on
// locked content yields a payment request, unless the recipient already owns
// it (or it became free), in which case delivery is direct.
func DecideUnlock(c *domain.Content, owned bool) Action {
	if c.Free() || owned {
		return DeliverDirect
	}
	return IssuePaymentRequest
}
