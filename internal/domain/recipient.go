package domain

import "time"

// Recipient is a private-chat subscriber. Created on first contact,
// never deleted.
type Recipient struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
	JoinedAt  time.Time
	Active    bool
}

// Purchase is one row of the append-only purchase ledger. Existence of a row
// for (UserID, ContentID) is the sole authority for "owns content".
type Purchase struct {
	ID          int64
	UserID      int64
	ContentID   int64
	StarsPaid   int
	PaymentRef  string
	PurchasedAt time.Time
}

// Stats is the aggregate snapshot reported to operators.
type Stats struct {
	Recipients    int64
	ActiveContent int64
	Purchases     int64
	StarsRevenue  int64
}
