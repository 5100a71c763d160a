package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"starcast/internal/domain"
	"starcast/internal/services/gate"
	"starcast/internal/transport"
	"starcast/pkg/logx"
)

// memStore is an in-memory persistence fake for dispatcher tests.
type memStore struct {
	mu         sync.Mutex
	recipients []int64
	catalog    []domain.Content
	purchases  map[[2]int64]bool
}

func newMemStore() *memStore {
	return &memStore{purchases: make(map[[2]int64]bool)}
}

func (s *memStore) SaveContent(context.Context, *domain.Content) (int64, error) { return 0, nil }
func (s *memStore) GetContent(context.Context, int64) (*domain.Content, error) { return nil, nil }
func (s *memStore) ListActiveContent(context.Context) ([]domain.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Content(nil), s.catalog...), nil
}
func (s *memStore) DeleteContent(context.Context, int64) (bool, error) { return false, nil }
func (s *memStore) UpsertRecipient(context.Context, domain.Recipient) error { return nil }
func (s *memStore) ListRecipients(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.recipients...), nil
}
func (s *memStore) RecordPurchase(context.Context, int64, int64, int, string) error { return nil }
func (s *memStore) HasPurchased(_ context.Context, userID, contentID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purchases[[2]int64{userID, contentID}], nil
}
func (s *memStore) Stats(context.Context) (domain.Stats, error) { return domain.Stats{}, nil }
func (s *memStore) Close() error { return nil }

type sentCall struct {
	what      string // "text", "asset", "group", "paid"
	userID    int64
	noPreview bool
}

// memGateway records outbound calls and can fail specific recipients.
type memGateway struct {
	mu    sync.Mutex
	calls []sentCall
	fail  map[int64]error
}

func newMemGateway() *memGateway {
	return &memGateway{fail: make(map[int64]error)}
}

func (g *memGateway) record(call sentCall) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail[call.userID]; err != nil {
		return err
	}
	g.calls = append(g.calls, call)
	return nil
}

func (g *memGateway) sent() []sentCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sentCall(nil), g.calls...)
}

func (g *memGateway) SendText(_ context.Context, to transport.DeliveryTarget, _ string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return transport.MessageRef{}, g.record(sentCall{what: "text", userID: to.UserID, noPreview: opt != nil && opt.DisablePreview})
}
func (g *memGateway) EditText(context.Context, transport.MessageRef, string, *transport.SendOptions) error {
	return nil
}
func (g *memGateway) SendAsset(_ context.Context, to transport.DeliveryTarget, _ domain.MediaKind, _, _ string) error {
	return g.record(sentCall{what: "asset", userID: to.UserID})
}
func (g *memGateway) SendAssetGroup(_ context.Context, to transport.DeliveryTarget, _ []transport.GroupItem) error {
	return g.record(sentCall{what: "group", userID: to.UserID})
}
func (g *memGateway) SendPaidAsset(_ context.Context, to transport.DeliveryTarget, _ int, _ []domain.Asset, _ string) error {
	return g.record(sentCall{what: "paid", userID: to.UserID})
}
func (g *memGateway) SendInvoice(context.Context, transport.DeliveryTarget, string, string, string, int) error {
	return nil
}
func (g *memGateway) AnswerCallback(context.Context, string, string) error { return nil }
func (g *memGateway) AnswerCheckout(context.Context, string, bool, string) error { return nil }

func photoContent(id int64, price int) *domain.Content {
	return &domain.Content{
		ID:          id,
		Title:       "t",
		Description: "d",
		Kind:        domain.KindPhoto,
		Assets:      []domain.Asset{{Kind: domain.KindPhoto, FileID: "f"}},
		PriceStars:  price,
		Active:      true,
	}
}

func docContent(id int64, price int) *domain.Content {
	return &domain.Content{
		ID:          id,
		Title:       "t",
		Description: "d",
		Kind:        domain.KindDocument,
		Assets:      []domain.Asset{{Kind: domain.KindDocument, FileID: "f"}},
		PriceStars:  price,
		Active:      true,
	}
}

func fastDispatcher(store *memStore, gw *memGateway) *Dispatcher {
	return New(Config{RatePerSec: 1000, QueueSize: 8}, store, gw, logx.Nop())
}

func waitRun(t *testing.T, d *Dispatcher, id string) RunStatus {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		st, ok := d.Status(id)
		if ok && !st.Running && !st.DoneAt.IsZero() {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish", id)
	return RunStatus{}
}

func target(id int64) transport.DeliveryTarget {
	return transport.DeliveryTarget{UserID: id, ChatID: id}
}

func TestDeliverToGateRouting(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	store.purchases[[2]int64{3, 1}] = true
	gw := newMemGateway()
	d := fastDispatcher(store, gw)

	tests := []struct {
		name    string
		content *domain.Content
		user    int64
		wantAct gate.Action
		wantVia string
	}{
		{name: "free goes direct", content: photoContent(1, 0), user: 1, wantAct: gate.DeliverDirect, wantVia: "asset"},
		{name: "paid photo goes paid media", content: photoContent(1, 50), user: 2, wantAct: gate.DeliverLockedPreview, wantVia: "paid"},
		{name: "owned goes direct", content: photoContent(1, 50), user: 3, wantAct: gate.DeliverDirect, wantVia: "asset"},
		{name: "paid document gets preview", content: docContent(1, 50), user: 4, wantAct: gate.DeliverLockedPreview, wantVia: "text"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			before := len(gw.sent())
			act, err := d.DeliverTo(context.Background(), tt.content, target(tt.user))
			if err != nil {
				t.Fatalf("DeliverTo: %v", err)
			}
			if act != tt.wantAct {
				t.Fatalf("action = %v, want %v", act, tt.wantAct)
			}
			calls := gw.sent()
			if len(calls) != before+1 || calls[before].what != tt.wantVia {
				t.Fatalf("delivery went via %q, want %q", calls[before].what, tt.wantVia)
			}
		})
	}
}

func TestDeliverDirectByKind(t *testing.T) {
	t.Parallel()
	gw := newMemGateway()
	d := fastDispatcher(newMemStore(), gw)

	group := &domain.Content{
		ID: 1, Title: "t", Description: "d", Kind: domain.KindMediaGroup, Active: true,
		Assets: []domain.Asset{{Kind: domain.KindPhoto, FileID: "a"}, {Kind: domain.KindVideo, FileID: "b"}},
	}
	text := &domain.Content{ID: 2, Title: "t", Description: "d", Kind: domain.KindText, Active: true}

	if err := d.DeliverDirect(context.Background(), group, target(1)); err != nil {
		t.Fatalf("group DeliverDirect: %v", err)
	}
	if err := d.DeliverDirect(context.Background(), text, target(1)); err != nil {
		t.Fatalf("text DeliverDirect: %v", err)
	}
	calls := gw.sent()
	if len(calls) != 2 || calls[0].what != "group" || calls[1].what != "text" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
	if !calls[1].noPreview {
		t.Fatal("text delivery left link previews enabled")
	}
}

func TestLockedPreviewSuppressesLinkPreview(t *testing.T) {
	t.Parallel()
	gw := newMemGateway()
	d := fastDispatcher(newMemStore(), gw)

	if _, err := d.DeliverTo(context.Background(), docContent(1, 50), target(1)); err != nil {
		t.Fatalf("DeliverTo: %v", err)
	}
	calls := gw.sent()
	if len(calls) != 1 || calls[0].what != "text" || !calls[0].noPreview {
		t.Fatalf("unexpected locked preview send: %+v", calls)
	}
}

func TestBroadcastSurvivesPerRecipientFailure(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	store.recipients = []int64{10, 20, 30}
	gw := newMemGateway()
	gw.fail[20] = errors.New("blocked the bot")
	d := fastDispatcher(store, gw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop(context.Background())

	id := d.Broadcast(photoContent(1, 0))
	st := waitRun(t, d, id)

	if st.Total != 3 || st.Done != 3 || st.Failed != 1 {
		t.Fatalf("status = %+v", st)
	}
	calls := gw.sent()
	if len(calls) != 2 || calls[0].userID != 10 || calls[1].userID != 30 {
		t.Fatalf("unexpected deliveries: %+v", calls)
	}
}

func TestBroadcastCountsLocked(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	store.recipients = []int64{10, 20}
	store.purchases[[2]int64{20, 1}] = true
	gw := newMemGateway()
	d := fastDispatcher(store, gw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop(context.Background())

	st := waitRun(t, d, d.Broadcast(photoContent(1, 50)))
	if st.Locked != 1 || st.Failed != 0 || st.Done != 2 {
		t.Fatalf("status = %+v", st)
	}
}

func TestResyncReplaysCatalog(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	store.catalog = []domain.Content{*photoContent(1, 0), *photoContent(2, 0), *photoContent(3, 0)}
	gw := newMemGateway()
	d := fastDispatcher(store, gw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop(context.Background())

	st := waitRun(t, d, d.Resync(target(7)))
	if st.Total != 3 || st.Done != 3 || st.Failed != 0 {
		t.Fatalf("status = %+v", st)
	}
	for _, c := range gw.sent() {
		if c.userID != 7 {
			t.Fatalf("resync delivered to %d", c.userID)
		}
	}
}

func TestQueueFullDropsRun(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	gw := newMemGateway()
	// Never started, so the queue only drains by capacity.
	d := New(Config{RatePerSec: 1000, QueueSize: 1}, store, gw, logx.Nop())

	first := d.Broadcast(photoContent(1, 0))
	second := d.Broadcast(photoContent(2, 0))

	if st, ok := d.Status(first); !ok || !st.DoneAt.IsZero() {
		t.Fatalf("queued run marked done: %+v", st)
	}
	st, ok := d.Status(second)
	if !ok || st.DoneAt.IsZero() {
		t.Fatalf("dropped run not marked done: %+v", st)
	}
}
