package draft

import (
	"context"
	"errors"
	"strings"
	"testing"

	"starcast/internal/domain"
	"starcast/pkg/logx"
)

// fakeStore records SaveContent calls; the rest of the persistence boundary
// is unused by the draft manager.
type fakeStore struct {
	saved   []*domain.Content
	saveErr error
	nextID  int64
}

func (f *fakeStore) SaveContent(_ context.Context, c *domain.Content) (int64, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	f.nextID++
	c.ID = f.nextID
	f.saved = append(f.saved, c)
	return f.nextID, nil
}

func (f *fakeStore) GetContent(context.Context, int64) (*domain.Content, error) { return nil, nil }
func (f *fakeStore) ListActiveContent(context.Context) ([]domain.Content, error) {
	return nil, nil
}
func (f *fakeStore) DeleteContent(context.Context, int64) (bool, error) { return false, nil }
func (f *fakeStore) UpsertRecipient(context.Context, domain.Recipient) error { return nil }
func (f *fakeStore) ListRecipients(context.Context) ([]int64, error) { return nil, nil }
func (f *fakeStore) RecordPurchase(context.Context, int64, int64, int, string) error {
	return nil
}
func (f *fakeStore) HasPurchased(context.Context, int64, int64) (bool, error) { return false, nil }
func (f *fakeStore) Stats(context.Context) (domain.Stats, error) { return domain.Stats{}, nil }
func (f *fakeStore) Close() error { return nil }

func photoAssets(n int) []domain.Asset {
	out := make([]domain.Asset, n)
	for i := range out {
		out[i] = domain.Asset{Kind: domain.KindPhoto, FileID: "f"}
	}
	return out
}

func TestBeginDerivesKind(t *testing.T) {
	t.Parallel()
	m := NewManager(&fakeStore{}, logx.Nop())

	tests := []struct {
		name   string
		assets []domain.Asset
		want   domain.MediaKind
	}{
		{name: "no assets is text", assets: nil, want: domain.KindText},
		{name: "one asset keeps its kind", assets: []domain.Asset{{Kind: domain.KindVideo, FileID: "v"}}, want: domain.KindVideo},
		{name: "many assets form a group", assets: photoAssets(3), want: domain.KindMediaGroup},
	}
	for i, tt := range tests {
		sess, _ := m.Begin(int64(100+i), 1, tt.assets, "")
		if sess.Kind != tt.want {
			t.Fatalf("%s: Kind = %s, want %s", tt.name, sess.Kind, tt.want)
		}
	}
}

func TestBeginReplacesOpenDraft(t *testing.T) {
	t.Parallel()
	m := NewManager(&fakeStore{}, logx.Nop())

	if _, replaced := m.Begin(1, 1, photoAssets(1), "first"); replaced {
		t.Fatal("first Begin reported replaced")
	}
	sess, replaced := m.Begin(1, 1, photoAssets(2), "second")
	if !replaced {
		t.Fatal("second Begin did not report replaced")
	}
	if len(sess.Assets) != 2 || sess.Description != "second" {
		t.Fatalf("replacement kept stale data: %+v", sess)
	}
	if m.OpenCount() != 1 {
		t.Fatalf("OpenCount = %d, want 1", m.OpenCount())
	}
}

func TestHandleTextDescription(t *testing.T) {
	t.Parallel()
	m := NewManager(&fakeStore{}, logx.Nop())
	m.Begin(1, 1, photoAssets(1), "")

	if _, err := m.HandleText(1, "chatter"); !errors.Is(err, ErrNotAwaiting) {
		t.Fatalf("unarmed HandleText error = %v, want ErrNotAwaiting", err)
	}

	if err := m.AwaitDescription(1); err != nil {
		t.Fatalf("AwaitDescription: %v", err)
	}
	if _, err := m.HandleText(1, "   "); !errors.Is(err, ErrEmptyDescription) {
		t.Fatalf("blank description error = %v, want ErrEmptyDescription", err)
	}
	// Invalid input keeps the field armed.
	sess, err := m.HandleText(1, "A fine drop\nwith details")
	if err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if sess.Description != "A fine drop\nwith details" || sess.State != StateReady {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestHandleTextDescriptionCapped(t *testing.T) {
	t.Parallel()
	m := NewManager(&fakeStore{}, logx.Nop())
	m.Begin(1, 1, nil, "")
	if err := m.AwaitDescription(1); err != nil {
		t.Fatalf("AwaitDescription: %v", err)
	}
	sess, err := m.HandleText(1, strings.Repeat("x", 2000))
	if err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if got := len([]rune(sess.Description)); got != maxDescriptionRunes {
		t.Fatalf("description runes = %d, want %d", got, maxDescriptionRunes)
	}
}

func TestHandleTextCustomPrice(t *testing.T) {
	t.Parallel()
	m := NewManager(&fakeStore{}, logx.Nop())
	m.Begin(1, 1, photoAssets(1), "desc")
	if err := m.AwaitCustomPrice(1); err != nil {
		t.Fatalf("AwaitCustomPrice: %v", err)
	}

	for _, bad := range []string{"abc", "-5", "4.5", ""} {
		if _, err := m.HandleText(1, bad); !errors.Is(err, ErrBadPrice) {
			t.Fatalf("HandleText(%q) error = %v, want ErrBadPrice", bad, err)
		}
		if sess, _ := m.Get(1); sess.State != StateAwaitingCustomPrice {
			t.Fatalf("invalid input disarmed the field: state = %v", sess.State)
		}
	}

	sess, err := m.HandleText(1, " 75 ")
	if err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if sess.PriceStars != 75 || sess.State != StateReady {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestSetPricePreset(t *testing.T) {
	t.Parallel()
	m := NewManager(&fakeStore{}, logx.Nop())
	m.Begin(1, 1, photoAssets(1), "desc")

	sess, err := m.SetPrice(1, 50)
	if err != nil {
		t.Fatalf("SetPrice: %v", err)
	}
	if sess.PriceStars != 50 {
		t.Fatalf("PriceStars = %d, want 50", sess.PriceStars)
	}
	if _, err := m.SetPrice(1, -1); !errors.Is(err, ErrBadPrice) {
		t.Fatalf("negative preset error = %v, want ErrBadPrice", err)
	}
	if _, err := m.SetPrice(2, 50); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("no-draft preset error = %v, want ErrNoDraft", err)
	}
}

func TestPublish(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	m := NewManager(st, logx.Nop())
	m.Begin(1, 1, photoAssets(2), "Headline\nbody text")
	if _, err := m.SetPrice(1, 25); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}

	c, err := m.Publish(context.Background(), 1)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if c.Title != "Headline" || c.Kind != domain.KindMediaGroup || c.PriceStars != 25 || !c.Active {
		t.Fatalf("unexpected content: %+v", c)
	}
	if len(st.saved) != 1 {
		t.Fatalf("saved = %d records, want 1", len(st.saved))
	}
	if m.OpenCount() != 0 {
		t.Fatalf("OpenCount = %d after publish, want 0", m.OpenCount())
	}
	if _, err := m.Publish(context.Background(), 1); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("re-publish error = %v, want ErrNoDraft", err)
	}
}

func TestPublishRejectsIncompleteDraft(t *testing.T) {
	t.Parallel()
	m := NewManager(&fakeStore{}, logx.Nop())

	m.Begin(1, 1, photoAssets(1), "")
	if _, err := m.Publish(context.Background(), 1); !errors.Is(err, ErrEmptyDescription) {
		t.Fatalf("empty-description publish error = %v", err)
	}

	m.Begin(2, 2, photoAssets(1), "desc")
	if err := m.AwaitCustomPrice(2); err != nil {
		t.Fatalf("AwaitCustomPrice: %v", err)
	}
	if _, err := m.Publish(context.Background(), 2); !errors.Is(err, ErrAwaitingField) {
		t.Fatalf("mid-entry publish error = %v, want ErrAwaitingField", err)
	}
}

func TestPublishFailureKeepsDraft(t *testing.T) {
	t.Parallel()
	boom := errors.New("disk full")
	st := &fakeStore{saveErr: boom}
	m := NewManager(st, logx.Nop())
	m.Begin(1, 1, photoAssets(1), "desc")

	if _, err := m.Publish(context.Background(), 1); !errors.Is(err, boom) {
		t.Fatalf("Publish error = %v, want %v", err, boom)
	}
	if m.OpenCount() != 1 {
		t.Fatal("draft was torn down despite the save failure")
	}

	st.saveErr = nil
	if _, err := m.Publish(context.Background(), 1); err != nil {
		t.Fatalf("retry Publish: %v", err)
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()
	m := NewManager(&fakeStore{}, logx.Nop())
	if m.Cancel(1) {
		t.Fatal("Cancel with no draft returned true")
	}
	m.Begin(1, 1, nil, "")
	if !m.Cancel(1) {
		t.Fatal("Cancel returned false")
	}
	if m.OpenCount() != 0 {
		t.Fatalf("OpenCount = %d after cancel", m.OpenCount())
	}
}
