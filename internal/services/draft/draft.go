// Package draft tracks in-flight content drafts, one per operator
// conversation. A draft holds a not-yet-persisted content record plus an
// explicit marker for which field the next operator message fills.
package draft

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"starcast/internal/domain"
	"starcast/internal/storage"
	"starcast/pkg/logx"
)

// State says what the session is waiting for. Published and cancelled
// sessions are torn down rather than kept in a terminal state.
type State int

const (
	StateReady State = iota
	StateAwaitingDescription
	StateAwaitingCustomPrice
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateAwaitingDescription:
		return "awaiting_description"
	case StateAwaitingCustomPrice:
		return "awaiting_custom_price"
	default:
		return "unknown"
	}
}

var (
	ErrNoDraft          = errors.New("draft: no open draft")
	ErrNotAwaiting      = errors.New("draft: no field awaited")
	ErrAwaitingField    = errors.New("draft: a field entry is in progress")
	ErrEmptyDescription = errors.New("draft: description is empty")
	ErrBadPrice         = errors.New("draft: price must be a whole number >= 0")
)

const maxDescriptionRunes = 1024

// Session is a snapshot of one operator's draft.
type Session struct {
	OperatorID  int64
	ChatID      int64
	Kind        domain.MediaKind
	Assets      []domain.Asset
	Description string
	PriceStars  int
	State       State
	CreatedAt   time.Time
}

// Manager owns all open sessions, keyed by operator id. All methods are safe
// for concurrent use; snapshots are returned by value.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	store    storage.Store
	log      logx.Logger
}

func NewManager(store storage.Store, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{sessions: make(map[int64]*Session), store: store, log: log}
}

// Begin opens a draft for a finalized upload batch, replacing any draft the
// operator still had open. The returned replaced flag lets the caller tell
// the operator their previous draft was discarded. An empty asset list opens
// a text draft.
func (m *Manager) Begin(operatorID, chatID int64, assets []domain.Asset, caption string) (Session, bool) {
	s := &Session{
		OperatorID:  operatorID,
		ChatID:      chatID,
		Kind:        kindFor(assets),
		Assets:      append([]domain.Asset(nil), assets...),
		Description: strings.TrimSpace(caption),
		State:       StateReady,
		CreatedAt:   time.Now(),
	}

	m.mu.Lock()
	_, replaced := m.sessions[operatorID]
	m.sessions[operatorID] = s
	m.mu.Unlock()

	m.log.Info("draft opened",
		logx.Int64("operator", operatorID),
		logx.String("kind", string(s.Kind)),
		logx.Int("assets", len(s.Assets)),
		logx.Bool("replaced_previous", replaced))
	return *s, replaced
}

func kindFor(assets []domain.Asset) domain.MediaKind {
	switch len(assets) {
	case 0:
		return domain.KindText
	case 1:
		return assets[0].Kind
	default:
		return domain.KindMediaGroup
	}
}

// Get returns a snapshot of the operator's open draft.
func (m *Manager) Get(operatorID int64) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[operatorID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// AwaitDescription arms the session: the operator's next message becomes the
// description.
func (m *Manager) AwaitDescription(operatorID int64) error {
	return m.setState(operatorID, StateAwaitingDescription)
}

// AwaitCustomPrice arms the session for a free-form price entry.
func (m *Manager) AwaitCustomPrice(operatorID int64) error {
	return m.setState(operatorID, StateAwaitingCustomPrice)
}

func (m *Manager) setState(operatorID int64, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[operatorID]
	if !ok {
		return ErrNoDraft
	}
	s.State = st
	return nil
}

// SetPrice applies a preset price from the inline keyboard.
func (m *Manager) SetPrice(operatorID int64, stars int) (Session, error) {
	if stars < 0 {
		return Session{}, ErrBadPrice
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[operatorID]
	if !ok {
		return Session{}, ErrNoDraft
	}
	s.PriceStars = stars
	s.State = StateReady
	return *s, nil
}

// HandleText consumes an operator message as the value of the awaited field.
// Invalid input leaves the state unchanged so the operator can retry.
func (m *Manager) HandleText(operatorID int64, text string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[operatorID]
	if !ok {
		return Session{}, ErrNoDraft
	}

	switch s.State {
	case StateAwaitingDescription:
		desc := strings.TrimSpace(text)
		if desc == "" {
			return *s, ErrEmptyDescription
		}
		if r := []rune(desc); len(r) > maxDescriptionRunes {
			desc = string(r[:maxDescriptionRunes])
		}
		s.Description = desc
		s.State = StateReady
		return *s, nil

	case StateAwaitingCustomPrice:
		stars, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil || stars < 0 {
			return *s, ErrBadPrice
		}
		s.PriceStars = stars
		s.State = StateReady
		return *s, nil

	default:
		return *s, ErrNotAwaiting
	}
}

// Publish persists the draft as a content record and tears the session down.
// A persistence failure keeps the draft alive so the operator's input is not
// lost; the error is returned for inline reporting.
func (m *Manager) Publish(ctx context.Context, operatorID int64) (*domain.Content, error) {
	m.mu.Lock()
	s, ok := m.sessions[operatorID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNoDraft
	}
	if s.State != StateReady {
		m.mu.Unlock()
		return nil, ErrAwaitingField
	}
	if strings.TrimSpace(s.Description) == "" {
		m.mu.Unlock()
		return nil, ErrEmptyDescription
	}
	snapshot := *s
	m.mu.Unlock()

	c := &domain.Content{
		Title:       domain.TitleFromDescription(snapshot.Description),
		Description: snapshot.Description,
		Kind:        snapshot.Kind,
		Assets:      append([]domain.Asset(nil), snapshot.Assets...),
		PriceStars:  snapshot.PriceStars,
		Active:      true,
	}
	if _, err := m.store.SaveContent(ctx, c); err != nil {
		m.log.Error("draft publish failed", logx.Int64("operator", operatorID), logx.Err(err))
		return nil, err
	}

	m.mu.Lock()
	// The session may have been replaced while saving; only drop it if it is
	// still the one we published.
	if cur, ok := m.sessions[operatorID]; ok && cur == s {
		delete(m.sessions, operatorID)
	}
	m.mu.Unlock()

	m.log.Info("draft published",
		logx.Int64("operator", operatorID),
		logx.Int64("content", c.ID),
		logx.String("kind", string(c.Kind)),
		logx.Int("price", c.PriceStars))
	return c, nil
}

// Cancel discards the operator's draft from any non-terminal state.
func (m *Manager) Cancel(operatorID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[operatorID]; !ok {
		return false
	}
	delete(m.sessions, operatorID)
	return true
}

// OpenCount reports open drafts (exported for the stats gauge).
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
