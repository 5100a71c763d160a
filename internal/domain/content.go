package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MediaKind classifies a content record or a single asset inside a group.
type MediaKind string

const (
	KindPhoto      MediaKind = "photo"
	KindVideo      MediaKind = "video"
	KindDocument   MediaKind = "document"
	KindMediaGroup MediaKind = "media_group"
	KindText       MediaKind = "text"
)

// Asset is one platform-held media object. FileID is an opaque handle issued
// by the platform; it is stored verbatim and never re-derived.
type Asset struct {
	Kind   MediaKind
	FileID string
}

// Content is a published (or about-to-be-published) catalog entry.
// A KindMediaGroup record holds its assets in upload order; a KindText
// record has no assets at all.
type Content struct {
	ID          int64
	Title       string
	Description string
	Kind        MediaKind
	Assets      []Asset
	PriceStars  int
	Active      bool
	CreatedAt   time.Time
}

// Free reports whether the record needs no purchase.
func (c *Content) Free() bool { return c.PriceStars == 0 }

// Validate checks the record invariants before persistence.
func (c *Content) Validate() error {
	if strings.TrimSpace(c.Description) == "" {
		return errors.New("content: description is empty")
	}
	if c.PriceStars < 0 {
		return errors.New("content: price must be >= 0")
	}
	switch c.Kind {
	case KindText:
		if len(c.Assets) != 0 {
			return errors.New("content: text record must not carry assets")
		}
	case KindMediaGroup:
		if len(c.Assets) < 1 {
			return errors.New("content: media group needs at least one asset")
		}
	case KindPhoto, KindVideo, KindDocument:
		if len(c.Assets) != 1 {
			return fmt.Errorf("content: %s record needs exactly one asset", c.Kind)
		}
	default:
		return fmt.Errorf("content: unknown kind %q", c.Kind)
	}
	return nil
}

const payloadPrefix = "content_"

// PayloadToken encodes a content id as the opaque invoice payload.
// The format must round-trip exactly; payment settlement depends on it.
func PayloadToken(contentID int64) string {
	return payloadPrefix + strconv.FormatInt(contentID, 10)
}

// ParsePayloadToken is the inverse of PayloadToken.
func ParsePayloadToken(token string) (int64, error) {
	raw, ok := strings.CutPrefix(token, payloadPrefix)
	if !ok {
		return 0, fmt.Errorf("payload token %q: missing %q prefix", token, payloadPrefix)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("payload token %q: bad content id", token)
	}
	return id, nil
}

// TitleFromDescription derives the record title shown in catalogs: the first
// line of the description, capped at 64 runes.
func TitleFromDescription(desc string) string {
	line := strings.TrimSpace(desc)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	r := []rune(line)
	if len(r) > 64 {
		line = string(r[:64])
	}
	if line == "" {
		line = "Untitled"
	}
	return line
}
