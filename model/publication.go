package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Kind is the role of a published item.
type Kind string

const (
	KindOriginal Kind = "original"
	KindRemix    Kind = "remix"
)

// PublicationRecord is one published item as reported by the index.
// ID has the form "<ownerId>-<sequenceId>". ParentID is set only for remixes.
// MediaRefs holds the track's own audio first and, for remixes, the full mix
// of the layer over its ancestry second.
type PublicationRecord struct {
	ID          string   `json:"id"`
	Kind        Kind     `json:"kind"`
	ParentID    string   `json:"parentId,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	MediaRefs   []string `json:"mediaRefs"`
}

// MixRef is the locator of the record's accumulated mix: the mix ref of a
// remix, or the only ref of an original.
func (r PublicationRecord) MixRef() string {
	if len(r.MediaRefs) == 0 {
		return ""
	}
	return r.MediaRefs[len(r.MediaRefs)-1]
}

// ParseID splits a composite publication id into owner and sequence parts.
func ParseID(id string) (owner, sequence string, err error) {
	i := strings.LastIndex(id, "-")
	if i <= 0 || i == len(id)-1 {
		return "", "", fmt.Errorf("malformed publication id %q", id)
	}
	return id[:i], id[i+1:], nil
}

// FormatID joins owner and sequence into a composite id.
func FormatID(owner, sequence string) string {
	return owner + "-" + sequence
}

// Sequence returns the numeric sequence component of id. Both decimal and
// 0x-prefixed hex are accepted. ok is false when id has no parsable sequence.
func Sequence(id string) (seq *big.Int, ok bool) {
	_, s, err := ParseID(id)
	if err != nil {
		return nil, false
	}
	seq, ok = new(big.Int).SetString(s, 0)
	return seq, ok
}

// MediaList is the JSON-encoded media locator column of a Publication row.
type MediaList []string

// Scan implements sql.Scanner.
func (m *MediaList) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported media list type %T", value)
	}
	if len(raw) == 0 || string(raw) == "null" {
		*m = nil
		return nil
	}
	return json.Unmarshal(raw, m)
}

// Value implements driver.Valuer.
func (m MediaList) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Publication is the local ledger's row for a post or comment.
type Publication struct {
	ID          uint64    `json:"-" gorm:"primaryKey;autoIncrement"`
	OwnerID     string    `json:"ownerId" gorm:"size:66;not null;uniqueIndex:uq_owner_seq"`
	SequenceID  uint64    `json:"sequenceId" gorm:"not null;uniqueIndex:uq_owner_seq"`
	Kind        Kind      `json:"kind" gorm:"size:16;not null"`
	ParentID    string    `json:"parentId" gorm:"size:140;index"`
	ContentURI  string    `json:"contentUri" gorm:"size:512;not null"`
	Title       string    `json:"title" gorm:"size:255"`
	Description string    `json:"description" gorm:"type:text"`
	Media       MediaList `json:"media" gorm:"type:json"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TableName pins the table name.
func (Publication) TableName() string {
	return "publications"
}

// PublicationID is the composite id of the row, sequence rendered as 0x hex
// the way the social graph indexer does.
func (p Publication) PublicationID() string {
	return FormatID(p.OwnerID, fmt.Sprintf("0x%02x", p.SequenceID))
}

// Record converts the row to the index representation.
func (p Publication) Record() PublicationRecord {
	return PublicationRecord{
		ID:          p.PublicationID(),
		Kind:        p.Kind,
		ParentID:    p.ParentID,
		Title:       p.Title,
		Description: p.Description,
		MediaRefs:   append([]string(nil), p.Media...),
	}
}

// Collect records one collect of a publication on the local ledger.
type Collect struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	CollectorID   string    `gorm:"size:66;not null;index"`
	PublicationID string    `gorm:"size:140;not null;index"`
	CreatedAt     time.Time
}

// TableName pins the table name.
func (Collect) TableName() string {
	return "collects"
}
