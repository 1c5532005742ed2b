package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Participants is the member list of a conversation.
//
// Semantically a set: entries are unique and non-empty. Order is first-seen
// and is preserved through storage, because the reverse migration reads back
// the first two members as the legacy sender/receiver pair.
//
// Stored as a JSON array of strings.
type Participants []string

// NewParticipants builds a participant set from raw identifiers.
// Identifiers are trimmed; duplicates collapse onto their first occurrence.
// Returns an INVALID_PARTICIPANTS error if an identifier is blank or holds
// U+001F, or if the resulting set is empty.
func NewParticipants(ids ...string) (Participants, error) {
	seen := make(map[string]bool, len(ids))
	out := make(Participants, 0, len(ids))
	for i, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, NewInvalidParticipantsError(fmt.Sprintf("participant %d is blank", i))
		}
		// U+001F separates the two halves of a pair key.
		if strings.ContainsRune(id, '\x1f') {
			return nil, NewInvalidParticipantsError(fmt.Sprintf("participant %d contains a unit separator", i))
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, NewInvalidParticipantsError("participant set is empty")
	}
	return out, nil
}

// Contains reports whether id is a member.
func (p Participants) Contains(id string) bool {
	for _, m := range p {
		if m == id {
			return true
		}
	}
	return false
}

// Pair returns the first two members. A single-member set returns that
// member twice; an empty set returns two empty strings.
func (p Participants) Pair() (first, second string) {
	switch len(p) {
	case 0:
		return "", ""
	case 1:
		return p[0], p[0]
	default:
		return p[0], p[1]
	}
}

// Value implements driver.Valuer.
func (p Participants) Value() (driver.Value, error) {
	if p == nil {
		p = Participants{}
	}
	data, err := json.Marshal([]string(p))
	if err != nil {
		return nil, fmt.Errorf("marshal participants: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (p *Participants) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	case nil:
		*p = nil
		return nil
	default:
		return fmt.Errorf("scan participants: unsupported type %T", src)
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("scan participants: %w", err)
	}
	*p = ids
	return nil
}
