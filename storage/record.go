package storage

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// RecordVersion is the document format written by Marshal.
const RecordVersion = 1

// Record is the credential store document: the administrator password hash,
// the static API key and the table of live sessions keyed by session ID.
type Record struct {
	Ver          int                `json:"ver"`
	PasswordHash string             `json:"password_hash"`
	APIKey       string             `json:"api_key"`
	Sessions     map[string]Session `json:"sessions"`
}

// Session is one authenticated browser instance.
type Session struct {
	UserAgent string            `json:"user_agent"`
	CreatedAt time.Time         `json:"created_at"`
	LastUsed  time.Time         `json:"last_used"`
	ExpiresAt time.Time         `json:"expires_at"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := &Record{
		Ver:          r.Ver,
		PasswordHash: r.PasswordHash,
		APIKey:       r.APIKey,
		Sessions:     make(map[string]Session, len(r.Sessions)),
	}
	for id, s := range r.Sessions {
		if s.Meta != nil {
			s.Meta = maps.Clone(s.Meta)
		}
		cp.Sessions[id] = s
	}
	return cp
}

// Marshal encodes r in the persisted document format.
func Marshal(r *Record) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil record", ErrCorrupt)
	}
	doc := *r
	doc.Ver = RecordVersion
	if doc.Sessions == nil {
		doc.Sessions = map[string]Session{}
	}
	return json.MarshalIndent(&doc, "", "  ")
}

// Unmarshal decodes a persisted document. Documents written before the
// version field existed decode as version 1.
func Unmarshal(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if r.Ver == 0 {
		r.Ver = RecordVersion
	}
	if r.Ver != RecordVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, r.Ver)
	}
	if r.PasswordHash == "" {
		return nil, fmt.Errorf("%w: missing password hash", ErrCorrupt)
	}
	if r.Sessions == nil {
		r.Sessions = map[string]Session{}
	}
	return &r, nil
}
