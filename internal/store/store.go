// internal/store/store.go
package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a row addressed by id does not exist for the tenant.
	ErrNotFound = errors.New("record not found")
	// ErrStaleTransition is returned when a status update is not allowed from the row's current status.
	ErrStaleTransition = errors.New("status transition rejected")
)

type scanner interface {
	Scan(dest ...interface{}) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func ptrArg(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func timeArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func encodeJSON(v map[string]interface{}) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode jsonb")
	}
	return b, nil
}

func decodeJSON(raw []byte) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "decode jsonb")
	}
	return out, nil
}
