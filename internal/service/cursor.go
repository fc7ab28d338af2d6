package service

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrCursorInvalid is returned for cursors that fail to decode. Clients
// should restart pagination from the top.
var ErrCursorInvalid = errors.New("invalid cursor")

// cursor is an opaque keyset position: the (last_event_at, id) pair of the
// last item the client saw.
type cursor struct {
	LastEventAt time.Time
	ID          int64
}

func encodeCursor(c cursor) string {
	raw := fmt.Sprintf("%d:%d", c.LastEventAt.UnixNano(), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return cursor{}, fmt.Errorf("%w: %w", ErrCursorInvalid, err)
	}

	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return cursor{}, fmt.Errorf("%w: malformed payload", ErrCursorInvalid)
	}

	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return cursor{}, fmt.Errorf("%w: %w", ErrCursorInvalid, err)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return cursor{}, fmt.Errorf("%w: %w", ErrCursorInvalid, err)
	}

	return cursor{LastEventAt: time.Unix(0, nanos).UTC(), ID: id}, nil
}
