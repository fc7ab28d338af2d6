package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tidemark.app/feed/core/db"
)

type membershipStore struct {
	q db.Querier
}

func newMembershipStore(q db.Querier) *membershipStore {
	return &membershipStore{q: q}
}

func (s *membershipStore) GetCapabilities(ctx context.Context, principalID, containerID int64) ([]string, error) {
	var capabilities []string
	err := s.q.QueryRow(ctx, `
SELECT capabilities
FROM container_members
WHERE principal_id = $1 AND container_id = $2`,
		principalID, containerID).Scan(&capabilities)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying membership: %w", err)
	}
	return capabilities, nil
}
