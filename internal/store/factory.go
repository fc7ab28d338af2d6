package store

import (
	"tidemark.app/feed/core/db"
)

type Stores struct {
	q db.Querier
}

func NewStores(q db.Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) Activities() ActivityStore {
	return newActivityStore(s.q)
}

func (s *Stores) DailySummaries() DailySummaryStore {
	return newDailySummaryStore(s.q)
}

func (s *Stores) Memberships() MembershipStore {
	return newMembershipStore(s.q)
}
