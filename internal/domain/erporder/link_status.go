package erporder

import "time"

// LinkState tracks where an order is in the marketplace linking flow
type LinkState string

const (
	LinkStateUnlinked LinkState = "unlinked"
	LinkStatePending  LinkState = "pending"
	LinkStateLinked   LinkState = "linked"
)

// IsValid reports whether the state is known
func (s LinkState) IsValid() bool {
	switch s {
	case LinkStateUnlinked, LinkStatePending, LinkStateLinked:
		return true
	}
	return false
}

// LinkStatus is owned by the linking resolver; the ERP sync never changes it
type LinkStatus struct {
	State       LinkState
	Reason      string
	Attempts    int
	AttemptedAt *time.Time
}

// MarkPending records a failed resolution attempt
func (s *LinkStatus) MarkPending(reason string, at time.Time) {
	s.State = LinkStatePending
	s.Reason = reason
	s.Attempts++
	s.AttemptedAt = &at
}

// MarkLinked records a successful resolution
func (s *LinkStatus) MarkLinked(at time.Time) {
	s.State = LinkStateLinked
	s.Reason = ""
	s.Attempts++
	s.AttemptedAt = &at
}
