package domain

// AnnouncementStatus represents the lifecycle state of an announcement.
type AnnouncementStatus string

// Lifecycle states of an announcement.
const (
	StatusDraft      AnnouncementStatus = "DRAFT"
	StatusActive     AnnouncementStatus = "ACTIVE"
	StatusMatched    AnnouncementStatus = "MATCHED"
	StatusAssigned   AnnouncementStatus = "ASSIGNED"
	StatusInProgress AnnouncementStatus = "IN_PROGRESS"
	StatusDelivered  AnnouncementStatus = "DELIVERED"
	StatusValidated  AnnouncementStatus = "VALIDATED"
	StatusCompleted  AnnouncementStatus = "COMPLETED"
	StatusCancelled  AnnouncementStatus = "CANCELLED"
	StatusExpired    AnnouncementStatus = "EXPIRED"
)

// transitions is the full set of legal lifecycle edges. Everything not
// listed here is rejected.
var transitions = map[AnnouncementStatus][]AnnouncementStatus{
	StatusDraft:      {StatusActive, StatusCancelled},
	StatusActive:     {StatusMatched, StatusExpired, StatusCancelled},
	StatusMatched:    {StatusAssigned, StatusActive, StatusExpired},
	StatusAssigned:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusDelivered},
	StatusDelivered:  {StatusValidated, StatusCancelled},
	StatusValidated:  {StatusCompleted},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusExpired:    {},
}

// Valid checks if the AnnouncementStatus is a known state.
func (s AnnouncementStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether the state has no outgoing edges.
func (s AnnouncementStatus) Terminal() bool {
	out, ok := transitions[s]
	return ok && len(out) == 0
}

// CanTransition reports whether the edge from s to target is legal.
func (s AnnouncementStatus) CanTransition(target AnnouncementStatus) bool {
	for _, v := range transitions[s] {
		if v == target {
			return true
		}
	}
	return false
}
