package models

// ProjectStatus is the lifecycle state of a project. Deletion is soft and
// one-way; rows are never removed or resurrected.
type ProjectStatus string

const (
	ProjectActive  ProjectStatus = "active"
	ProjectDeleted ProjectStatus = "deleted"
)

// MemberRole distinguishes the project creator from accepted members.
type MemberRole string

const (
	RoleCreator MemberRole = "creator"
	RoleMember  MemberRole = "member"
)

// MembershipStatus is the lifecycle state of a membership row. left and
// kicked are terminal; a row is never reset to active.
type MembershipStatus string

const (
	MembershipActive MembershipStatus = "active"
	MembershipLeft   MembershipStatus = "left"
	MembershipKicked MembershipStatus = "kicked"
)

// RequestStatus is the lifecycle state of a join request. accepted and
// rejected are terminal; a rejected row only leaves the table when the
// 30-day cooldown has elapsed and the user reapplies.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectActive:  {ProjectDeleted},
	ProjectDeleted: {},
}

var membershipTransitions = map[MembershipStatus][]MembershipStatus{
	MembershipActive: {MembershipLeft, MembershipKicked},
	MembershipLeft:   {},
	MembershipKicked: {},
}

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:  {RequestAccepted, RequestRejected},
	RequestAccepted: {},
	RequestRejected: {},
}

// CanTransition reports whether the project status change is legal.
func (s ProjectStatus) CanTransition(to ProjectStatus) bool {
	for _, next := range projectTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransition reports whether the membership status change is legal.
func (s MembershipStatus) CanTransition(to MembershipStatus) bool {
	for _, next := range membershipTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransition reports whether the join-request status change is legal.
func (s RequestStatus) CanTransition(to RequestStatus) bool {
	for _, next := range requestTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
