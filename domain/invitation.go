package domain

import "time"

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationExpired  InvitationStatus = "EXPIRED"
	InvitationRevoked  InvitationStatus = "REVOKED"
)

// Invitation is a pending offer for a specific player to join a specific
// room. At most one PENDING invitation exists per (room, invitee) pair; a
// re-invitation supersedes the prior one, which becomes REVOKED.
// Invitations never expire on their own, only through acceptance,
// supersession, or room closure.
type Invitation struct {
	ID        string           `json:"invitationId"`
	RoomID    RoomID           `json:"roomId"`
	InviterID PlayerID         `json:"inviterId"`
	InviteeID PlayerID         `json:"inviteeId"`
	GameName  string           `json:"gameName"`
	Status    InvitationStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
}
