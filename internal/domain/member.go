package domain

// Member represents a connection's seat in a room.
// No transport or lifecycle logic here.
type Member struct {
	ConnectionID string `json:"id"`
	UserID       UserID `json:"userId"`
	Username     string `json:"username"`
	Gender       Gender `json:"gender"`
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(connectionID string, p *Profile) Member {
	return Member{
		ConnectionID: connectionID,
		UserID:       p.ID,
		Username:     p.Username,
		Gender:       p.Gender,
	}
}
