package domain

// Contractor is the read-only matching view of a contractor user.
// The profile is owned by the user subsystem; this engine only reads it.
type Contractor struct {
	ID        string
	Name      string
	Skills    []TicketCategory
	Available bool
	Rating    float64
}

// HasSkill reports whether the contractor covers the given trade.
func (c Contractor) HasSkill(category TicketCategory) bool {
	for _, skill := range c.Skills {
		if skill == category {
			return true
		}
	}
	return false
}
