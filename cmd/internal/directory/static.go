package directory

import "context"

// Static is a fixed in-memory directory. It backs tests and deployments
// where taps arrive as manual identity entry only.
type Static map[string]Member

// Resolve looks up a card in the fixed mapping.
func (s Static) Resolve(_ context.Context, cardID string) (Member, error) {
	m, ok := s[cardID]
	if !ok {
		return Member{}, unknownCard(cardID)
	}
	return m, nil
}
