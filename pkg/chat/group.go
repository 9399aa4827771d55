package chat

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ConversationGroup is one turn-slot in a session. It holds the original
// message plus any regenerated variants, and tracks which variant is active.
//
// Invariant: the variant list is never empty and 0 <= ActiveIndex <
// len(Conversations). Deleting the last remaining variant deletes the whole
// group from its session.
type ConversationGroup struct {
	ID   uuid.UUID `json:"id"`
	Date time.Time `json:"date"`

	Conversations []*Conversation `json:"conversations"`
	ActiveIndex   int             `json:"activeIndex"`

	session *Session
}

func NewConversationGroup(c *Conversation) *ConversationGroup {
	g := &ConversationGroup{
		ID:   uuid.New(),
		Date: time.Now(),
	}
	g.attach(c)
	return g
}

func (g *ConversationGroup) attach(c *Conversation) {
	c.group = g
	g.Conversations = append(g.Conversations, c)
}

// ActiveConversation returns the currently selected variant.
func (g *ConversationGroup) ActiveConversation() *Conversation {
	return g.Conversations[g.ActiveIndex]
}

// Role is the role of the active variant. All variants of a group share the
// same role in practice, since regeneration only ever adds assistant variants
// to assistant groups.
func (g *ConversationGroup) Role() Role {
	return g.ActiveConversation().Role
}

// AddConversation appends a new variant and makes it active.
func (g *ConversationGroup) AddConversation(c *Conversation) {
	g.attach(c)
	g.ActiveIndex = len(g.Conversations) - 1
}

// SetActive selects the variant at index i.
func (g *ConversationGroup) SetActive(i int) error {
	if i < 0 || i >= len(g.Conversations) {
		return errors.Errorf("variant index %d out of range [0, %d)", i, len(g.Conversations))
	}
	g.ActiveIndex = i
	return nil
}

// NextVariant and PreviousVariant cycle the active selection without going
// out of range.
func (g *ConversationGroup) NextVariant() {
	if g.ActiveIndex < len(g.Conversations)-1 {
		g.ActiveIndex++
	}
}

func (g *ConversationGroup) PreviousVariant() {
	if g.ActiveIndex > 0 {
		g.ActiveIndex--
	}
}

// DeleteConversation removes one variant and adjusts the active index.
// It reports whether the group is now empty, in which case the caller must
// remove the group itself.
func (g *ConversationGroup) DeleteConversation(c *Conversation) bool {
	idx := -1
	for i, conv := range g.Conversations {
		if conv.ID == c.ID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return len(g.Conversations) == 0
	}

	c.group = nil
	g.Conversations = append(g.Conversations[:idx], g.Conversations[idx+1:]...)

	if len(g.Conversations) == 0 {
		return true
	}
	if g.ActiveIndex >= len(g.Conversations) {
		g.ActiveIndex = len(g.Conversations) - 1
	}
	return false
}

// Session returns the owning session, nil for detached groups.
func (g *ConversationGroup) Session() *Session {
	return g.session
}

// Copy deep copies the group with its full variant list, preserving the
// active index. The copy is detached and carries fresh IDs.
func (g *ConversationGroup) Copy() *ConversationGroup {
	ret := &ConversationGroup{
		ID:          uuid.New(),
		Date:        g.Date,
		ActiveIndex: g.ActiveIndex,
	}
	for _, c := range g.Conversations {
		ret.attach(c.Copy())
	}
	return ret
}

// TokenCount sums the token estimate of the active variant.
func (g *ConversationGroup) TokenCount() int {
	active := g.ActiveConversation()
	n := CountTokens(active.Content)
	if active.ToolResponse != nil {
		n += CountTokens(active.ToolResponse.Content)
	}
	return n
}
