package chat

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Session is one conversation thread: an ordered list of turn-slots plus the
// configuration used to generate into it.
//
// Groups are ordered by creation date, not by insertion order, mirroring how
// the backing store returns them. The at-most-one-active-generation invariant
// is enforced by the controller, not here; the tree itself assumes a single
// mutator.
type Session struct {
	ID           uuid.UUID `json:"id"`
	Date         time.Time `json:"date"`
	Order        int       `json:"order"`
	Title        string    `json:"title"`
	Starred      bool      `json:"starred"`
	ErrorMessage string    `json:"errorMessage"`

	// ResetMarker is the context-reset index: when set to m, only groups
	// with index > m are sent to the provider. History before the marker is
	// suppressed, never deleted.
	ResetMarker *int `json:"resetMarker,omitempty"`

	// TokenCount caches the estimated prompt size of the adjusted context.
	TokenCount int `json:"tokenCount"`

	// Quick marks throwaway quick-query sessions, which skip title
	// generation and are excluded from backup export.
	Quick bool `json:"quick"`

	Config *SessionConfig `json:"config"`

	groups []*ConversationGroup
}

const DefaultSessionTitle = "Chat Session"

type SessionOption func(*Session)

func WithTitle(title string) SessionOption {
	return func(s *Session) {
		s.Title = title
	}
}

func WithQuick() SessionOption {
	return func(s *Session) {
		s.Quick = true
	}
}

func WithSessionID(id uuid.UUID) SessionOption {
	return func(s *Session) {
		s.ID = id
	}
}

func NewSession(config *SessionConfig, options ...SessionOption) *Session {
	ret := &Session{
		ID:     uuid.New(),
		Date:   time.Now(),
		Title:  DefaultSessionTitle,
		Config: config,
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// Groups returns the turn-slots ordered by creation date.
func (s *Session) Groups() []*ConversationGroup {
	sort.SliceStable(s.groups, func(i, j int) bool {
		return s.groups[i].Date.Before(s.groups[j].Date)
	})
	return s.groups
}

// AdjustedGroups applies the context-reset marker: groups at or before the
// marker are excluded.
func (s *Session) AdjustedGroups() []*ConversationGroup {
	groups := s.Groups()
	if s.ResetMarker == nil {
		return groups
	}
	m := *s.ResetMarker
	if m+1 >= len(groups) {
		return nil
	}
	return groups[m+1:]
}

// AddGroup wraps a conversation in a new group and appends it.
func (s *Session) AddGroup(c *Conversation) *ConversationGroup {
	g := NewConversationGroup(c)
	g.session = s
	s.groups = append(s.groups, g)
	return g
}

// GroupIndex returns the tree index of g, or -1 if it does not belong to
// this session.
func (s *Session) GroupIndex(g *ConversationGroup) int {
	for i, candidate := range s.Groups() {
		if candidate.ID == g.ID {
			return i
		}
	}
	return -1
}

// LastGroup returns the final turn-slot, nil for an empty session.
func (s *Session) LastGroup() *ConversationGroup {
	groups := s.Groups()
	if len(groups) == 0 {
		return nil
	}
	return groups[len(groups)-1]
}

// IsReplying reports whether the last group's active conversation is still
// being streamed into.
func (s *Session) IsReplying() bool {
	last := s.LastGroup()
	if last == nil {
		return false
	}
	return last.ActiveConversation().IsReplying
}

// TruncateAfter removes all groups with index > idx. A reset marker at or
// past idx would point into rewritten or removed history, so it is cleared.
func (s *Session) TruncateAfter(idx int) {
	if s.ResetMarker != nil && *s.ResetMarker >= idx {
		s.ResetMarker = nil
	}
	groups := s.Groups()
	if idx+1 >= len(groups) {
		return
	}
	for _, g := range groups[idx+1:] {
		g.session = nil
	}
	s.groups = groups[:idx+1]
}

// RemoveGroup detaches a single group without any cascade.
func (s *Session) RemoveGroup(g *ConversationGroup) {
	idx := s.GroupIndex(g)
	if idx == -1 {
		return
	}
	s.clearResetMarkerAt(idx)
	g.session = nil
	s.groups = append(s.groups[:idx], s.groups[idx+1:]...)
}

// exchangeStart returns the index of the user turn that opened the exchange
// containing idx: the nearest user group at or before idx. Returns -1 when
// the exchange has no user turn (e.g. a tool-only prefix).
func (s *Session) exchangeStart(idx int) int {
	groups := s.Groups()
	for i := idx; i >= 0; i-- {
		if groups[i].Role() == RoleUser {
			return i
		}
	}
	return -1
}

// DeleteGroup removes a turn-slot. Deleting a user group removes just that
// group. Deleting an assistant group removes the whole assistant/tool tail of
// its exchange: every group after the exchange's user turn, up to and
// including the deleted one. Tool results have no meaning without their
// assistant continuation.
func (s *Session) DeleteGroup(g *ConversationGroup) {
	idx := s.GroupIndex(g)
	if idx == -1 {
		return
	}

	s.clearResetMarkerAt(idx)

	lo := idx
	if g.Role() == RoleAssistant {
		lo = s.exchangeStart(idx) + 1
	}

	groups := s.Groups()
	for _, doomed := range groups[lo : idx+1] {
		doomed.session = nil
	}
	s.groups = append(groups[:lo], groups[idx+1:]...)
}

// DeleteAllGroups clears the tree and the reset marker.
func (s *Session) DeleteAllGroups() {
	for _, g := range s.groups {
		g.session = nil
	}
	s.groups = nil
	s.ResetMarker = nil
	s.ErrorMessage = ""
}

// ResetContextAt toggles the context-reset marker at g's index: set it if it
// is elsewhere or unset, clear it if it is already there.
func (s *Session) ResetContextAt(g *ConversationGroup) {
	idx := s.GroupIndex(g)
	if idx == -1 {
		return
	}
	if s.ResetMarker != nil && *s.ResetMarker == idx {
		s.ResetMarker = nil
	} else {
		m := idx
		s.ResetMarker = &m
	}
}

// clearResetMarkerAt drops the marker when a structural change at idx would
// leave it pointing into removed or rewritten history.
func (s *Session) clearResetMarkerAt(idx int) {
	if s.ResetMarker != nil && idx < *s.ResetMarker+1 {
		s.ResetMarker = nil
	}
}

// RefreshTokens recomputes the cached prompt-size estimate from the adjusted
// context, the system prompt and the enabled tool schemas.
func (s *Session) RefreshTokens() {
	n := 0
	for _, g := range s.AdjustedGroups() {
		n += g.TokenCount()
	}
	if s.Config != nil {
		n += CountTokens(s.Config.SystemPrompt)
		for _, spec := range s.Config.Tools {
			n += CountTokens(spec.Description) + CountTokens(string(spec.Parameters))
		}
	}
	s.TokenCount = n
}

// Copy forks the session: a deep copy of all groups up to and including
// fromGroup (or the whole tree when fromGroup is nil). Variant lists and
// active indexes are preserved; the copy gets its own config for the given
// purpose.
func (s *Session) Copy(fromGroup *ConversationGroup, purpose Purpose) *Session {
	ret := NewSession(s.Config.Copy(purpose))
	ret.Title = purpose.TitlePrefix() + " " + s.Title

	groups := s.Groups()
	if fromGroup != nil {
		if idx := s.GroupIndex(fromGroup); idx != -1 {
			groups = groups[:idx+1]
		}
	}

	for _, g := range groups {
		cp := g.Copy()
		cp.session = ret
		ret.groups = append(ret.groups, cp)
	}

	return ret
}
