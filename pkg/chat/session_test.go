package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig() *SessionConfig {
	return NewSessionConfig(NewProvider(ProviderOpenAI))
}

// newTestSession builds a session with one group per (role, content) pair.
func newTestSession(t *testing.T, turns ...[2]string) *Session {
	t.Helper()
	s := NewSession(testConfig())
	for _, turn := range turns {
		s.AddGroup(NewConversation(Role(turn[0]), turn[1]))
	}
	return s
}

func TestAdjustedGroupsAppliesResetMarker(t *testing.T) {
	s := newTestSession(t,
		[2]string{"user", "one"},
		[2]string{"assistant", "two"},
		[2]string{"user", "three"},
		[2]string{"assistant", "four"},
	)

	require.Len(t, s.AdjustedGroups(), 4)

	s.ResetContextAt(s.Groups()[1])
	adjusted := s.AdjustedGroups()
	require.Len(t, adjusted, 2)
	require.Equal(t, "three", adjusted[0].ActiveConversation().Content)

	// Marker on the last group suppresses everything.
	s.ResetContextAt(s.Groups()[3])
	require.Nil(t, s.AdjustedGroups())
}

func TestResetContextAtTogglesMarker(t *testing.T) {
	s := newTestSession(t, [2]string{"user", "hi"}, [2]string{"assistant", "hello"})
	g := s.Groups()[0]

	s.ResetContextAt(g)
	require.NotNil(t, s.ResetMarker)
	require.Equal(t, 0, *s.ResetMarker)

	s.ResetContextAt(g)
	require.Nil(t, s.ResetMarker)

	s.ResetContextAt(g)
	s.ResetContextAt(s.Groups()[1])
	require.Equal(t, 1, *s.ResetMarker)
}

func TestTruncateAfterKeepsPrefix(t *testing.T) {
	s := newTestSession(t,
		[2]string{"user", "a"},
		[2]string{"assistant", "b"},
		[2]string{"user", "c"},
		[2]string{"assistant", "d"},
	)
	dropped := s.Groups()[2]

	s.TruncateAfter(1)
	require.Len(t, s.Groups(), 2)
	require.Equal(t, "b", s.LastGroup().ActiveConversation().Content)
	require.Nil(t, dropped.Session())

	// Truncating at or past the end is a no-op.
	s.TruncateAfter(5)
	require.Len(t, s.Groups(), 2)
}

func TestTruncateAfterClearsMarkerInRemovedTail(t *testing.T) {
	s := newTestSession(t,
		[2]string{"user", "a"},
		[2]string{"assistant", "b"},
		[2]string{"user", "c"},
		[2]string{"assistant", "d"},
	)

	s.ResetContextAt(s.Groups()[3])
	require.NotNil(t, s.ResetMarker)

	s.TruncateAfter(1)
	require.Nil(t, s.ResetMarker)
	require.Len(t, s.AdjustedGroups(), 2)
}

func TestTruncateAfterKeepsMarkerBeforeCut(t *testing.T) {
	s := newTestSession(t,
		[2]string{"user", "a"},
		[2]string{"assistant", "b"},
		[2]string{"user", "c"},
		[2]string{"assistant", "d"},
	)

	s.ResetContextAt(s.Groups()[0])
	s.TruncateAfter(2)

	require.NotNil(t, s.ResetMarker)
	require.Equal(t, 0, *s.ResetMarker)
	require.Len(t, s.AdjustedGroups(), 2)
}

func TestDeleteUserGroupRemovesOnlyItself(t *testing.T) {
	s := newTestSession(t,
		[2]string{"user", "q1"},
		[2]string{"assistant", "a1"},
		[2]string{"user", "q2"},
		[2]string{"assistant", "a2"},
	)

	s.DeleteGroup(s.Groups()[2])
	groups := s.Groups()
	require.Len(t, groups, 3)
	require.Equal(t, "q1", groups[0].ActiveConversation().Content)
	require.Equal(t, "a1", groups[1].ActiveConversation().Content)
	require.Equal(t, "a2", groups[2].ActiveConversation().Content)
}

func TestDeleteAssistantGroupRemovesExchangeTail(t *testing.T) {
	s := newTestSession(t,
		[2]string{"user", "q1"},
		[2]string{"assistant", "call"},
		[2]string{"tool", "result"},
		[2]string{"assistant", "final"},
		[2]string{"user", "q2"},
	)

	// Deleting the closing assistant turn takes the tool turns and the
	// intermediate assistant turn with it, back to (excluding) the user turn.
	s.DeleteGroup(s.Groups()[3])
	groups := s.Groups()
	require.Len(t, groups, 2)
	require.Equal(t, "q1", groups[0].ActiveConversation().Content)
	require.Equal(t, "q2", groups[1].ActiveConversation().Content)
}

func TestDeleteAssistantGroupWithoutUserTurnRemovesFromStart(t *testing.T) {
	s := newTestSession(t,
		[2]string{"assistant", "greeting"},
		[2]string{"assistant", "followup"},
	)

	s.DeleteGroup(s.Groups()[1])
	require.Empty(t, s.Groups())
}

func TestStructuralDeleteClearsStaleResetMarker(t *testing.T) {
	s := newTestSession(t,
		[2]string{"user", "a"},
		[2]string{"assistant", "b"},
		[2]string{"user", "c"},
	)
	s.ResetContextAt(s.Groups()[2])

	// Removing a group before the marker would shift indexes under it.
	s.RemoveGroup(s.Groups()[0])
	require.Nil(t, s.ResetMarker)
}

func TestRemoveGroupAfterMarkerKeepsMarker(t *testing.T) {
	s := newTestSession(t,
		[2]string{"user", "a"},
		[2]string{"assistant", "b"},
		[2]string{"user", "c"},
	)
	s.ResetContextAt(s.Groups()[0])

	s.RemoveGroup(s.Groups()[2])
	require.NotNil(t, s.ResetMarker)
	require.Equal(t, 0, *s.ResetMarker)
}

func TestDeleteAllGroupsClearsTreeAndMarker(t *testing.T) {
	s := newTestSession(t, [2]string{"user", "a"}, [2]string{"assistant", "b"})
	s.ResetContextAt(s.Groups()[0])
	s.ErrorMessage = "boom"

	s.DeleteAllGroups()
	require.Empty(t, s.Groups())
	require.Nil(t, s.ResetMarker)
	require.Empty(t, s.ErrorMessage)
}

func TestSessionCopyForksUpToGroup(t *testing.T) {
	s := newTestSession(t,
		[2]string{"user", "q1"},
		[2]string{"assistant", "a1"},
		[2]string{"user", "q2"},
		[2]string{"assistant", "a2"},
		[2]string{"user", "q3"},
	)
	s.Title = "Holidays"

	fork := s.Copy(s.Groups()[2], PurposeChat)
	require.Equal(t, "(Ψ) Holidays", fork.Title)
	require.NotEqual(t, s.ID, fork.ID)
	require.Len(t, fork.Groups(), 3)
	require.Equal(t, "q2", fork.LastGroup().ActiveConversation().Content)

	// The fork is fully detached: mutating it leaves the source alone.
	fork.LastGroup().ActiveConversation().Content = "rewritten"
	require.Equal(t, "q2", s.Groups()[2].ActiveConversation().Content)
	require.Same(t, fork, fork.LastGroup().Session())
}

func TestSessionCopyPreservesVariants(t *testing.T) {
	s := newTestSession(t, [2]string{"user", "q"})
	g := s.AddGroup(NewConversation(RoleAssistant, "v1"))
	g.AddConversation(NewConversation(RoleAssistant, "v2"))
	require.NoError(t, g.SetActive(0))

	fork := s.Copy(nil, PurposeQuick)
	require.Equal(t, "↯ "+DefaultSessionTitle, fork.Title)
	require.Equal(t, PurposeQuick, fork.Config.Purpose)

	forked := fork.LastGroup()
	require.Len(t, forked.Conversations, 2)
	require.Equal(t, 0, forked.ActiveIndex)
}

func TestRefreshTokensSumsAdjustedContextAndConfig(t *testing.T) {
	s := newTestSession(t,
		[2]string{"user", "the quick brown fox"},
		[2]string{"assistant", "jumps over the lazy dog"},
	)
	s.Config.SystemPrompt = "You are terse."

	s.RefreshTokens()
	want := CountTokens("the quick brown fox") +
		CountTokens("jumps over the lazy dog") +
		CountTokens("You are terse.")
	require.Equal(t, want, s.TokenCount)

	s.ResetContextAt(s.Groups()[0])
	s.RefreshTokens()
	require.Equal(t, CountTokens("jumps over the lazy dog")+CountTokens("You are terse."), s.TokenCount)
}

func TestIsReplyingFollowsLastActiveVariant(t *testing.T) {
	s := newTestSession(t, [2]string{"user", "q"})
	require.False(t, s.IsReplying())

	s.AddGroup(NewConversation(RoleAssistant, "", WithReplying()))
	require.True(t, s.IsReplying())

	s.LastGroup().ActiveConversation().IsReplying = false
	require.False(t, s.IsReplying())
}
