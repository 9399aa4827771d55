package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBackupRoundTrip(t *testing.T) {
	s := newTestSession(t,
		[2]string{"user", "what is the capital of France?"},
		[2]string{"assistant", "Paris."},
	)
	s.Title = "Geography"
	s.Starred = true
	s.Order = 3
	s.ResetContextAt(s.Groups()[0])

	data, err := ExportBackup([]*Session{s})
	require.NoError(t, err)

	restored, err := ImportBackup(data, testConfig())
	require.NoError(t, err)
	require.Len(t, restored, 1)

	got := restored[0]
	require.Equal(t, s.ID, got.ID)
	require.Equal(t, "Geography", got.Title)
	require.True(t, got.Starred)
	require.Equal(t, 3, got.Order)
	require.NotNil(t, got.ResetMarker)
	require.Equal(t, 0, *got.ResetMarker)

	groups := got.Groups()
	require.Len(t, groups, 2)
	require.Equal(t, RoleUser, groups[0].Role())
	require.Equal(t, "Paris.", groups[1].ActiveConversation().Content)
}

func TestBackupExcludesQuickSessions(t *testing.T) {
	keep := newTestSession(t, [2]string{"user", "hi"})
	quick := NewSession(testConfig(), WithQuick())
	quick.AddGroup(NewConversation(RoleUser, "ephemeral"))

	data, err := ExportBackup([]*Session{keep, quick})
	require.NoError(t, err)

	restored, err := ImportBackup(data, testConfig())
	require.NoError(t, err)
	require.Len(t, restored, 1)
	require.Equal(t, keep.ID, restored[0].ID)
}

func TestBackupFlattensVariantsToActive(t *testing.T) {
	s := newTestSession(t, [2]string{"user", "q"})
	g := s.AddGroup(NewConversation(RoleAssistant, "first draft"))
	g.AddConversation(NewConversation(RoleAssistant, "better draft"))

	data, err := ExportBackup([]*Session{s})
	require.NoError(t, err)

	restored, err := ImportBackup(data, testConfig())
	require.NoError(t, err)

	last := restored[0].LastGroup()
	require.Len(t, last.Conversations, 1)
	require.Equal(t, "better draft", last.ActiveConversation().Content)
}

func TestImportBackupRejectsNewerVersion(t *testing.T) {
	_, err := ImportBackup([]byte(`{"version": 99, "sessions": []}`), testConfig())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported backup version")
}
