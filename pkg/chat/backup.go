package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// BackupVersion is bumped whenever the backup document layout changes.
const BackupVersion = 1

// Backup is the portable on-disk form of a set of sessions. Branches are
// flattened to their active variants, so restoring a backup loses alternate
// variants by design of the format.
type Backup struct {
	Version  int             `json:"version"`
	Date     time.Time       `json:"date"`
	Sessions []SessionBackup `json:"sessions"`
}

type SessionBackup struct {
	ID           uuid.UUID     `json:"id"`
	Date         time.Time     `json:"date"`
	Order        int           `json:"order"`
	Title        string        `json:"title"`
	Starred      bool          `json:"starred"`
	ErrorMessage string        `json:"errorMessage"`
	ResetMarker  *int          `json:"resetMarker,omitempty"`
	Groups       []GroupBackup `json:"groups"`
}

type GroupBackup struct {
	Date         time.Time          `json:"date"`
	Conversation ConversationBackup `json:"conversation"`
}

type ConversationBackup struct {
	Date    time.Time `json:"date"`
	Role    Role      `json:"role"`
	Content string    `json:"content"`
}

// ExportBackup serializes sessions for backup. Quick sessions are transient
// and excluded.
func ExportBackup(sessions []*Session) ([]byte, error) {
	backup := Backup{
		Version: BackupVersion,
		Date:    time.Now(),
	}

	for _, s := range sessions {
		if s.Quick {
			continue
		}

		sb := SessionBackup{
			ID:           s.ID,
			Date:         s.Date,
			Order:        s.Order,
			Title:        s.Title,
			Starred:      s.Starred,
			ErrorMessage: s.ErrorMessage,
			ResetMarker:  s.ResetMarker,
		}
		for _, g := range s.Groups() {
			c := g.ActiveConversation()
			if c == nil {
				continue
			}
			sb.Groups = append(sb.Groups, GroupBackup{
				Date: g.Date,
				Conversation: ConversationBackup{
					Date:    c.Date,
					Role:    c.Role,
					Content: c.Content,
				},
			})
		}
		backup.Sessions = append(backup.Sessions, sb)
	}

	ret, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal backup")
	}
	return ret, nil
}

// ImportBackup rebuilds sessions from a backup document. Each restored group
// holds a single variant.
func ImportBackup(data []byte, config *SessionConfig) ([]*Session, error) {
	var backup Backup
	if err := json.Unmarshal(data, &backup); err != nil {
		return nil, errors.Wrap(err, "could not unmarshal backup")
	}
	if backup.Version > BackupVersion {
		return nil, errors.Errorf("unsupported backup version %d", backup.Version)
	}

	var ret []*Session
	for _, sb := range backup.Sessions {
		s := NewSession(config.Snapshot(), WithTitle(sb.Title), WithSessionID(sb.ID))
		s.Date = sb.Date
		s.Order = sb.Order
		s.Starred = sb.Starred
		s.ErrorMessage = sb.ErrorMessage
		s.ResetMarker = sb.ResetMarker

		for _, gb := range sb.Groups {
			c := NewConversation(gb.Conversation.Role, gb.Conversation.Content,
				WithDate(gb.Conversation.Date))
			g := s.AddGroup(c)
			g.Date = gb.Date
		}
		s.RefreshTokens()
		ret = append(ret, s)
	}
	return ret, nil
}
