package streaming

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/providers"
)

const titlePrompt = "Summarize the conversation above in three words or fewer, usable as a title. Reply with the title only."

// GenerateTitle asks the title model for a short session title based on the
// conversation so far. Quick sessions are skipped.
func GenerateTitle(ctx context.Context, session *chat.Session, service providers.Service) (string, error) {
	if session.Quick {
		return "", errors.New("quick sessions do not get titles")
	}

	conversations := chat.ContextFor(session)
	if len(conversations) == 0 {
		return "", errors.New("nothing to summarize")
	}
	conversations = append(conversations,
		chat.NewConversation(chat.RoleUser, titlePrompt))

	config := session.Config.Copy(chat.PurposeTitle)

	resp, err := service.NonStreamingResponse(ctx, conversations, config)
	if err != nil {
		return "", errors.Wrap(err, "title generation failed")
	}

	title := strings.TrimSpace(resp.Content)
	title = strings.Trim(title, `"'`)
	title = strings.ReplaceAll(title, "\n", " ")
	if title == "" {
		return "", errors.New("empty title")
	}
	return title, nil
}
