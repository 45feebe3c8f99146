package prompt

import (
	"errors"
	"strings"

	"github.com/nlin-dev/chatrelay/internal/model/chat"
)

// ErrEmptyMessage rejects chat requests whose user text is blank.
var ErrEmptyMessage = errors.New("message must not be empty")

// Build produces the provider-facing message list: the stored transcript
// followed by the new user turn. The transcript is not mutated; the user
// turn only reaches history if the relay later succeeds.
func Build(transcript []chat.Turn, userText string) ([]chat.Turn, error) {
	if strings.TrimSpace(userText) == "" {
		return nil, ErrEmptyMessage
	}

	messages := make([]chat.Turn, 0, len(transcript)+1)
	messages = append(messages, transcript...)
	messages = append(messages, chat.UserTurn(userText))
	return messages, nil
}
