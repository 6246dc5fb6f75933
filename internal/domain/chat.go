package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one entry of a room's bounded chat log. Timestamp is unix
// milliseconds, matching what the web client renders directly.
type ChatMessage struct {
	ID         string        `json:"id"`
	AuthorID   ParticipantID `json:"authorId"`
	AuthorName string        `json:"authorName"`
	Text       string        `json:"text"`
	Timestamp  int64         `json:"timestamp"`
}

func NewChatMessage(author *Participant, text string, now time.Time) ChatMessage {
	return ChatMessage{
		ID:         uuid.NewString(),
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Text:       text,
		Timestamp:  now.UnixMilli(),
	}
}
