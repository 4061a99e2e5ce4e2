package bus

import (
	"strconv"
	"time"
)

type InboundMessage struct {
	Channel   string
	ChatID    int64
	TopicID   int
	MessageID int
	SenderID  string
	Content   string
	Timestamp time.Time
}

func (m *InboundMessage) ConversationKey() string {
	return m.Channel + ":" + strconv.FormatInt(m.ChatID, 10)
}

type OutboundMessage struct {
	Channel string
	ChatID  int64
	TopicID int
	ReplyTo int
	Content string
}
