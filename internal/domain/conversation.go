package domain

// Role tags the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message exchanged in a chat. Turns are values and are never
// mutated after they are appended to a history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserTurn builds a turn authored by the chat participant.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn builds a turn holding a generated reply.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// InboundMessage is one text message delivered by the messaging transport.
type InboundMessage struct {
	ID     string
	ChatID string
	Text   string
}
