package types

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one entry of a video's append-only chat history.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is what a chat completer receives as prior context.
type Message struct {
	Role    Role
	Content string
}

// CutProposal is the validated outcome of one chat turn.
type CutProposal struct {
	AiMessage  string     `json:"ai_message"`
	Cuts       []CutRange `json:"cuts"`
	Dropped    int        `json:"dropped"`
	Structured bool       `json:"structured"`
}

func (p CutProposal) Clone() CutProposal {
	out := p
	out.Cuts = append([]CutRange{}, p.Cuts...)
	return out
}
