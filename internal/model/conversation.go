package model

const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

type Conversation struct {
	ID            int64  `json:"id"`
	OrgID         string `json:"org_id"`
	UserID        string `json:"user_id"`
	Title         string `json:"title"`
	Archived      int    `json:"archived"`
	Ctime         int64  `json:"ctime"`
	LastMessageAt int64  `json:"last_message_at"`
}

// Message rows are append-only; Reasoning and Sources are only present on
// assistant messages.
type Message struct {
	ID             int64           `json:"id"`
	ConversationID int64           `json:"conversation_id"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	Reasoning      []string        `json:"reasoning,omitempty"`
	Sources        *MessageSources `json:"sources,omitempty"`
	Ctime          int64           `json:"ctime"`
}

type MessageSources struct {
	Documents []DocumentSource `json:"documents"`
	Employees []EmployeeSource `json:"employees"`
	External  []ExternalSource `json:"external"`
}

type DocumentSource struct {
	DocID      int64   `json:"doc_id"`
	Filename   string  `json:"filename"`
	Page       int     `json:"page,omitempty"`
	ChunkIndex int     `json:"chunk_index"`
	ChunkText  string  `json:"chunk_text"`
	Score      float64 `json:"score"`
}

type EmployeeSource struct {
	UserID      string  `json:"user_id"`
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Specialties string  `json:"specialties"`
	Relevance   float64 `json:"relevance"`
}

type ExternalSource struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
}
