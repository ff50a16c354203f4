package dto

type CreateSessionRequest struct {
	Provider       string `json:"provider" validate:"omitempty,oneof=gigachat google openai"`
	ChatModel      string `json:"chat_model"`
	EmbeddingModel string `json:"embedding_model"`
}

type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	Provider  string `json:"provider"`
}

type FileResultResponse struct {
	File  string `json:"file"`
	Rows  int    `json:"rows"`
	Error string `json:"error,omitempty"`
}

type IngestResponse struct {
	Files   []FileResultResponse `json:"files"`
	Indexed int                  `json:"indexed"`
	Ready   bool                 `json:"ready"`
	Error   string               `json:"error,omitempty"`
}

type ChatRequest struct {
	Message string `json:"message" validate:"required"`
}

type ChatResponse struct {
	Answer string `json:"answer"`
}
