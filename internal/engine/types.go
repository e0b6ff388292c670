package engine

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Sampling carries model generation options.
type Sampling struct {
	// Temperature controls randomness (0-1); higher is more varied.
	Temperature float64
	// DoSample false requests deterministic, greedy decoding.
	DoSample bool
	// MaxNewTokens bounds the generated reply length. 0 means no bound.
	MaxNewTokens int
}

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}
