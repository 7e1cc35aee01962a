package domain

// AI and external-collaborator ports. Implementations live under
// internal/adapter; the pipeline and tools depend only on these shapes.

// ChatMessage is one turn of an OpenAI-compatible conversation.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a model-requested tool invocation. Arguments is the raw JSON
// argument object as emitted by the provider.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSpec describes one callable tool in provider-neutral form. Parameters
// is a JSON-schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ResponseSchema requests structured output validated against a JSON schema.
type ResponseSchema struct {
	Name   string
	Schema map[string]any
}

type ChatRequest struct {
	Model          string
	Messages       []ChatMessage
	Tools          []ToolSpec
	ResponseFormat *ResponseSchema
	MaxTokens      int
	Temperature    float32
}

type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
}

// TokenStream yields streamed completion chunks. Recv blocks until the next
// chunk, returns io.EOF at end of stream, and respects the context the
// stream was created with. Close is idempotent.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

type AIClient interface {
	Chat(ctx Context, req ChatRequest) (ChatResponse, error)
	ChatStream(ctx Context, req ChatRequest) (TokenStream, error)
	Embed(ctx Context, texts []string) ([][]float32, error)
}

// WebSearchAPI is the external URL-discovery collaborator.
type WebSearchAPI interface {
	Search(ctx Context, query string, count int) ([]SearchResult, error)
}

// Scraper fetches the rendered text of a page. A nil document with a nil
// error reports an expected navigation failure (timeout, abort, download
// start, content below the minimum length); those are not errors for the
// caller.
type Scraper interface {
	Scrape(ctx Context, url, hintTitle string) (*Document, error)
}

// PDFService is the detection + extraction facade used by the scraper and
// the tools.
type PDFService interface {
	// IsPDFURL probes url by suffix, HEAD, then a 1 KB ranged GET. Any
	// positive signal short-circuits.
	IsPDFURL(ctx Context, url string) bool
	// Extract runs the primary streaming path. On deadline it returns a
	// partial document or enqueues a background job (nil document) per the
	// outcome rules.
	Extract(ctx Context, url, title string) (*Document, PdfOutcome, error)
	// ExtractInMemory downloads the bytes and parses pages locally. Used by
	// the background worker.
	ExtractInMemory(ctx Context, url, title string) (*Document, int, error)
}

// VectorStore persists and retrieves session-scoped research documents.
type VectorStore interface {
	UpsertDocuments(ctx Context, sessionID string, docs []Document) error
	Search(ctx Context, sessionID, query string, limit int) ([]Document, error)
	// ReplaceBySource atomically swaps all entries for doc's source URL
	// within the session (delete-then-insert scoped by metadata.source).
	ReplaceBySource(ctx Context, sessionID string, doc Document) error
}
