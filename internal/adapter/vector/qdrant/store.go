package qdrant

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

const (
	vectorSize = 1536
	distance   = "Cosine"

	chunkChars      = 2000
	chunkOverlap    = 200
	embedBatch      = 16
	maxChunksPerDoc = 100
)

// Store implements domain.VectorStore: research documents are chunked,
// embedded through the AI client, and kept in one collection partitioned by
// session_id payload.
type Store struct {
	Client     *Client
	AI         domain.AIClient
	Collection string
}

// NewStore wires the document store over a low-level client.
func NewStore(client *Client, ai domain.AIClient, collection string) *Store {
	return &Store{Client: client, AI: ai, Collection: collection}
}

// Bootstrap ensures the backing collection exists.
func (s *Store) Bootstrap(ctx domain.Context) error {
	if err := s.Client.EnsureCollection(ctx, s.Collection, vectorSize, distance); err != nil {
		return fmt.Errorf("op=qdrant.Bootstrap: %w", err)
	}
	return nil
}

// UpsertDocuments chunks, embeds, and writes the documents under sessionID.
// Point ids are deterministic over (session, source, chunk) so re-ingesting
// a source overwrites instead of duplicating.
func (s *Store) UpsertDocuments(ctx domain.Context, sessionID string, docs []domain.Document) error {
	tracer := otel.Tracer("vector.qdrant")
	ctx, span := tracer.Start(ctx, "vector.UpsertDocuments")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID), attribute.Int("docs", len(docs)))

	type pending struct {
		text    string
		payload map[string]any
		id      any
	}
	var batch []pending
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.text
		}
		vecs, err := s.AI.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embed returned %d vectors for %d texts", len(vecs), len(batch))
		}
		payloads := make([]map[string]any, len(batch))
		ids := make([]any, len(batch))
		for i, p := range batch {
			payloads[i] = p.payload
			ids[i] = p.id
		}
		if err := s.Client.UpsertPoints(ctx, s.Collection, vecs, payloads, ids); err != nil {
			return fmt.Errorf("qdrant upsert: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for _, doc := range docs {
		chunks := chunkText(doc.PageContent, chunkChars, chunkOverlap)
		if len(chunks) > maxChunksPerDoc {
			chunks = chunks[:maxChunksPerDoc]
		}
		for ci, chunk := range chunks {
			batch = append(batch, pending{
				text:    chunk,
				payload: payloadFor(sessionID, doc, chunk, ci),
				id:      pointID(sessionID, doc.Metadata.Source, ci),
			})
			if len(batch) == embedBatch {
				if err := flush(); err != nil {
					return fmt.Errorf("op=qdrant.UpsertDocuments: %w", err)
				}
			}
		}
	}
	if err := flush(); err != nil {
		return fmt.Errorf("op=qdrant.UpsertDocuments: %w", err)
	}
	return nil
}

// Search embeds the query and returns the session's nearest documents.
func (s *Store) Search(ctx domain.Context, sessionID, query string, limit int) ([]domain.Document, error) {
	tracer := otel.Tracer("vector.qdrant")
	ctx, span := tracer.Start(ctx, "vector.Search")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID), attribute.Int("limit", limit))

	vecs, err := s.AI.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("op=qdrant.Search: embed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("op=qdrant.Search: embed returned no vector")
	}
	hits, err := s.Client.Search(ctx, s.Collection, vecs[0], limit, sessionFilter(sessionID))
	if err != nil {
		return nil, fmt.Errorf("op=qdrant.Search: %w", err)
	}
	docs := make([]domain.Document, 0, len(hits))
	for _, h := range hits {
		payload, ok := h["payload"].(map[string]any)
		if !ok {
			continue
		}
		docs = append(docs, documentFromPayload(payload))
	}
	return docs, nil
}

// ReplaceBySource swaps every entry for the document's source URL within the
// session: delete by filter (waited), then insert the fresh chunks.
func (s *Store) ReplaceBySource(ctx domain.Context, sessionID string, doc domain.Document) error {
	tracer := otel.Tracer("vector.qdrant")
	ctx, span := tracer.Start(ctx, "vector.ReplaceBySource")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID), attribute.String("source", doc.Metadata.Source))

	if doc.Metadata.Source == "" {
		return fmt.Errorf("op=qdrant.ReplaceBySource: %w: document has no source", domain.ErrInvalidArgument)
	}
	if err := s.Client.DeleteByFilter(ctx, s.Collection, sourceFilter(sessionID, doc.Metadata.Source)); err != nil {
		return fmt.Errorf("op=qdrant.ReplaceBySource: delete: %w", err)
	}
	if err := s.UpsertDocuments(ctx, sessionID, []domain.Document{doc}); err != nil {
		return fmt.Errorf("op=qdrant.ReplaceBySource: %w", err)
	}
	return nil
}

func sessionFilter(sessionID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "session_id", "match": map[string]any{"value": sessionID}},
		},
	}
}

func sourceFilter(sessionID, source string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "session_id", "match": map[string]any{"value": sessionID}},
			{"key": "source", "match": map[string]any{"value": source}},
		},
	}
}

func payloadFor(sessionID string, doc domain.Document, chunk string, idx int) map[string]any {
	m := doc.Metadata
	p := map[string]any{
		"session_id": sessionID,
		"text":       chunk,
		"chunk":      idx,
		"source":     m.Source,
		"title":      m.Title,
	}
	if m.ContentType != "" {
		p["content_type"] = m.ContentType
	}
	if m.IsPDF {
		p["is_pdf"] = true
	}
	if m.PartialPDFContent {
		p["partial_pdf_content"] = true
	}
	if m.ExtractionMethod != "" {
		p["extraction_method"] = m.ExtractionMethod
	}
	if m.ProcessedAt != "" {
		p["processed_at"] = m.ProcessedAt
	}
	if m.PdfJobID != "" {
		p["pdf_job_id"] = m.PdfJobID
	}
	return p
}

func documentFromPayload(p map[string]any) domain.Document {
	return domain.Document{
		PageContent: payloadString(p, "text"),
		Metadata: domain.DocumentMetadata{
			Source:            payloadString(p, "source"),
			Title:             payloadString(p, "title"),
			ContentType:       payloadString(p, "content_type"),
			IsPDF:             payloadBool(p, "is_pdf"),
			PartialPDFContent: payloadBool(p, "partial_pdf_content"),
			ExtractionMethod:  payloadString(p, "extraction_method"),
			ProcessedAt:       payloadString(p, "processed_at"),
			PdfJobID:          payloadString(p, "pdf_job_id"),
		},
	}
}

func payloadString(p map[string]any, k string) string {
	v, _ := p[k].(string)
	return v
}

func payloadBool(p map[string]any, k string) bool {
	v, _ := p[k].(bool)
	return v
}

// pointID is deterministic so re-ingesting the same chunk overwrites it.
func pointID(sessionID, source string, chunk int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sessionID+"|"+source+"|"+strconv.Itoa(chunk))).String()
}

// chunkText splits text into overlapping windows. Short texts come back as a
// single chunk; whitespace-only input yields none.
func chunkText(s string, size, overlap int) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if len(s) <= size {
		return []string{s}
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}
	var chunks []string
	for start := 0; start < len(s); start += step {
		end := start + size
		if end > len(s) {
			end = len(s)
		}
		if c := s[start:end]; strings.TrimSpace(c) != "" {
			chunks = append(chunks, c)
		}
		if end == len(s) {
			break
		}
	}
	return chunks
}
