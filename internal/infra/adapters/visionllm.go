package adapters

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yanqian/meridian/internal/domain/ingest"
	"github.com/yanqian/meridian/internal/infra/llm/chatgpt"
)

// VisionLLM implements ingest.VisionLLM against a ChatGPT-compatible chat
// completions endpoint. Every method degrades to a structured zero-value
// result rather than propagating a parse failure — only transport errors
// from the underlying client surface to callers.
type VisionLLM struct {
	client      *chatgpt.Client
	model       string
	temperature float32
	limiter     *RateLimitedContext
	logger      *slog.Logger
}

// NewVisionLLM constructs a VisionLLM adapter.
func NewVisionLLM(client *chatgpt.Client, model string, temperature float32, ratePerSecond float64, logger *slog.Logger) *VisionLLM {
	return &VisionLLM{
		client:      client,
		model:       model,
		temperature: temperature,
		limiter:     NewRateLimitedContext(ratePerSecond),
		logger:      logger.With("component", "adapters.visionllm"),
	}
}

func (v *VisionLLM) complete(ctx context.Context, system, user string) (string, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := v.client.CreateChatCompletion(ctx, chatgpt.ChatCompletionRequest{
		Model:       v.model,
		Temperature: v.temperature,
		Messages: []chatgpt.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Caption describes an inline image or table asset for substitution into
// markdown (Stage 3).
func (v *VisionLLM) Caption(ctx context.Context, imageBytes []byte, hint string) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(imageBytes)
	user := fmt.Sprintf("Hint: %s\nBase64 image payload (truncated in logs): %s", hint, truncate(encoded, 2048))
	out, err := v.complete(ctx, "You caption images and tables extracted from organizational documents in one or two sentences. Respond with plain text only.", user)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "an uncaptioned asset", nil
	}
	return out, nil
}

type classifyPayload struct {
	Category         string  `json:"category"`
	MeetingSubtype   *string `json:"meetingSubtype"`
	StandardizedName string  `json:"standardizedName"`
}

// Classify is the LLM fallback for Stage 2 when filename/path heuristics are
// ambiguous.
func (v *VisionLLM) Classify(ctx context.Context, fileName, path string) (ingest.ClassifyResult, error) {
	system := "Classify the document named by the user into one of: meeting, work, other. If it is a meeting document, also classify its subtype as one of: agenda, minutes, result. Respond with compact JSON: {\"category\":\"...\",\"meetingSubtype\":\"...\"|null,\"standardizedName\":\"...\"}."
	user := fmt.Sprintf("fileName=%q path=%q", fileName, path)
	out, err := v.complete(ctx, system, user)
	if err != nil {
		return ingest.ClassifyResult{}, err
	}
	var parsed classifyPayload
	if jsonErr := json.Unmarshal([]byte(extractJSON(out)), &parsed); jsonErr != nil {
		v.logger.Warn("classify response malformed, falling back to other", "error", jsonErr)
		return ingest.ClassifyResult{Category: ingest.DocCategoryOther}, nil
	}
	result := ingest.ClassifyResult{
		Category:         ingest.DocCategory(parsed.Category),
		StandardizedName: parsed.StandardizedName,
	}
	if parsed.MeetingSubtype != nil {
		subtype := ingest.MeetingSubtype(*parsed.MeetingSubtype)
		result.MeetingSubtype = &subtype
	}
	return result, nil
}

type summarizePayload struct {
	Summary     string   `json:"summary"`
	HasDecision bool     `json:"hasDecision"`
	ActionItems []string `json:"actionItems"`
}

// SummarizeSection produces a short summary, decision flag, and action items
// for a preprocessed section.
func (v *VisionLLM) SummarizeSection(ctx context.Context, sectionText string, kind ingest.ChunkType) (ingest.SummarizeResult, error) {
	system := "Summarize the organizational document section the user provides in 1-3 sentences. Flag whether it records a decision, and list any action items. Respond with compact JSON: {\"summary\":\"...\",\"hasDecision\":true|false,\"actionItems\":[\"...\"]}."
	user := fmt.Sprintf("kind=%s\n%s", kind, sectionText)
	out, err := v.complete(ctx, system, user)
	if err != nil {
		return ingest.SummarizeResult{}, err
	}
	var parsed summarizePayload
	if jsonErr := json.Unmarshal([]byte(extractJSON(out)), &parsed); jsonErr != nil {
		v.logger.Warn("summarize response malformed, returning empty summary", "error", jsonErr)
		return ingest.SummarizeResult{}, nil
	}
	return ingest.SummarizeResult{Summary: parsed.Summary, HasDecision: parsed.HasDecision, ActionItems: parsed.ActionItems}, nil
}

// RewriteQuery folds recent conversation history into a standalone query
// (Stage C8 query rewriting).
func (v *VisionLLM) RewriteQuery(ctx context.Context, history []ingest.ConversationTurn, newQuery string) (string, error) {
	var sb strings.Builder
	for _, turn := range history {
		sb.WriteString(turn.Role)
		sb.WriteString(": ")
		sb.WriteString(turn.Content)
		sb.WriteString("\n")
	}
	system := "Rewrite the user's latest message into a standalone search query that makes sense without the conversation history. Respond with the rewritten query only, no quotes or explanation."
	user := fmt.Sprintf("History:\n%s\nLatest message: %s", sb.String(), newQuery)
	out, err := v.complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return newQuery, nil
	}
	return out, nil
}

// GenerateAnswer produces the final chat answer grounded in retrieved
// context chunks.
func (v *VisionLLM) GenerateAnswer(ctx context.Context, query string, contextChunks []string) (string, error) {
	system := "Answer the user's question using only the provided context. If the context does not contain the answer, say you could not find relevant information."
	user := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", strings.Join(contextChunks, "\n---\n"), query)
	out, err := v.complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

type inferEventPayload struct {
	Title      string  `json:"title"`
	Year       *int    `json:"year"`
	Department string  `json:"department"`
	Date       *string `json:"date"`
}

// InferEvent reads which event a parent chunk most likely belongs to
// (Stage 6 enrichment).
func (v *VisionLLM) InferEvent(ctx context.Context, chunkText string) (ingest.InferredEvent, error) {
	system := "Identify which organizational event (meeting, project milestone, etc) the section belongs to. Respond with compact JSON: {\"title\":\"...\",\"year\":2024|null,\"department\":\"...\",\"date\":\"YYYY-MM-DD\"|null}."
	out, err := v.complete(ctx, system, chunkText)
	if err != nil {
		return ingest.InferredEvent{}, err
	}
	var parsed inferEventPayload
	if jsonErr := json.Unmarshal([]byte(extractJSON(out)), &parsed); jsonErr != nil {
		v.logger.Warn("infer event response malformed, returning untitled event", "error", jsonErr)
		return ingest.InferredEvent{}, nil
	}
	event := ingest.InferredEvent{Title: parsed.Title, Year: parsed.Year, Department: parsed.Department}
	if parsed.Date != nil {
		if parsedDate, parseErr := parseDateOnly(*parsed.Date); parseErr == nil {
			event.Date = &parsedDate
		}
	}
	return event, nil
}

// RestructureSections inserts markdown H1/H2 headers into unstructured text
// (Stage 4 preprocessing fallback).
func (v *VisionLLM) RestructureSections(ctx context.Context, text string) (string, error) {
	system := "Insert markdown section headers (## Header) into the document text to make its structure explicit. Preserve all original content, only add headers. Respond with the restructured markdown only."
	out, err := v.complete(ctx, system, text)
	if err != nil {
		return "", err
	}
	return out, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// extractJSON trims any prose surrounding a JSON object the model may have
// added despite the system prompt asking for JSON only.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
