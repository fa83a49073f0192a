package mapping

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ohler55/ojg/oj"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/logging"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// ErrNoAPIKey is returned when no Gemini API key is configured.
var ErrNoAPIKey = errors.New("gemini API key is required")

// Completer sends a prompt to a language model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// GenAIModel is a Completer backed by the Gemini API.
type GenAIModel struct {
	client *genai.Client
	model  string
}

// NewGenAIModel creates a Gemini client for model.
func NewGenAIModel(ctx context.Context, apiKey, model string) (*GenAIModel, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIModel{client: client, model: model}, nil
}

// Complete implements Completer. The reply is requested as JSON.
func (m *GenAIModel) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := m.client.Models.GenerateContent(ctx, m.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			Temperature:       genai.Ptr[float32](0),
		})
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	return resp.Text(), nil
}

const systemPrompt = `You map spreadsheet columns to JavaScript variables of an HTML5 ad banner.
Reply with a single JSON object whose keys are column names and whose values are
variable paths copied exactly from the list you are given. Leave out columns that
have no sensible variable. Never map the TIER variable.`

// Gemini asks a language model for a mapping. Entries naming an unknown
// column or variable are dropped.
type Gemini struct {
	Model  Completer
	Logger *zap.Logger
}

// Suggest implements Suggester.
func (g Gemini) Suggest(ctx context.Context, in Input) (api.ColumnMapping, error) {
	if g.Model == nil {
		return nil, ErrNoAPIKey
	}
	reply, err := g.Model.Complete(ctx, systemPrompt, prompt(in))
	if err != nil {
		return nil, err
	}

	raw, err := oj.ParseString(stripFence(reply))
	if err != nil {
		return nil, fmt.Errorf("parse model reply: %w", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("model reply is %T, want object", raw)
	}

	vars := make(map[string]bool, len(in.Variables))
	for _, v := range in.Variables {
		vars[v] = true
	}
	log := logging.OrNop(g.Logger)

	// Keep the caller's column order rather than the model's.
	var out api.ColumnMapping
	for _, col := range in.Columns {
		v, ok := obj[col]
		if !ok {
			continue
		}
		path, _ := v.(string)
		path = strings.TrimSpace(path)
		if path == "" || path == "none" {
			continue
		}
		if (!vars[path] && !vars[path+".Url"]) || path == api.TierPath {
			log.Debug("dropping suggested mapping", zap.String("column", col), zap.String("path", path))
			continue
		}
		out = append(out, api.MappingEntry{Field: col, Path: path})
	}
	if len(out) == 0 {
		return nil, ErrNoSuggestion
	}
	return out, nil
}

func prompt(in Input) string {
	var b strings.Builder
	b.WriteString("Columns:\n")
	for _, c := range in.Columns {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteByte('\n')
	}
	b.WriteString("\nVariables:\n")
	for _, v := range in.Variables {
		b.WriteString("- ")
		b.WriteString(v)
		b.WriteByte('\n')
	}
	if in.Tier.Valid() {
		fmt.Fprintf(&b, "\nTier: %s (rows are identified by the %q column)\n", in.Tier, in.Tier.Column())
	}
	return b.String()
}

// stripFence removes a Markdown code fence around a JSON reply.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
