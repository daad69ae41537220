// Package concept implements the Concept Extractor (C7): an LLM call via a
// prompt template, strict JSON-array parsing with retries, and
// normalization.
package concept

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/danja/semem"
	"github.com/danja/semem/prompt"
)

// Chat is the narrow LLM collaborator interface this package needs.
type Chat interface {
	Chat(ctx context.Context, system, user string, temperature float64) (string, error)
}

const maxConceptLen = 120
const maxConcepts = 32

var codeFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// Extractor is the Concept Extractor (C7).
type Extractor struct {
	chat     Chat
	prompts  *prompt.Service
	model    string
	log      *slog.Logger
}

func New(chat Chat, prompts *prompt.Service, model string, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{chat: chat, prompts: prompts, model: model, log: log}
}

// ExtractConcepts calls the LLM via the C3 prompt template keyed on the
// configured chat model, parses a strict JSON array of strings (tolerant
// of surrounding whitespace and a code fence), and normalizes the result:
// trim, lowercase-fold for dedup but keep original casing, drop empties,
// drop >120-char strings, cap at 32.
func (e *Extractor) ExtractConcepts(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	tpl, err := e.prompts.Select("concepts", e.model)
	if err != nil {
		return nil, semem.Wrap(semem.KindProvider, "concept", err)
	}
	userPrompt := prompt.Render(tpl, map[string]string{"text": text})

	var lastErr error
	for attempt := 0; attempt <= 2; attempt++ {
		sys := "You are a concept extraction engine. Respond only with a JSON array of strings."
		if attempt > 0 {
			userPrompt += "\n\nRespond with a JSON array of strings ONLY. No prose, no markdown."
		}

		raw, err := e.chat.Chat(ctx, sys, userPrompt, 0.2)
		if err != nil {
			return nil, semem.Wrap(semem.KindProvider, "concept", fmt.Errorf("%w: %v", semem.ErrProviderUnavailable, err))
		}

		concepts, parseErr := parseConceptArray(raw)
		if parseErr == nil {
			normalized := normalize(concepts)
			if len(normalized) == 0 {
				e.log.Warn("concept: extractor returned an empty concept list", "textLen", len(text))
			}
			return normalized, nil
		}
		lastErr = parseErr
		e.log.Debug("concept: parse failed, retrying", "attempt", attempt, "err", parseErr)
	}

	return nil, semem.Wrap(semem.KindProvider, "concept", fmt.Errorf("%w: %v", semem.ErrParseAfterRetries, lastErr))
}

func parseConceptArray(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if m := codeFence.FindStringSubmatch(trimmed); m != nil {
		trimmed = strings.TrimSpace(m[1])
	}

	var out []string
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, fmt.Errorf("not a JSON array: %w", err)
	}
	return out, nil
}

func normalize(concepts []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range concepts {
		trimmed := strings.TrimSpace(c)
		if trimmed == "" || len(trimmed) > maxConceptLen {
			continue
		}
		key := strings.ToLower(trimmed)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, trimmed)
	}
	sort.Strings(out)
	if len(out) > maxConcepts {
		out = out[:maxConcepts]
	}
	return out
}
