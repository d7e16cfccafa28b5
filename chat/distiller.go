package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/antigravity-app/antigravity/domain"
	"github.com/antigravity-app/antigravity/gemini"
)

const (
	distillModel         = "gemini-2.5-flash-lite"
	distillFallbackModel = "gemini-2.5-flash"

	// minDistillMessages is the minimum transcript size worth distilling.
	minDistillMessages = 2
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// distilledProfile is the validated shape expected from the distillation
// call. A missing facts array marks the result malformed.
type distilledProfile struct {
	Name        string   `json:"name"`
	Preferences []string `json:"preferences"`
	Facts       []string `json:"facts"`
	Mood        string   `json:"mood"`
}

// Distiller turns a conversation transcript plus the current profile
// into an updated profile. Updates are best-effort: any failure returns
// the input profile unchanged.
type Distiller struct {
	provider gemini.Provider
	now      func() int64
}

// NewDistiller creates a distiller over the given provider.
func NewDistiller(provider gemini.Provider) *Distiller {
	return &Distiller{provider: provider, now: domain.NowMillis}
}

// extractJSON slices the raw response between the first '{' and the last
// '}', tolerating surrounding prose. Falls back to the contents of a
// fenced code block.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start != -1 && end != -1 && end > start {
		return raw[start : end+1]
	}
	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return raw
}

// mergeSet unions two string sets, preserving the order of existing
// entries and deduplicating.
func mergeSet(existing, incoming []string) []string {
	merged := make([]string, 0, len(existing)+len(incoming))
	seen := make(map[string]bool, len(existing)+len(incoming))
	for _, v := range existing {
		if !seen[v] {
			seen[v] = true
			merged = append(merged, v)
		}
	}
	for _, v := range incoming {
		if !seen[v] {
			seen[v] = true
			merged = append(merged, v)
		}
	}
	return merged
}

func (d *Distiller) buildPrompt(transcript []domain.Message, profile domain.UserProfile) string {
	current, _ := json.Marshal(profile)

	var convo strings.Builder
	for _, msg := range transcript {
		fmt.Fprintf(&convo, "%s: %s\n", strings.ToUpper(string(msg.Role)), msg.Content)
	}

	return fmt.Sprintf(`You are a Memory Core. Your job is to UPDATE the User Profile based on the new conversation.

CURRENT PROFILE (JSON):
%s

RECENT CONVERSATION:
%s
INSTRUCTIONS:
1. Identify any NEW facts, preferences, or personal details mentioned by the USER.
2. MERGE these new facts into the existing 'facts' and 'preferences' arrays.
3. DO NOT remove existing facts unless explicitly contradicted.
4. Keep 'mood' updated based on recent tone.
5. Return the FULL updated JSON object.

OUTPUT FORMAT (JSON ONLY):
{"name":"string","preferences":["string"],"facts":["string"],"mood":"string","lastUpdated":%d}`,
		current, convo.String(), d.now())
}

// Distill extracts new facts and preferences from the transcript and
// unions them into the profile. Requires at least two messages. On any
// provider or parse failure the input profile is returned unchanged;
// a quota/availability error is retried exactly once on the fallback
// model.
func (d *Distiller) Distill(ctx context.Context, transcript []domain.Message, profile domain.UserProfile) domain.UserProfile {
	if len(transcript) < minDistillMessages {
		return profile
	}

	prompt := d.buildPrompt(transcript, profile)

	model := distillModel
	for attempt := 0; attempt <= 1; attempt++ {
		raw, err := d.provider.GenerateJSON(ctx, model, prompt)
		if err != nil {
			log.Printf("[MEMORY] distillation failed on %s: %v", model, err)
			if attempt == 0 && isRecoverable(err) {
				model = distillFallbackModel
				continue
			}
			return profile
		}

		var parsed distilledProfile
		if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
			log.Printf("[MEMORY] unparsable distillation output: %v", err)
			return profile
		}
		if parsed.Facts == nil {
			log.Printf("[MEMORY] malformed distillation output: missing facts")
			return profile
		}

		updated := profile
		if parsed.Name != "" {
			updated.Name = parsed.Name
		}
		if parsed.Mood != "" {
			updated.Mood = parsed.Mood
		}
		updated.Facts = mergeSet(profile.Facts, parsed.Facts)
		updated.Preferences = mergeSet(profile.Preferences, parsed.Preferences)
		updated.LastUpdated = d.now()
		return updated
	}

	return profile
}
