package gemini

import (
	"fmt"
	"strings"
	"time"

	"github.com/antigravity-app/antigravity/domain"
)

// orDefault substitutes a fallback for empty profile fields.
func orDefault(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}

// BuildSystemInstruction assembles the memory-aware system prompt from
// the user profile. The extra instruction, when present, is appended
// verbatim.
func BuildSystemInstruction(profile domain.UserProfile, extra string, now time.Time) string {
	var facts strings.Builder
	if len(profile.Facts) > 0 {
		fmt.Fprintf(&facts, "\n## IMPORTANT - THINGS I KNOW ABOUT %s:\n", strings.ToUpper(profile.Name))
		for i, f := range profile.Facts {
			fmt.Fprintf(&facts, "%d. %s\n", i+1, f)
		}
	} else {
		facts.WriteString("\n(No facts stored yet about this user)\n")
	}

	var prefs strings.Builder
	if len(profile.Preferences) > 0 {
		prefs.WriteString("\n## USER PREFERENCES:\n")
		for _, p := range profile.Preferences {
			fmt.Fprintf(&prefs, "- %s\n", p)
		}
	}

	return fmt.Sprintf(`You are Antigravity, a personal AI assistant with PERSISTENT MEMORY.

# USER PROFILE
Name: %s
Current Mood: %s
Writing Style: %s
Expertise: %s
%s%s

# SYSTEM CONFIGURATION
Active Persona: %s
Neural Scene: %s

# CRITICAL INSTRUCTIONS:
1. You MUST remember and reference the facts listed above when relevant.
2. ADOPT the 'Active Persona' defined above. Tone and style should reflect this personality.
3. CONTEXTUALIZE responses based on the 'Neural Scene'. (e.g., if 'War Room', be strategic and direct).
4. RESPECT the user's 'Writing Style' and 'Expertise'. Don't over-explain concepts they already know.
5. If the user asks "what do you know about me?", LIST the facts above.
6. Current time: %s
%s`,
		profile.Name,
		profile.Mood,
		orDefault(profile.WritingStyle, "Standard"),
		orDefault(profile.KnowledgeBase, "General"),
		facts.String(),
		prefs.String(),
		orDefault(profile.Persona, "Default Assistant"),
		orDefault(profile.NeuralScene, "Standard Void"),
		now.Format("1/2/2006, 3:04:05 PM"),
		extra)
}

// BuildTurns converts a transcript into provider turn history plus the
// final user message. The provider requires the history to open with a
// user turn, so leading non-user turns are discarded. Returns ok=false
// when the transcript is empty.
func BuildTurns(messages []domain.Message) (history []Turn, lastUser string, ok bool) {
	if len(messages) == 0 {
		return nil, "", false
	}

	turns := make([]Turn, 0, len(messages))
	for _, msg := range messages {
		role := domain.RoleAssistant
		if msg.Role == domain.RoleUser {
			role = domain.RoleUser
		}
		turns = append(turns, Turn{Role: role, Text: msg.Content})
	}

	last := turns[len(turns)-1]
	past := turns[:len(turns)-1]

	for len(past) > 0 && past[0].Role != domain.RoleUser {
		past = past[1:]
	}

	return past, last.Text, true
}
