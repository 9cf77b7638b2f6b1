// internal/chains/dialogue.go
package chains

import (
	"encoding/json"
	"strings"

	"github.com/medtrainlab/casesim/internal/models"
)

type rawLine struct {
	Speaker string `json:"speaker"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Text    string `json:"text"`
}

func (r rawLine) speaker() string {
	if r.Speaker != "" {
		return r.Speaker
	}
	return r.Name
}

func (r rawLine) content() string {
	if r.Content != "" {
		return r.Content
	}
	return r.Text
}

// ParseDialogue extracts dialogue entries from raw model output. It tries a
// JSON array first, then a single JSON object, then plain "Speaker: text"
// lines, and gives up with an empty slice rather than failing the turn.
// Speakers are mapped back to persona ids by id or name, case-insensitively.
func ParseDialogue(raw string, personas []*models.PersonaState) []models.DialogueEntry {
	cleaned := stripFences(strings.TrimSpace(raw))
	if cleaned == "" {
		return []models.DialogueEntry{}
	}

	byName := make(map[string]string, len(personas)*2)
	for _, persona := range personas {
		byName[strings.ToLower(persona.ID)] = persona.ID
		byName[strings.ToLower(persona.Name)] = persona.ID
	}

	if entries := parseJSONDialogue(cleaned, byName); entries != nil {
		return entries
	}
	return parseLineDialogue(cleaned, byName)
}

func parseJSONDialogue(cleaned string, byName map[string]string) []models.DialogueEntry {
	var lines []rawLine
	if err := json.Unmarshal([]byte(cleaned), &lines); err != nil {
		var single rawLine
		if err := json.Unmarshal([]byte(cleaned), &single); err != nil {
			return nil
		}
		lines = []rawLine{single}
	}

	entries := []models.DialogueEntry{}
	for _, line := range lines {
		speaker := strings.TrimSpace(line.speaker())
		content := strings.TrimSpace(line.content())
		if speaker == "" || content == "" {
			continue
		}
		entries = append(entries, models.DialogueEntry{
			Speaker:   speaker,
			Content:   content,
			PersonaID: byName[strings.ToLower(speaker)],
		})
	}
	if len(entries) == 0 {
		return nil
	}
	return entries
}

func parseLineDialogue(cleaned string, byName map[string]string) []models.DialogueEntry {
	entries := []models.DialogueEntry{}
	for _, line := range strings.Split(cleaned, "\n") {
		speaker, content, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		speaker = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(speaker), "-"))
		content = strings.TrimSpace(content)
		if speaker == "" || content == "" || strings.ContainsAny(speaker, "{}[]\"") {
			continue
		}
		entries = append(entries, models.DialogueEntry{
			Speaker:   speaker,
			Content:   content,
			PersonaID: byName[strings.ToLower(speaker)],
		})
	}
	return entries
}

func stripFences(raw string) string {
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
