package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stemsi/lessonflow/internal/model"
)

// ErrLessonMalformed means the lesson document is missing, unreadable or has
// no blocks. It is terminal for the learner.
var ErrLessonMalformed = errors.New("lesson document is malformed")

const untitledLesson = "Untitled lesson"

var typeAliases = map[string]model.BlockType{
	"paragraph": model.BlockText,
	"markdown":  model.BlockText,
	"mcq":       model.BlockQuiz,
	"question":  model.BlockQuiz,
	"divider":   model.BlockSectionBreak,
	"cta":       model.BlockCallToAction,
	"podcast":   model.BlockPodcastSync,
	"code":      model.BlockSandbox,
}

// AssembleOptions tunes Assemble.
type AssembleOptions struct {
	// Premium includes premiumContent pages after the free pages.
	Premium bool
}

// ParseDocument decodes a raw lesson document.
func ParseDocument(raw []byte) (model.LessonDocument, error) {
	var doc model.LessonDocument
	if len(bytes.TrimSpace(raw)) == 0 {
		return doc, ErrLessonMalformed
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("%w: %v", ErrLessonMalformed, err)
	}
	return doc, nil
}

// Assemble flattens a lesson document into the block sequence the engine
// consumes. Unknown block types degrade to text, ids are made unique, and a
// title heading is guaranteed at position 0.
func Assemble(doc model.LessonDocument, opts AssembleOptions) ([]model.Block, error) {
	pages := doc.Content
	if opts.Premium {
		pages = append(append([]model.Page(nil), pages...), doc.PremiumContent...)
	}

	var blocks []model.Block
	seen := make(map[string]struct{})
	for pi, page := range pages {
		if pi > 0 && page.Title != "" && len(page.Blocks) > 0 {
			blocks = append(blocks, model.Block{
				ID:      uniqueID(seen, fmt.Sprintf("page-%d-break", pi)),
				Type:    model.BlockSectionBreak,
				Content: model.MustContent(model.SectionBreakContent{Label: page.Title}),
			})
		}
		for _, rb := range page.Blocks {
			b := convertBlock(rb)
			id := rb.ID
			if id == "" {
				id = fmt.Sprintf("block-%d", len(blocks))
			}
			b.ID = uniqueID(seen, id)
			blocks = append(blocks, b)
		}
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: no blocks", ErrLessonMalformed)
	}

	return ensureTitle(blocks, doc.Title, seen), nil
}

func convertBlock(rb model.RawBlock) model.Block {
	b := model.Block{Content: rb.Content, Styles: rb.Styles}
	if len(rb.Config) > 0 {
		// Unreadable config is dropped rather than failing the lesson.
		_ = json.Unmarshal(rb.Config, &b.Config)
	}
	b.Config.Synthetic = false

	t, ok := normalizeType(rb.Type)
	if !ok {
		b.Type = model.BlockText
		b.Content = model.MustContent(model.TextContent{Text: fallbackText(rb.Content)})
		return b
	}
	b.Type = t
	return b
}

func normalizeType(raw string) (model.BlockType, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.ReplaceAll(name, "-", "_")
	if t := model.BlockType(name); t.Valid() {
		return t, true
	}
	t, ok := typeAliases[name]
	return t, ok
}

// fallbackText extracts something readable from an unknown payload.
func fallbackText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, k := range []string{"text", "body", "content", "title"} {
			if v, ok := obj[k].(string); ok && v != "" {
				return v
			}
		}
	}
	if txt := strings.TrimSpace(string(raw)); txt != "" && txt != "null" {
		return txt
	}
	return "-"
}

func ensureTitle(blocks []model.Block, title string, seen map[string]struct{}) []model.Block {
	first := &blocks[0]
	if first.Type == model.BlockHeading {
		var h model.HeadingContent
		if json.Unmarshal(first.Content, &h) == nil && h.Level <= 1 {
			first.Config.IsTitle = true
			return blocks
		}
	}

	if title == "" {
		title = untitledLesson
	}
	heading := model.Block{
		ID:      uniqueID(seen, "title"),
		Type:    model.BlockHeading,
		Content: model.MustContent(model.HeadingContent{Text: title, Level: 1}),
		Config:  model.BlockConfig{IsTitle: true},
	}
	return append([]model.Block{heading}, blocks...)
}

func uniqueID(seen map[string]struct{}, id string) string {
	candidate := id
	for n := 2; ; n++ {
		if _, dup := seen[candidate]; !dup {
			break
		}
		candidate = fmt.Sprintf("%s-%d", id, n)
	}
	seen[candidate] = struct{}{}
	return candidate
}
