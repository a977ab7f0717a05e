package ingestion

import (
	"strings"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// DocumentPayload is a raw file handed to a parser.
type DocumentPayload struct {
	Path string
	Data []byte
}

// ChunkFragment is one embedded unit of text and the section it starts in.
type ChunkFragment struct {
	Text    string
	Section SectionMeta
}

type SectionMeta struct {
	Title string
	Level int
	Order int
}

type TopicMeta struct {
	Name string
}

type paragraphWithSection struct {
	Text    string
	Section SectionMeta
}

func ExtractTitle(content, fallback string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return fallback
}

func headingLevel(line string) (int, string) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level == len(line) || line[level] != ' ' {
		return 0, ""
	}
	return level, strings.TrimSpace(line[level:])
}

// ChunkMarkdown splits markdown into paragraph-aligned chunks of roughly
// target bytes. Headings open sections; level-two headings become topics.
// Consecutive chunks share up to overlap trailing bytes of the previous chunk.
func ChunkMarkdown(content string, target, overlap int) ([]ChunkFragment, []SectionMeta, []TopicMeta) {
	clean := strings.ReplaceAll(content, "\r\n", "\n")

	var (
		sections   []SectionMeta
		topics     []TopicMeta
		paragraphs []paragraphWithSection
		current    = SectionMeta{Title: "Introduction", Level: 0, Order: 0}
		buffer     []string
		seenTopics = map[string]struct{}{}
		inFence    bool
	)

	flush := func() {
		text := strings.TrimSpace(strings.Join(buffer, "\n"))
		buffer = buffer[:0]
		if text != "" {
			paragraphs = append(paragraphs, paragraphWithSection{Text: text, Section: current})
		}
	}

	for _, line := range strings.Split(clean, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			buffer = append(buffer, line)
			continue
		}
		if inFence {
			buffer = append(buffer, line)
			continue
		}

		if level, title := headingLevel(trimmed); level > 0 {
			flush()
			current = SectionMeta{Title: title, Level: level, Order: len(sections)}
			sections = append(sections, current)
			if level == 2 {
				key := strings.ToLower(title)
				if _, ok := seenTopics[key]; !ok {
					seenTopics[key] = struct{}{}
					topics = append(topics, TopicMeta{Name: title})
				}
			}
			paragraphs = append(paragraphs, paragraphWithSection{Text: trimmed, Section: current})
			continue
		}

		if trimmed == "" {
			flush()
			continue
		}
		buffer = append(buffer, line)
	}
	flush()

	return chunkParagraphs(paragraphs, target, overlap), sections, topics
}

// ChunkPlainText chunks text without structure under a single section.
func ChunkPlainText(content, title string, target, overlap int) ([]ChunkFragment, []SectionMeta) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	section := SectionMeta{Title: title, Level: 1, Order: 0}

	var paragraphs []paragraphWithSection
	for _, p := range strings.Split(content, "\n\n") {
		if text := strings.TrimSpace(p); text != "" {
			paragraphs = append(paragraphs, paragraphWithSection{Text: text, Section: section})
		}
	}
	return chunkParagraphs(paragraphs, target, overlap), []SectionMeta{section}
}

func chunkParagraphs(paragraphs []paragraphWithSection, target, overlap int) []ChunkFragment {
	if target <= 0 {
		target = defaultChunkSize
	}

	var (
		fragments  []ChunkFragment
		current    []string
		currentLen int
		section    SectionMeta
	)

	for _, paragraph := range paragraphs {
		if len(current) == 0 {
			section = paragraph.Section
		}
		if currentLen+len(paragraph.Text) > target && len(current) > 0 {
			fragments = append(fragments, ChunkFragment{Text: strings.Join(current, "\n\n"), Section: section})
			carry := tail(current[len(current)-1], overlap)
			current = current[:0]
			currentLen = 0
			section = paragraph.Section
			if carry != "" {
				current = append(current, carry)
				currentLen = len(carry)
			}
		}
		current = append(current, paragraph.Text)
		currentLen += len(paragraph.Text)
	}

	if len(current) > 0 {
		fragments = append(fragments, ChunkFragment{Text: strings.Join(current, "\n\n"), Section: section})
	}
	return fragments
}

// tail returns at most limit trailing bytes of text, starting at a word boundary.
func tail(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}
	cut := text[len(text)-limit:]
	if idx := strings.IndexAny(cut, " \n\t"); idx >= 0 && idx < len(cut)-1 {
		cut = cut[idx+1:]
	}
	return strings.TrimSpace(cut)
}
