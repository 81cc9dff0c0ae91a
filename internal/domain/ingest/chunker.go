package ingest

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
)

// chunkerConfig bounds the parent/child splitter.
type chunkerConfig struct {
	ChildWindowChars int
	ChildOverlapChars int
	TableLineRatio   float64
	Encoding         string
}

func defaultChunkerConfig() chunkerConfig {
	return chunkerConfig{
		ChildWindowChars:  500,
		ChildOverlapChars: 50,
		TableLineRatio:    0.4,
		Encoding:          "cl100k_base",
	}
}

var headerPattern = regexp.MustCompile(`^(#{1,2})\s+(.+)$`)

// section is one header-delimited slice of a preprocessed markdown document.
// Level is 1 for H1, 2 for H2; level 0 marks a headerless leading section.
type section struct {
	Level     int
	Header    string
	Body      string
	StartChar int
	EndChar   int
}

// splitSections walks preprocessed markdown and breaks it at the header
// pattern `^(#{1,2})\s+(.+)$`. Content before the first heading becomes a
// headerless leading section so no text is dropped.
func splitSections(markdown string) []section {
	lines := strings.Split(markdown, "\n")
	var sections []section
	var cur *section
	offset := 0

	flush := func() {
		if cur != nil {
			cur.EndChar = offset
			cur.Body = strings.TrimRight(cur.Body, "\n")
			sections = append(sections, *cur)
		}
	}

	for _, line := range lines {
		lineLen := len(line) + 1
		if m := headerPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			cur = &section{Level: len(m[1]), Header: strings.TrimSpace(m[2]), StartChar: offset}
		} else {
			if cur == nil {
				cur = &section{StartChar: offset}
			}
			cur.Body += line + "\n"
		}
		offset += lineLen
	}
	flush()
	return sections
}

// parentSections picks the section level that defines parent chunk
// boundaries: H2 if any exist, else H1, else the whole document as a single
// headerless parent. With H2 parents, text before the first H2 is folded
// into the first H2 parent instead of becoming a parent of its own.
func parentSections(all []section) []section {
	hasH2 := false
	for _, s := range all {
		if s.Level == 2 {
			hasH2 = true
			break
		}
	}
	targetLevel := 1
	if hasH2 {
		targetLevel = 2
	}

	var out []section
	var acc, lead *section
	for _, s := range all {
		if s.Level == targetLevel || (s.Level == 0 && acc == nil && targetLevel == 1) {
			if acc != nil {
				out = append(out, *acc)
			}
			cp := s
			if lead != nil {
				cp.Body = lead.Body + "\n" + cp.Body
				cp.StartChar = lead.StartChar
				lead = nil
			}
			acc = &cp
			continue
		}
		if acc == nil {
			// only reachable with H2 parents: hold text before the first H2
			if lead == nil {
				cp := s
				lead = &cp
			} else {
				lead.Body += "\n" + s.Body
			}
			continue
		}
		// a lower-ranked header (or headerless overflow) folds into the
		// current parent's body rather than starting a new one.
		acc.Body += "\n" + s.Body
		acc.EndChar = s.EndChar
	}
	if acc != nil {
		out = append(out, *acc)
	}
	return out
}

// isTableSection reports whether a section's body is dominated by markdown
// table rows, by ratio of pipe-delimited lines to total non-blank lines.
func isTableSection(body string, ratio float64) bool {
	lines := strings.Split(body, "\n")
	total, pipes := 0, 0
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		total++
		if strings.HasPrefix(l, "|") {
			pipes++
		}
	}
	if total == 0 {
		return false
	}
	return float64(pipes)/float64(total) >= ratio
}

// sentenceBoundary finds the last sentence-ending rune at or before maxLen,
// falling back to maxLen verbatim when no boundary is found nearby.
func sentenceBoundary(text string, maxLen int) int {
	if maxLen >= len(text) {
		return len(text)
	}
	window := text[:maxLen]
	for i := len(window) - 1; i >= 0 && i > maxLen-120; i-- {
		switch window[i] {
		case '.', '!', '?', '\n':
			return i + 1
		}
	}
	return maxLen
}

// windowSection slides a ~windowChars character window across text with
// sentence-boundary-aware cuts and overlapChars of repeated trailing
// context between consecutive windows.
func windowSection(text string, windowChars, overlapChars int) []tokenWindow {
	if len(text) <= windowChars {
		return []tokenWindow{{text: text, startChar: 0, endChar: len(text)}}
	}

	var windows []tokenWindow
	start := 0
	for start < len(text) {
		end := start + windowChars
		if end >= len(text) {
			end = len(text)
		} else {
			end = start + sentenceBoundary(text[start:], windowChars)
		}
		windows = append(windows, tokenWindow{text: text[start:end], startChar: start, endChar: end})
		if end == len(text) {
			break
		}
		next := end - overlapChars
		if next <= start {
			next = end
		}
		start = next
	}
	return windows
}

type tokenWindow struct {
	text      string
	startChar int
	endChar   int
}

// chunkDocument builds the parent/child chunk set for one document's
// preprocessed content. Every parent section becomes exactly one parent
// chunk; each parent is windowed into one or more child chunks per
// cfg.ChildWindowChars/ChildOverlapChars. TokenCount is recorded on both;
// the embed stage batches children by count (EmbedBatchSize), not by tokens.
func chunkDocument(documentID uuid.UUID, markdown string, accessLevel int, cfg chunkerConfig) (parents, children []DocumentChunk, err error) {
	enc, encErr := tiktoken.GetEncoding(cfg.Encoding)
	if encErr != nil {
		return nil, nil, StageFailed("load tokenizer encoding", encErr)
	}

	sections := parentSections(splitSections(markdown))
	for idx, sec := range sections {
		body := strings.TrimSpace(sec.Body)
		if body == "" {
			continue
		}
		chunkType := ChunkTypeText
		if isTableSection(body, cfg.TableLineRatio) {
			chunkType = ChunkTypeTable
		}

		parentID := uuid.New()
		parent := DocumentChunk{
			ID:            parentID,
			DocumentID:    documentID,
			IsParent:      true,
			ChunkIndex:    idx,
			ChunkType:     chunkType,
			Content:       body,
			SectionHeader: sec.Header,
			AccessLevel:   accessLevel,
			TokenCount:    len(enc.Encode(body, nil, nil)),
			StartChar:     sec.StartChar,
			EndChar:       sec.EndChar,
		}
		parents = append(parents, parent)

		for wIdx, w := range windowSection(body, cfg.ChildWindowChars, cfg.ChildOverlapChars) {
			children = append(children, DocumentChunk{
				ID:            uuid.New(),
				DocumentID:    documentID,
				ParentChunkID: &parentID,
				IsParent:      false,
				ChunkIndex:    wIdx,
				ChunkType:     chunkType,
				Content:       w.text,
				ParentContent: body,
				SectionHeader: sec.Header,
				AccessLevel:   accessLevel,
				TokenCount:    len(enc.Encode(w.text, nil, nil)),
				StartChar:     sec.StartChar + w.startChar,
				EndChar:       sec.StartChar + w.endChar,
			})
		}
	}
	return parents, children, nil
}
