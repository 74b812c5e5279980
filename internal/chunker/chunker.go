package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/noteseek/noteseek/pkg/types"
)

const (
	// DefaultMaxChunkLength is the target maximum character count per chunk
	DefaultMaxChunkLength = 512

	// DefaultOverlap is the number of trailing characters carried into the
	// next sub-chunk when an oversized segment is split
	DefaultOverlap = 128

	// DefaultMinChunkSize is the minimum size before a blank line is treated
	// as a soft segment boundary
	DefaultMinChunkSize = 100

	// softBoundaryRatio is how full a segment must be (relative to max)
	// before a blank line ends it
	softBoundaryRatio = 0.8
)

var (
	headingPattern  = regexp.MustCompile(`^#{1,6}\s`)
	sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+`)
)

// Config controls chunk sizing and markup handling
type Config struct {
	MaxChunkLength     int
	Overlap            int
	MinChunkSize       int
	PreserveCodeBlocks bool // Keep fenced code blocks as atomic chunks
}

// DefaultConfig returns the chunking defaults
func DefaultConfig() Config {
	return Config{
		MaxChunkLength:     DefaultMaxChunkLength,
		Overlap:            DefaultOverlap,
		MinChunkSize:       DefaultMinChunkSize,
		PreserveCodeBlocks: true,
	}
}

// Chunker splits documents into bounded, semantically coherent text chunks.
// Chunking is deterministic: identical input yields identical chunk ids,
// offsets, and text.
type Chunker struct {
	config Config
}

// New creates a Chunker with the given configuration, filling in defaults
// for zero values
func New(config Config) *Chunker {
	if config.MaxChunkLength <= 0 {
		config.MaxChunkLength = DefaultMaxChunkLength
	}
	if config.Overlap < 0 {
		config.Overlap = DefaultOverlap
	}
	if config.Overlap >= config.MaxChunkLength {
		config.Overlap = config.MaxChunkLength / 4
	}
	if config.MinChunkSize <= 0 {
		config.MinChunkSize = DefaultMinChunkSize
	}
	return &Chunker{config: config}
}

// segment is an intermediate span of the combined text, produced by the
// line walk before size enforcement
type segment struct {
	text  string
	start int
	end   int
	code  bool // Fenced code block, preserved atomically
}

// Chunk splits a document into an ordered sequence of chunks. The combined
// text (title first, then body) is walked by logical line: fenced code blocks
// are accumulated verbatim, headings force a segment boundary, and blank
// lines end a segment once it is large enough. Segments still exceeding the
// maximum length are re-split at sentence boundaries with overlap.
//
// Empty documents produce zero chunks.
func (c *Chunker) Chunk(doc *types.Document) []*types.TextChunk {
	text := doc.Text()
	if strings.TrimSpace(text) == "" {
		return nil
	}

	segments := c.walkLines(text)

	chunks := make([]*types.TextChunk, 0, len(segments))
	for _, seg := range segments {
		if seg.code || len(seg.text) <= c.config.MaxChunkLength {
			chunks = append(chunks, &types.TextChunk{
				DocumentID:  doc.ID,
				Text:        seg.text,
				StartOffset: seg.start,
				EndOffset:   seg.end,
			})
			continue
		}
		chunks = append(chunks, c.splitOversized(doc.ID, seg)...)
	}

	// Assign ids and shared metadata after assembly
	for i, chunk := range chunks {
		chunk.ID = types.ChunkID(doc.ID, i)
		chunk.Metadata = types.ChunkMetadata{
			Title:    doc.Title,
			Tags:     doc.Tags,
			Notebook: doc.Notebook,
			Ordinal:  i,
		}
	}

	return chunks
}

// walkLines performs the line walk, tracking fenced-code state and emitting
// segments at heading and soft blank-line boundaries
func (c *Chunker) walkLines(text string) []segment {
	var (
		segments []segment
		builder  strings.Builder
		segStart = -1
		segEnd   = 0
		pending  = 0 // Blank lines seen since the last content line
		inFence  = false
	)

	flush := func(code bool) {
		pending = 0
		if builder.Len() == 0 {
			return
		}
		segments = append(segments, segment{
			text:  builder.String(),
			start: segStart,
			end:   segEnd,
			code:  code,
		})
		builder.Reset()
		segStart = -1
	}

	appendLine := func(line string, lineStart int) {
		if builder.Len() > 0 {
			// Re-materialize any blank lines skipped since the last content
			// line so segment text matches its source span exactly
			builder.WriteString(strings.Repeat("\n", pending+1))
		} else {
			segStart = lineStart
		}
		pending = 0
		builder.WriteString(line)
		segEnd = lineStart + len(line)
	}

	pos := 0
	for _, line := range strings.Split(text, "\n") {
		lineStart := pos
		pos += len(line) + 1
		trimmed := strings.TrimSpace(line)

		if c.config.PreserveCodeBlocks && strings.HasPrefix(trimmed, "```") {
			if !inFence {
				// Fence opens: finish the prose segment, start a code one
				flush(false)
				inFence = true
				appendLine(line, lineStart)
			} else {
				// Fence closes: the delimiter belongs to the code segment
				appendLine(line, lineStart)
				flush(true)
				inFence = false
			}
			continue
		}

		if inFence {
			appendLine(line, lineStart)
			continue
		}

		if headingPattern.MatchString(line) {
			flush(false)
			appendLine(line, lineStart)
			continue
		}

		if trimmed == "" {
			// Soft boundary: only end the segment when it is both above the
			// minimum size and close to the maximum
			if builder.Len() >= c.config.MinChunkSize &&
				float64(builder.Len()) >= softBoundaryRatio*float64(c.config.MaxChunkLength) {
				flush(false)
			} else if builder.Len() > 0 {
				pending++
			}
			continue
		}

		appendLine(line, lineStart)
	}

	// An unterminated fence flushes whatever accumulated as a final code chunk
	flush(inFence)

	return segments
}

// splitOversized re-splits a segment at sentence boundaries, seeding each
// sub-chunk after the first with the word-aligned tail of its predecessor
func (c *Chunker) splitOversized(documentID string, seg segment) []*types.TextChunk {
	bounds := sentencePattern.FindAllStringIndex(seg.text, -1)
	if len(bounds) == 0 {
		// No sentence punctuation at all: fall back to the whole text
		bounds = [][]int{{0, len(seg.text)}}
	} else if last := bounds[len(bounds)-1][1]; last < len(seg.text) {
		// Trailing text without closing punctuation
		bounds = append(bounds, []int{last, len(seg.text)})
	}

	var (
		chunks   []*types.TextChunk
		builder  strings.Builder
		overlap  string
		subStart = -1
		subEnd   = 0
	)

	flush := func() {
		if builder.Len() == 0 {
			return
		}
		text := builder.String()
		chunks = append(chunks, &types.TextChunk{
			DocumentID:  documentID,
			Text:        overlap + text,
			StartOffset: seg.start + subStart,
			EndOffset:   seg.start + subEnd,
		})
		overlap = overlapTail(text, c.config.Overlap)
		builder.Reset()
		subStart = -1
	}

	for _, b := range bounds {
		sentence := seg.text[b[0]:b[1]]
		if builder.Len() > 0 && len(overlap)+builder.Len()+len(sentence) > c.config.MaxChunkLength {
			flush()
		}
		if subStart < 0 {
			subStart = b[0]
		}
		builder.WriteString(sentence)
		subEnd = b[1]
	}
	flush()

	return chunks
}

// overlapTail returns the trailing n characters of text, trimmed forward to
// the next word boundary so the overlap never starts mid-word
func overlapTail(text string, n int) string {
	if n <= 0 || len(text) == 0 {
		return ""
	}
	if len(text) > n {
		text = text[len(text)-n:]
		if idx := strings.IndexAny(text, " \t\n"); idx >= 0 {
			text = text[idx+1:]
		}
	}
	if text == "" {
		return ""
	}
	return text
}

// ValidateChunks checks a chunk set for suspicious sizing. It is a
// diagnostic, not a hard failure: warnings are returned for chunks under the
// minimum size, non-code chunks over the maximum, and low total character
// coverage versus chunk count.
func (c *Chunker) ValidateChunks(doc *types.Document, chunks []*types.TextChunk) []string {
	var warnings []string

	total := 0
	for _, chunk := range chunks {
		total += len(chunk.Text)
		if len(chunk.Text) < c.config.MinChunkSize {
			warnings = append(warnings, fmt.Sprintf("chunk %s is under the minimum size (%d < %d)",
				chunk.ID, len(chunk.Text), c.config.MinChunkSize))
		}
		if len(chunk.Text) > c.config.MaxChunkLength && !strings.HasPrefix(strings.TrimSpace(chunk.Text), "```") {
			warnings = append(warnings, fmt.Sprintf("chunk %s exceeds the maximum length (%d > %d)",
				chunk.ID, len(chunk.Text), c.config.MaxChunkLength))
		}
	}

	if len(chunks) > 0 && total < len(chunks)*c.config.MinChunkSize {
		warnings = append(warnings, fmt.Sprintf("document %s: total chunk coverage %d chars is low for %d chunks",
			doc.ID, total, len(chunks)))
	}

	return warnings
}
