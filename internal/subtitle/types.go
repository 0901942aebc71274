package subtitle

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
)

// Reader is the interface for reading subtitle files
type Reader interface {
	Read(path string) (*File, error)
}

// Writer is the interface for writing subtitle files
type Writer interface {
	Write(path string, subtitle *File) error
}

// Line is a single timed subtitle entry.
type Line struct {
	Index     int           // 1-based, contiguous
	StartTime time.Duration // start time
	EndTime   time.Duration // end time
	Text      string        // subtitle text, may contain newlines
}

// File is an ordered subtitle document.
type File struct {
	Lines    []Line
	Language language.Tag
	Format   string // e.g. SRT
	Path     string
}

// Validate checks the structural invariants every producer must keep:
// indices run 1..n, start < end, and starts never go backwards.
func (f *File) Validate() error {
	if f == nil {
		return fmt.Errorf("subtitle data is empty")
	}
	var prevStart time.Duration
	for i, line := range f.Lines {
		if line.Index != i+1 {
			return fmt.Errorf("line %d: index %d is not contiguous", i+1, line.Index)
		}
		if line.StartTime < 0 {
			return fmt.Errorf("line %d: negative start time", line.Index)
		}
		if line.StartTime >= line.EndTime {
			return fmt.Errorf("line %d: start %s is not before end %s",
				line.Index, FormatTimestamp(line.StartTime), FormatTimestamp(line.EndTime))
		}
		if i > 0 && line.StartTime < prevStart {
			return fmt.Errorf("line %d: starts before line %d", line.Index, i)
		}
		prevStart = line.StartTime
	}
	return nil
}

// Texts returns the text payload in order.
func (f *File) Texts() []string {
	texts := make([]string, len(f.Lines))
	for i, line := range f.Lines {
		texts[i] = line.Text
	}
	return texts
}

// WithTexts returns a copy of f whose lines carry texts instead of the
// original text. Index and timing are copied unchanged.
func (f *File) WithTexts(texts []string, lang language.Tag) (*File, error) {
	if len(texts) != len(f.Lines) {
		return nil, fmt.Errorf("text count %d does not match line count %d", len(texts), len(f.Lines))
	}
	lines := make([]Line, len(f.Lines))
	for i, line := range f.Lines {
		line.Text = texts[i]
		lines[i] = line
	}
	return &File{
		Lines:    lines,
		Language: lang,
		Format:   f.Format,
	}, nil
}

// Len returns the number of lines.
func (f *File) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Lines)
}
