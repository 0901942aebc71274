package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// DefaultWriter is the default subtitle file writer
type DefaultWriter struct{}

// NewWriter creates a new subtitle file writer
func NewWriter() Writer {
	return DefaultWriter{}
}

// Write writes the subtitle file to path through a temp file and rename so
// readers never observe a half-written file.
func (DefaultWriter) Write(path string, subtitle *File) error {
	if subtitle == nil {
		return fmt.Errorf("subtitle data is empty")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".subtitle-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteSRT(tmp, subtitle); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move output file into place: %w", err)
	}
	return nil
}

// WriteSRT serializes subtitle as SRT to w.
func WriteSRT(w io.Writer, subtitle *File) error {
	writer := bufio.NewWriter(w)

	for _, line := range subtitle.Lines {
		fmt.Fprintf(writer, "%d\n", line.Index)
		fmt.Fprintf(writer, "%s --> %s\n", FormatTimestamp(line.StartTime), FormatTimestamp(line.EndTime))
		fmt.Fprintf(writer, "%s\n\n", line.Text)
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to write subtitle: %w", err)
	}
	return nil
}

// FormatTimestamp formats d as an SRT timestamp, HH:MM:SS,mmm.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, milliseconds)
}
