package subtitle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestDetectLanguage(t *testing.T) {
	lines := []Line{
		{Text: "Hello, world!"},
		{Text: "こんにちは、世界!"},
		{Text: "こんにちは、世界!"},
		{Text: "Привет, мир!"},
	}
	lang := detectLanguage(lines)
	if lang != language.Japanese {
		t.Errorf("expected ja, got %s", lang)
	}
}

func TestDetectLanguage_Empty(t *testing.T) {
	assert.Equal(t, language.Und, detectLanguage(nil))
	assert.Equal(t, language.Und, DetectLanguage(nil))
}

func TestReadSRTBytes(t *testing.T) {
	data := []byte("\xef\xbb\xbf1\n00:00:01,000 --> 00:00:02,000\nHello\n\n2\n00:00:03,000 --> 00:00:04,500\nWorld\nagain\n")

	file, err := ReadSRTBytes(data, "embedded://sample")
	require.NoError(t, err)
	require.Len(t, file.Lines, 2)
	assert.Equal(t, "Hello", file.Lines[0].Text)
	assert.Equal(t, "World\nagain", file.Lines[1].Text)
	assert.Equal(t, 4500*time.Millisecond, file.Lines[1].EndTime)
	assert.Equal(t, "SRT", file.Format)
	assert.Equal(t, "embedded://sample", file.Path)
	require.NoError(t, file.Validate())
}

func TestParseSRT_RenumbersEntries(t *testing.T) {
	src := "7\n00:00:01.000 --> 00:00:02.000\nA\n\n9\n00:00:02,000 --> 00:00:03,000\nB\n\n"

	file, err := ParseSRT(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, file.Lines, 2)
	assert.Equal(t, 1, file.Lines[0].Index)
	assert.Equal(t, 2, file.Lines[1].Index)
}

func TestParseSRT_BadTimestamp(t *testing.T) {
	_, err := ParseSRT(strings.NewReader("1\nnot a time\nA\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse time")
}

func TestDefaultReader_RejectsNonSRT(t *testing.T) {
	_, err := NewReader().Read("/tmp/file.vtt")
	require.Error(t, err)

	_, err = NewReader().Read(filepath.Join(t.TempDir(), "missing.srt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestWriteThenRead_RoundTrip(t *testing.T) {
	original := &File{
		Lines: []Line{
			{Index: 1, StartTime: 0, EndTime: 1500 * time.Millisecond, Text: "Bonjour"},
			{Index: 2, StartTime: 2 * time.Second, EndTime: time.Hour + 2*time.Minute + 3*time.Second + 4*time.Millisecond, Text: "ligne un\nligne deux"},
		},
		Format: "SRT",
	}
	path := filepath.Join(t.TempDir(), "out.fr.srt")

	require.NoError(t, NewWriter().Write(path, original))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "01:02:03,004")

	got, err := NewReader().Read(path)
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	for i := range original.Lines {
		assert.Equal(t, original.Lines[i].StartTime, got.Lines[i].StartTime)
		assert.Equal(t, original.Lines[i].EndTime, got.Lines[i].EndTime)
		assert.Equal(t, original.Lines[i].Text, got.Lines[i].Text)
	}

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".subtitle-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}
