package study

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	twinerrors "twinlab/internal/errors"
)

func writeStudy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "study.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFileSurvey(t *testing.T) {
	path := writeStudy(t, `
survey:
  name: tech attitudes
  questions:
    - text: "I trust new technology."
    - id: q_open
      text: "Describe your last online purchase."
      kind: open
      min_length: 20
`)
	def, err := LoadFile(path)
	require.NoError(t, err)
	require.NotNil(t, def.Survey)
	require.Nil(t, def.Interview)

	require.Len(t, def.Survey.Questions, 2)
	require.Equal(t, "q1", def.Survey.Questions[0].ID)
	require.Equal(t, KindScale, def.Survey.Questions[0].Kind)
	require.Equal(t, KindOpen, def.Survey.Questions[1].Kind)
	require.Equal(t, 20, def.Survey.Questions[1].MinLength)
}

func TestLoadFileInterviewDefaults(t *testing.T) {
	path := writeStudy(t, `
interview:
  name: shopping habits
  questions:
    - text: "Walk me through your last grocery trip."
    - text: "What would make you switch stores?"
`)
	def, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, ModeBatch, def.Interview.Mode)
	require.Equal(t, KindOpen, def.Interview.Questions[0].Kind)
}

func TestLoadFileRejectsScaleInInterview(t *testing.T) {
	path := writeStudy(t, `
interview:
  name: bad
  questions:
    - text: "Rate this."
      kind: scale
`)
	_, err := LoadFile(path)
	var loadErr *twinerrors.LoadError
	require.ErrorAs(t, err, &loadErr)
	require.Contains(t, err.Error(), "open questions only")
}

func TestLoadFileRejectsEmptyAndUnknown(t *testing.T) {
	for name, content := range map[string]string{
		"empty survey":   "survey:\n  name: x\n  questions: []\n",
		"no sections":    "other: true\n",
		"unknown kind":   "survey:\n  questions:\n    - text: hi\n      kind: ranked\n",
		"duplicate id":   "survey:\n  questions:\n    - {id: a, text: one}\n    - {id: a, text: two}\n",
		"bad lengths":    "survey:\n  questions:\n    - {text: hi, kind: open, min_length: 50, max_length: 10}\n",
		"missing text":   "survey:\n  questions:\n    - {id: a}\n",
		"unknown mode":   "interview:\n  mode: freestyle\n  questions:\n    - text: hi\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFile(writeStudy(t, content))
			require.Error(t, err)
		})
	}
}

func TestLoadFileMissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	var loadErr *twinerrors.LoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestInteractiveInterviewMayBeEmpty(t *testing.T) {
	iv := &Interview{Name: "live", Mode: ModeInteractive}
	require.NoError(t, iv.Validate())
}
