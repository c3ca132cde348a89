// Package artifacts persists a finished pipeline run as flat files.
//
// Every run writes three files into a single output directory:
//
//	{dir}/{slug}_full_squad.txt   labelled transcript
//	{dir}/infra_config.txt        deployment text with header
//	{dir}/approved_script.py      final script with review status header
//
// Writes are whole-file overwrites. Concurrent runs that derive the same
// slug race on the same files and the last writer wins.
package artifacts

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/squadworks/squad/pkg/models"
)

const (
	TranscriptSuffix = "_full_squad.txt"
	InfraFileName    = "infra_config.txt"
	ScriptFileName   = "approved_script.py"

	// SlugMaxLen bounds the task-derived part of the transcript file name.
	SlugMaxLen = 40
)

var (
	heavyRule = strings.Repeat("=", 80)
	lightRule = strings.Repeat("-", 80)

	slugStrip = regexp.MustCompile(`[^a-z0-9\s]`)
	slugSpace = regexp.MustCompile(`\s+`)
)

// Paths lists the files written for one run.
type Paths struct {
	Transcript string `json:"transcript"`
	Infra      string `json:"infra"`
	Script     string `json:"script"`
}

// Writer writes run artifacts under a fixed directory.
type Writer struct {
	fs  afero.Fs
	dir string
}

// NewWriter creates a writer rooted at dir. A nil fs uses the OS filesystem.
func NewWriter(fs afero.Fs, dir string) *Writer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Writer{fs: fs, dir: dir}
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Write creates the output directory if needed and overwrites the three
// artifact files for run.
func (w *Writer) Write(_ context.Context, run *models.PipelineRun) (*Paths, error) {
	if run == nil {
		return nil, fmt.Errorf("artifacts: nil run")
	}
	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	paths := &Paths{
		Transcript: filepath.Join(w.dir, Slug(run.Task)+TranscriptSuffix),
		Infra:      filepath.Join(w.dir, InfraFileName),
		Script:     filepath.Join(w.dir, ScriptFileName),
	}

	files := []struct {
		path string
		body string
	}{
		{paths.Transcript, FormatTranscript(run.Task, run.Transcript)},
		{paths.Infra, FormatInfra(run)},
		{paths.Script, FormatScript(run)},
	}
	for _, f := range files {
		if err := afero.WriteFile(w.fs, f.path, []byte(f.body), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", filepath.Base(f.path), err)
		}
	}

	log.Debug().
		Str("run_id", run.ID).
		Str("dir", w.dir).
		Str("transcript", filepath.Base(paths.Transcript)).
		Msg("Wrote run artifacts")

	return paths, nil
}

// Slug derives the transcript file prefix from a task: lower-cased, every
// character other than ASCII letters, digits and whitespace removed, runs of
// whitespace collapsed to "_", truncated to SlugMaxLen.
func Slug(task string) string {
	s := strings.ToLower(task)
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSpace.ReplaceAllString(strings.TrimSpace(s), "_")
	if len(s) > SlugMaxLen {
		s = s[:SlugMaxLen]
	}
	return s
}

// ── Formats ─────────────────────────────────────────────────

// FormatTranscript renders every message in order, labelled by role and,
// when present, author.
func FormatTranscript(task string, history models.ChatHistory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TASK: %s\n", task)
	b.WriteString(heavyRule + "\n\n")
	for _, msg := range history {
		b.WriteString(label(msg) + "\n")
		b.WriteString(strings.TrimSpace(msg.Content))
		b.WriteString("\n\n" + lightRule + "\n\n")
	}
	return b.String()
}

// FormatInfra renders the deployment artifact.
func FormatInfra(run *models.PipelineRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Infrastructure Config — Auto-generated by %s\n", run.DeploymentAgent)
	fmt.Fprintf(&b, "# Task: %s\n", run.Task)
	b.WriteString(heavyRule + "\n\n")
	b.WriteString(run.InfraText)
	return b.String()
}

// FormatScript renders the final script with its review status.
func FormatScript(run *models.PipelineRun) string {
	status := models.RunStatusBestEffort
	if run.Approved {
		status = models.RunStatusApproved
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Auto-generated by %s\n", run.DraftingAgent)
	fmt.Fprintf(&b, "# Review Status: %s\n\n", status.Label())
	b.WriteString(run.FinalScript)
	return b.String()
}

func label(msg models.Message) string {
	role := strings.ToUpper(string(msg.Role))
	if role == "" {
		role = "UNKNOWN"
	}
	if msg.Name == "" {
		return "[" + role + "]"
	}
	return "[" + role + " — " + strings.ToUpper(msg.Name) + "]"
}
