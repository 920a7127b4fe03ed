package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SceneStatus is the state of one planned scene.
type SceneStatus string

// Possible scene status values
const (
	SceneStatusPending SceneStatus = "pending"
	SceneStatusWriting SceneStatus = "writing"
	SceneStatusDone    SceneStatus = "done"
	SceneStatusFailed  SceneStatus = "failed"
	SceneStatusSkipped SceneStatus = "skipped"
)

// ChapterStatus summarises where a chapter is in the run.
type ChapterStatus string

// Possible chapter status values
const (
	ChapterStatusPending   ChapterStatus = "pending"
	ChapterStatusOutlined  ChapterStatus = "outlined"
	ChapterStatusWriting   ChapterStatus = "writing"
	ChapterStatusCompleted ChapterStatus = "completed"
	ChapterStatusFailed    ChapterStatus = "failed"
)

// Common validation errors for Chapter
var (
	ErrEmptyChapterID        = errors.New("chapter ID cannot be empty")
	ErrEmptyChapterProjectID = errors.New("chapter project ID cannot be empty")
	ErrInvalidSceneStatus    = errors.New("invalid scene status")
	ErrInvalidChapterStatus  = errors.New("invalid chapter status")
)

// Resolved stubs are never revisited within a run. A stub being written goes
// back to pending when its attempt fails transiently.
var sceneTransitions = map[SceneStatus][]SceneStatus{
	SceneStatusPending: {SceneStatusWriting, SceneStatusDone, SceneStatusFailed, SceneStatusSkipped},
	SceneStatusWriting: {SceneStatusPending, SceneStatusDone, SceneStatusFailed, SceneStatusSkipped},
	SceneStatusDone:    nil,
	SceneStatusFailed:  nil,
	SceneStatusSkipped: nil,
}

// Valid reports whether s is one of the known statuses.
func (s SceneStatus) Valid() bool {
	_, ok := sceneTransitions[s]
	return ok
}

// IsTerminal reports whether the stub is resolved for this run.
func (s SceneStatus) IsTerminal() bool {
	return s == SceneStatusDone || s == SceneStatusFailed || s == SceneStatusSkipped
}

// CanTransitionTo reports whether next is reachable from s.
func (s SceneStatus) CanTransitionTo(next SceneStatus) bool {
	for _, allowed := range sceneTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func isValidChapterStatus(s ChapterStatus) bool {
	switch s {
	case ChapterStatusPending, ChapterStatusOutlined, ChapterStatusWriting,
		ChapterStatusCompleted, ChapterStatusFailed:
		return true
	default:
		return false
	}
}

// SceneStub is a planned scene inside a chapter outline.
type SceneStub struct {
	SceneNumber     int         `json:"scene_number"              validate:"min=1"`
	Title           string      `json:"title"                     validate:"required,max=300"`
	POV             string      `json:"pov,omitempty"             validate:"max=200"`
	Location        string      `json:"location,omitempty"        validate:"max=300"`
	Summary         string      `json:"summary,omitempty"         validate:"max=4000"`
	TargetWordCount int         `json:"target_word_count,omitempty" validate:"min=0,max=20000"`
	Status          SceneStatus `json:"status"`
}

// ContentBlock is a piece of written prose appended to a chapter.
type ContentBlock struct {
	SceneNumber int       `json:"scene_number"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	WordCount   int       `json:"word_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Chapter is an ordered part of a project with its scene outline and prose.
type Chapter struct {
	ID            uuid.UUID      `json:"id"`
	ProjectID     uuid.UUID      `json:"project_id"`
	Title         string         `json:"title"`
	Summary       string         `json:"summary"`
	SortOrder     int            `json:"sort_order"`
	SceneOutline  []SceneStub    `json:"scene_outline"`
	Content       []ContentBlock `json:"content"`
	WordCount     int            `json:"word_count"`
	WritingStatus ChapterStatus  `json:"writing_status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewChapter creates a chapter without an outline.
func NewChapter(projectID uuid.UUID, title, summary string, sortOrder int) (*Chapter, error) {
	now := time.Now().UTC()
	c := &Chapter{
		ID:            uuid.New(),
		ProjectID:     projectID,
		Title:         title,
		Summary:       summary,
		SortOrder:     sortOrder,
		WritingStatus: ChapterStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate checks identity and statuses.
func (c *Chapter) Validate() error {
	if c.ID == uuid.Nil {
		return ErrEmptyChapterID
	}

	if c.ProjectID == uuid.Nil {
		return ErrEmptyChapterProjectID
	}

	if !isValidChapterStatus(c.WritingStatus) {
		return ErrInvalidChapterStatus
	}

	for i := range c.SceneOutline {
		if !c.SceneOutline[i].Status.Valid() {
			return fmt.Errorf("%w: scene %d", ErrInvalidSceneStatus, i)
		}
	}

	return nil
}

// HasOutline reports whether the chapter has a non-empty scene outline.
func (c *Chapter) HasOutline() bool {
	return len(c.SceneOutline) > 0
}

// OutlineResolved reports whether the outline phase is over for this chapter.
// A chapter whose outline failed for a content reason counts as resolved with no scenes.
func (c *Chapter) OutlineResolved() bool {
	return c.HasOutline() || c.WritingStatus == ChapterStatusFailed
}

// SetOutline replaces the outline with stubs, all pending and numbered from 1.
func (c *Chapter) SetOutline(stubs []SceneStub, now time.Time) {
	outline := make([]SceneStub, len(stubs))
	for i, s := range stubs {
		s.SceneNumber = i + 1
		s.Status = SceneStatusPending
		outline[i] = s
	}
	c.SceneOutline = outline
	c.WritingStatus = ChapterStatusOutlined
	c.UpdatedAt = now
}

// Scene returns the stub at index.
func (c *Chapter) Scene(index int) (SceneStub, error) {
	if index < 0 || index >= len(c.SceneOutline) {
		return SceneStub{}, fmt.Errorf("%w: %d of %d", ErrSceneIndexOutOfRange, index, len(c.SceneOutline))
	}
	return c.SceneOutline[index], nil
}

// SetSceneStatus moves the stub at index forward to status.
func (c *Chapter) SetSceneStatus(index int, status SceneStatus, now time.Time) error {
	if index < 0 || index >= len(c.SceneOutline) {
		return fmt.Errorf("%w: %d of %d", ErrSceneIndexOutOfRange, index, len(c.SceneOutline))
	}
	current := c.SceneOutline[index].Status
	if !current.CanTransitionTo(status) {
		return fmt.Errorf("%w: scene %s -> %s", ErrInvalidTransition, current, status)
	}
	c.SceneOutline[index].Status = status
	c.refreshStatus()
	c.UpdatedAt = now
	return nil
}

// BeginScene marks the stub at index as being written. A stub already being
// written is left as is.
func (c *Chapter) BeginScene(index int, now time.Time) error {
	stub, err := c.Scene(index)
	if err != nil {
		return err
	}
	if stub.Status == SceneStatusWriting {
		return nil
	}
	return c.SetSceneStatus(index, SceneStatusWriting, now)
}

// ReturnScene puts a stub that was being written back to pending.
func (c *Chapter) ReturnScene(index int, now time.Time) {
	if index >= 0 && index < len(c.SceneOutline) && c.SceneOutline[index].Status == SceneStatusWriting {
		c.SceneOutline[index].Status = SceneStatusPending
		c.refreshStatus()
		c.UpdatedAt = now
	}
}

// FailOutline records that the outline could not be generated. The chapter's
// outline phase counts as resolved with no scenes.
func (c *Chapter) FailOutline(now time.Time) {
	c.WritingStatus = ChapterStatusFailed
	c.UpdatedAt = now
}

// ResetScenes puts every stub back to pending. Used by cancel and by a new run.
// Stubs already done are kept when keepDone is true.
func (c *Chapter) ResetScenes(keepDone bool, now time.Time) {
	for i := range c.SceneOutline {
		if keepDone && c.SceneOutline[i].Status == SceneStatusDone {
			continue
		}
		c.SceneOutline[i].Status = SceneStatusPending
	}
	if c.HasOutline() {
		c.WritingStatus = ChapterStatusOutlined
		c.refreshStatus()
	} else {
		c.WritingStatus = ChapterStatusPending
	}
	c.UpdatedAt = now
}

// AppendScene records prose for the stub at index and marks the stub done.
// A block already present for the same scene is replaced, so a scene
// rewritten after a cancel keeps a single block. Blocks stay ordered by
// scene number.
func (c *Chapter) AppendScene(index int, text string, now time.Time) error {
	stub, err := c.Scene(index)
	if err != nil {
		return err
	}
	if err := c.SetSceneStatus(index, SceneStatusDone, now); err != nil {
		return err
	}
	block := ContentBlock{
		SceneNumber: stub.SceneNumber,
		Title:       stub.Title,
		Text:        text,
		WordCount:   CountWords(text),
		CreatedAt:   now,
	}
	if i := slices.IndexFunc(c.Content, func(b ContentBlock) bool { return b.SceneNumber == block.SceneNumber }); i >= 0 {
		c.Content[i] = block
	} else {
		at := slices.IndexFunc(c.Content, func(b ContentBlock) bool { return b.SceneNumber > block.SceneNumber })
		if at < 0 {
			at = len(c.Content)
		}
		c.Content = slices.Insert(c.Content, at, block)
	}
	c.RecomputeWordCount()
	return nil
}

// RecomputeWordCount sets WordCount from the content blocks.
func (c *Chapter) RecomputeWordCount() {
	total := 0
	for _, b := range c.Content {
		total += CountWords(b.Text)
	}
	c.WordCount = total
}

// Text joins the chapter prose written so far.
func (c *Chapter) Text() string {
	parts := make([]string, 0, len(c.Content))
	for _, b := range c.Content {
		parts = append(parts, b.Text)
	}
	return strings.Join(parts, "\n\n")
}

// AllScenesTerminal reports whether every stub is resolved.
func (c *Chapter) AllScenesTerminal() bool {
	for _, s := range c.SceneOutline {
		if !s.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func (c *Chapter) refreshStatus() {
	if !c.HasOutline() || c.WritingStatus == ChapterStatusFailed {
		return
	}
	started := false
	for _, s := range c.SceneOutline {
		if s.Status != SceneStatusPending {
			started = true
			break
		}
	}
	switch {
	case c.AllScenesTerminal():
		c.WritingStatus = ChapterStatusCompleted
	case started:
		c.WritingStatus = ChapterStatusWriting
	default:
		c.WritingStatus = ChapterStatusOutlined
	}
}

// CountWords counts whitespace-separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
