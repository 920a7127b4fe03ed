package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChapter(t *testing.T) *Chapter {
	t.Helper()
	c, err := NewChapter(uuid.New(), "Harbour", "The courier arrives.", 1)
	require.NoError(t, err)
	return c
}

func TestChapterSetOutline(t *testing.T) {
	t.Parallel()

	c := newTestChapter(t)
	assert.False(t, c.HasOutline())
	assert.False(t, c.OutlineResolved())

	c.SetOutline([]SceneStub{
		{Title: "Arrival", Status: SceneStatusDone},
		{Title: "Customs"},
	}, time.Now())

	require.Len(t, c.SceneOutline, 2)
	assert.Equal(t, 1, c.SceneOutline[0].SceneNumber)
	assert.Equal(t, 2, c.SceneOutline[1].SceneNumber)
	assert.Equal(t, SceneStatusPending, c.SceneOutline[0].Status)
	assert.Equal(t, ChapterStatusOutlined, c.WritingStatus)
	assert.True(t, c.OutlineResolved())
}

func TestChapterFailedOutlineIsResolved(t *testing.T) {
	t.Parallel()

	c := newTestChapter(t)
	c.WritingStatus = ChapterStatusFailed
	assert.True(t, c.OutlineResolved())
	assert.False(t, c.HasOutline())
}

func TestChapterSceneStatusMovesForward(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := newTestChapter(t)
	c.SetOutline([]SceneStub{{Title: "a"}, {Title: "b"}}, now)

	require.NoError(t, c.SetSceneStatus(0, SceneStatusWriting, now))
	assert.Equal(t, ChapterStatusWriting, c.WritingStatus)
	require.NoError(t, c.SetSceneStatus(0, SceneStatusFailed, now))

	err := c.SetSceneStatus(0, SceneStatusWriting, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = c.SetSceneStatus(5, SceneStatusDone, now)
	assert.ErrorIs(t, err, ErrSceneIndexOutOfRange)
}

func TestChapterAppendScene(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := newTestChapter(t)
	c.SetOutline([]SceneStub{{Title: "a"}, {Title: "b"}}, now)

	require.NoError(t, c.AppendScene(0, "The ship came in late.", now))
	assert.Equal(t, 5, c.WordCount)
	assert.Equal(t, SceneStatusDone, c.SceneOutline[0].Status)
	require.Len(t, c.Content, 1)
	assert.Equal(t, 1, c.Content[0].SceneNumber)

	require.NoError(t, c.AppendScene(1, "Rain.", now))
	assert.Equal(t, 6, c.WordCount)
	assert.Equal(t, ChapterStatusCompleted, c.WritingStatus)
	assert.Equal(t, "The ship came in late.\n\nRain.", c.Text())

	assert.ErrorIs(t, c.AppendScene(1, "again", now), ErrInvalidTransition)
}

func TestChapterAppendSceneReplacesRewrittenScene(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := newTestChapter(t)
	c.SetOutline([]SceneStub{{Title: "a"}, {Title: "b"}}, now)

	require.NoError(t, c.AppendScene(1, "Second scene first.", now))
	require.NoError(t, c.AppendScene(0, "Old opening words here.", now))
	c.ResetScenes(false, now)

	require.NoError(t, c.AppendScene(0, "New opening.", now))
	require.Len(t, c.Content, 2)
	assert.Equal(t, 1, c.Content[0].SceneNumber)
	assert.Equal(t, "New opening.", c.Content[0].Text)
	assert.Equal(t, 2, c.Content[1].SceneNumber)
	assert.Equal(t, 5, c.WordCount)
}

func TestChapterResetScenes(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := newTestChapter(t)
	c.SetOutline([]SceneStub{{Title: "a"}, {Title: "b"}, {Title: "c"}}, now)
	require.NoError(t, c.AppendScene(0, "done", now))
	require.NoError(t, c.SetSceneStatus(1, SceneStatusFailed, now))

	kept := *c
	kept.SceneOutline = append([]SceneStub(nil), c.SceneOutline...)
	kept.ResetScenes(true, now)
	assert.Equal(t, SceneStatusDone, kept.SceneOutline[0].Status)
	assert.Equal(t, SceneStatusPending, kept.SceneOutline[1].Status)

	c.ResetScenes(false, now)
	for _, s := range c.SceneOutline {
		assert.Equal(t, SceneStatusPending, s.Status)
	}
	assert.Equal(t, ChapterStatusOutlined, c.WritingStatus)
}

func TestCountWords(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, CountWords(""))
	assert.Equal(t, 0, CountWords("  \n\t "))
	assert.Equal(t, 3, CountWords("one  two\nthree"))
}

func TestChapterBeginAndReturnScene(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := newTestChapter(t)
	c.SetOutline([]SceneStub{{Title: "a"}, {Title: "b"}}, now)

	require.NoError(t, c.BeginScene(1, now))
	require.NoError(t, c.BeginScene(1, now), "already writing")
	assert.Equal(t, SceneStatusWriting, c.SceneOutline[1].Status)
	assert.Equal(t, ChapterStatusWriting, c.WritingStatus)

	c.ReturnScene(1, now)
	assert.Equal(t, SceneStatusPending, c.SceneOutline[1].Status)
	assert.Equal(t, ChapterStatusOutlined, c.WritingStatus)

	require.NoError(t, c.AppendScene(0, "done text", now))
	assert.Error(t, c.BeginScene(0, now), "done stubs are not reopened")
	c.ReturnScene(0, now)
	assert.Equal(t, SceneStatusDone, c.SceneOutline[0].Status)

	assert.ErrorIs(t, c.BeginScene(7, now), ErrSceneIndexOutOfRange)
}

func TestChapterFailOutline(t *testing.T) {
	t.Parallel()

	c := newTestChapter(t)
	assert.False(t, c.OutlineResolved())
	c.FailOutline(time.Now())
	assert.True(t, c.OutlineResolved())
	assert.Equal(t, ChapterStatusFailed, c.WritingStatus)
}
