package stories

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validStory(id string) Story {
	return Story{
		ID:                 id,
		Title:              "A story",
		Priority:           "must",
		AcceptanceCriteria: []string{"it works"},
	}
}

func TestValidatePasses(t *testing.T) {
	a := validStory("S-001")
	b := validStory("S-002")
	b.DependsOn = []string{"S-001"}

	result := Validate([]Story{a, b})
	assert.True(t, result.Passed)
	assert.Empty(t, result.Blocking)
}

func TestValidateEmptySetPasses(t *testing.T) {
	// Zero stories is a valid, lockable state.
	result := Validate(nil)
	assert.True(t, result.Passed)
}

func TestValidateReportsAllProblems(t *testing.T) {
	bad := Story{ID: "story-1", Priority: "urgent"}
	dup1 := validStory("S-002")
	dup2 := validStory("S-002")

	result := Validate([]Story{bad, dup1, dup2})
	assert.False(t, result.Passed)

	// All problems reported in one pass: bad ID format, missing title,
	// missing criteria, bad priority, duplicate ID.
	assert.Len(t, result.Blocking, 5)
}

func TestValidateDependencyCycle(t *testing.T) {
	a := validStory("S-001")
	a.DependsOn = []string{"S-002"}
	b := validStory("S-002")
	b.DependsOn = []string{"S-001"}

	result := Validate([]Story{a, b})
	assert.False(t, result.Passed)
	require.Len(t, result.Blocking, 1)
	assert.Contains(t, result.Blocking[0], "cycle")
}

func TestValidateMissingDependency(t *testing.T) {
	a := validStory("S-001")
	a.DependsOn = []string{"S-999"}

	result := Validate([]Story{a})
	assert.False(t, result.Passed)
	assert.Contains(t, result.Blocking[0], "non-existent")
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "s-001.yaml"), []byte(
		"id: S-001\ntitle: First\npriority: must\nacceptance_criteria:\n  - builds\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "s-002.yml"), []byte(
		"id: S-002\ntitle: Second\nacceptance_criteria:\n  - tested\ndepends_on: [S-001]\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	stories, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, stories, 2)
	assert.Equal(t, "S-001", stories[0].ID)
	assert.Equal(t, "s-001.yaml", stories[0].SourceFile)
	assert.Equal(t, []string{"S-001"}, stories[1].DependsOn)
}

func TestLoadDirMissing(t *testing.T) {
	stories, err := LoadDir(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, stories)
}

func TestLoadDirBadYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("{{nope"), 0644))

	_, err := LoadDir(dir)
	assert.Error(t, err)
}
