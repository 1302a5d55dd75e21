package stories

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var storyIDPattern = regexp.MustCompile(`^S-\d{3}$`)

// LoadDir parses every story file (*.yaml, *.yml) in dir, sorted by path.
// A missing directory yields zero stories, which is a valid state.
func LoadDir(dir string) ([]Story, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read story directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	var stories []Story
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read story file %s: %w", path, err)
		}

		var story Story
		if err := yaml.Unmarshal(data, &story); err != nil {
			return nil, fmt.Errorf("failed to parse story file %s: %w", path, err)
		}
		story.SourceFile = filepath.Base(path)
		stories = append(stories, story)
	}
	return stories, nil
}

// Validate performs binary pass/fail validation over a wave's stories.
// Every blocking problem is reported, not just the first.
func Validate(stories []Story) LintResult {
	var errors []string

	validPriorities := map[string]bool{"must": true, "should": true, "could": true}
	seenIDs := make(map[string]string) // ID -> source file

	for i := range stories {
		story := &stories[i]
		where := story.SourceFile
		if where == "" {
			where = fmt.Sprintf("story %d", i)
		}

		if !storyIDPattern.MatchString(story.ID) {
			errors = append(errors, fmt.Sprintf("Story ID %q (%s) does not match format S-###", story.ID, where))
		}
		if prev, exists := seenIDs[story.ID]; exists {
			errors = append(errors, fmt.Sprintf("Duplicate story ID %q (%s and %s)", story.ID, prev, where))
		}
		seenIDs[story.ID] = where

		if story.Title == "" {
			errors = append(errors, fmt.Sprintf("Story %s (%s) has no title", story.ID, where))
		}
		if len(story.AcceptanceCriteria) == 0 {
			errors = append(errors, fmt.Sprintf("Story %s (%s) has no acceptance criteria", story.ID, where))
		}
		if story.Priority != "" && !validPriorities[strings.ToLower(story.Priority)] {
			errors = append(errors, fmt.Sprintf("Story %s (%s) has invalid priority %q (must be: must, should, or could)", story.ID, where, story.Priority))
		}
	}

	if cycleErr := checkCycles(stories); cycleErr != nil {
		errors = append(errors, cycleErr.Error())
	}

	return LintResult{
		Passed:   len(errors) == 0,
		Blocking: errors,
	}
}

// checkCycles detects cycles in the story dependency graph using DFS.
func checkCycles(stories []Story) error {
	graph := make(map[string][]string)
	allIDs := make(map[string]bool)

	for i := range stories {
		allIDs[stories[i].ID] = true
		graph[stories[i].ID] = stories[i].DependsOn
	}

	for i := range stories {
		for _, dep := range stories[i].DependsOn {
			if !allIDs[dep] {
				return fmt.Errorf("Story %s depends on non-existent story %s", stories[i].ID, dep)
			}
		}
	}

	visiting := make(map[string]bool)
	visited := make(map[string]bool)

	var visit func(id string) error
	visit = func(id string) error {
		if visiting[id] {
			return fmt.Errorf("Dependency cycle detected involving story %s", id)
		}
		if visited[id] {
			return nil
		}

		visiting[id] = true
		for _, dep := range graph[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		visiting[id] = false
		visited[id] = true
		return nil
	}

	ids := make([]string, 0, len(graph))
	for id := range graph {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
