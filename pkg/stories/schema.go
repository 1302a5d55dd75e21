// Package stories loads and validates the per-wave story files that gate
// the Stories phase.
package stories

// Story is one development story as declared in a wave's story directory.
type Story struct {
	ID                 string   `yaml:"id"`
	Title              string   `yaml:"title"`
	Priority           string   `yaml:"priority"`
	DependsOn          []string `yaml:"depends_on,omitempty"`
	AcceptanceCriteria []string `yaml:"acceptance_criteria"`
	Description        string   `yaml:"description,omitempty"`

	// SourceFile records which file the story was parsed from, for error
	// reporting. Not part of the schema.
	SourceFile string `yaml:"-"`
}

// LintResult is a binary pass/fail verdict with every blocking problem
// listed, not just the first.
type LintResult struct {
	Passed   bool
	Blocking []string
}
