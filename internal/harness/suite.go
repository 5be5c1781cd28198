package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one failed scenario.
type ScenarioFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// FindScenarios returns every .yaml/.yml file under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// RunSuite runs every scenario under dir whose name contains filter.
// A scenario that fails to load counts as a failure.
func RunSuite(dir, filter string, opts ...Option) (*SuiteResult, error) {
	files, err := FindScenarios(dir)
	if err != nil {
		return nil, err
	}

	res := &SuiteResult{}
	for _, path := range files {
		scenario, err := LoadScenario(path)
		if err != nil {
			res.Total++
			res.Failed++
			res.Failures = append(res.Failures, ScenarioFailure{Scenario: filepath.Base(path), Path: path, Errors: []string{err.Error()}})
			continue
		}
		if filter != "" && !strings.Contains(scenario.Name, filter) {
			continue
		}

		res.Total++
		result, err := Run(scenario, opts...)
		switch {
		case err != nil:
			res.Failed++
			res.Failures = append(res.Failures, ScenarioFailure{Scenario: scenario.Name, Path: path, Errors: []string{err.Error()}})
		case !result.Pass:
			res.Failed++
			res.Failures = append(res.Failures, ScenarioFailure{Scenario: scenario.Name, Path: path, Errors: result.Errors})
		default:
			res.Passed++
		}
	}
	return res, nil
}
