// Package winget shells out to the winget CLI to search the package catalog
// and parses its fixed-width tabular output into structured records.
package winget

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Package is one row of a winget search result.
type Package struct {
	Name    string `json:"Name"`
	ID      string `json:"Id"`
	Version string `json:"Version"`
	Source  string `json:"Source"`
}

var headerPattern = regexp.MustCompile(`(?i)\bName\b.*\bId\b.*\bVersion\b.*\bSource\b`)

// Runner executes the winget search command and returns its raw output.
// Injectable so the parser can be tested without the winget binary.
type Runner func(ctx context.Context, term string) ([]byte, error)

func defaultRunner(ctx context.Context, term string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, "winget", "search", term, "--accept-source-agreements").Output()
	if err != nil {
		return nil, fmt.Errorf("winget search: %w", err)
	}
	return out, nil
}

type Searcher struct {
	run Runner
}

// NewSearcher builds a Searcher; a nil runner uses the real winget binary.
func NewSearcher(run Runner) *Searcher {
	if run == nil {
		run = defaultRunner
	}
	return &Searcher{run: run}
}

// Search runs a catalog search and returns the parsed result rows.
// Rows without both a name and an id are dropped.
func (s *Searcher) Search(ctx context.Context, term string) ([]Package, error) {
	out, err := s.run(ctx, term)
	if err != nil {
		return nil, err
	}
	return parseSearchOutput(string(out))
}

// parseSearchOutput interprets winget's aligned-column table. Column
// boundaries are taken from the header row, since widths vary with content.
func parseSearchOutput(out string) ([]Package, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")

	headerIndex := -1
	for i, line := range lines {
		if headerPattern.MatchString(line) {
			headerIndex = i
			break
		}
	}
	if headerIndex == -1 {
		return nil, fmt.Errorf("header row not found in winget output")
	}

	header := lines[headerIndex]
	nameStart := columnStart(header, "Name")
	idStart := columnStart(header, "Id")
	versionStart := columnStart(header, "Version")
	sourceStart := columnStart(header, "Source")
	if nameStart < 0 || idStart < 0 || versionStart < 0 || sourceStart < 0 {
		return nil, fmt.Errorf("incomplete header row in winget output")
	}

	var packages []Package
	// +2 skips the header and the separator row of dashes
	for _, line := range lines[headerIndex+2:] {
		line = strings.TrimRight(line, " \r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		p := Package{
			Name:    sliceColumn(line, nameStart, idStart),
			ID:      sliceColumn(line, idStart, versionStart),
			Version: sliceColumn(line, versionStart, sourceStart),
			Source:  sliceColumn(line, sourceStart, len(line)),
		}
		if p.Name == "" || p.ID == "" {
			continue
		}
		packages = append(packages, p)
	}

	return packages, nil
}

func columnStart(header, name string) int {
	re := regexp.MustCompile(`(?i)\b` + name + `\b`)
	loc := re.FindStringIndex(header)
	if loc == nil {
		return -1
	}
	return loc[0]
}

// sliceColumn extracts [start,end) from a row, tolerating short lines.
func sliceColumn(line string, start, end int) string {
	if start >= len(line) {
		return ""
	}
	if end > len(line) {
		end = len(line)
	}
	return strings.TrimSpace(line[start:end])
}
