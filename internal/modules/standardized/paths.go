package standardized

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/aristath/custodian/internal/domain"
)

// Stage directories under a dated output directory.
const (
	DirEnriched     = "enriched"
	DirCombined     = "combined"
	DirStandardized = "standardized"
	DirQuarantine   = "quarantine"
)

// Paths resolves the dated input and output directories.
//
//	<InputRoot>/<YYYY-MM-DD>/                raw bank files, optionally one folder per bank
//	<OutputRoot>/<YYYY-MM-DD>/enriched/      enricher output
//	<OutputRoot>/<YYYY-MM-DD>/combined/      combiner output
//	<OutputRoot>/<YYYY-MM-DD>/standardized/  merged canonical files
//	<OutputRoot>/<YYYY-MM-DD>/quarantine/    copies of files the detector rejected
type Paths struct {
	InputRoot  string
	OutputRoot string
}

// InputDir is the raw file directory of date.
func (p Paths) InputDir(date time.Time) string {
	return filepath.Join(p.InputRoot, date.Format(domain.DateLayout))
}

// OutputDir is the root of date's pipeline output.
func (p Paths) OutputDir(date time.Time) string {
	return filepath.Join(p.OutputRoot, date.Format(domain.DateLayout))
}

// StageDir is one stage directory of date, e.g. DirCombined.
func (p Paths) StageDir(date time.Time, stage string) string {
	return filepath.Join(p.OutputDir(date), stage)
}

// BankStageDir scopes a stage directory to one bank.
func (p Paths) BankStageDir(date time.Time, stage string, bank domain.BankCode) string {
	return filepath.Join(p.StageDir(date, stage), string(bank))
}

// SecuritiesFile is the merged standardized securities file of date.
func (p Paths) SecuritiesFile(date time.Time) string {
	return filepath.Join(p.StageDir(date, DirStandardized), SecuritiesFileName(date))
}

// TransactionsFile is the merged standardized transactions file of date.
func (p Paths) TransactionsFile(date time.Time) string {
	return filepath.Join(p.StageDir(date, DirStandardized), TransactionsFileName(date))
}

// HasOutput reports whether both standardized files of date exist.
func (p Paths) HasOutput(date time.Time) bool {
	return fileExists(p.SecuritiesFile(date)) && fileExists(p.TransactionsFile(date))
}

var fileDateToken = regexp.MustCompile(`\d{2}_\d{2}_\d{4}`)

// ParseDirDate reads a date directory name: YYYY-MM-DD, or any name holding
// a DD_MM_YYYY token.
func ParseDirDate(name string) (time.Time, bool) {
	if t, err := domain.ParseDate(name); err == nil {
		return t, true
	}
	if m := fileDateToken.FindString(name); m != "" {
		if t, err := time.ParseInLocation(domain.FileDateLayout, m, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// LatestDate returns the newest date directory under the input root.
func (p Paths) LatestDate() (time.Time, error) {
	entries, err := os.ReadDir(p.InputRoot)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to list input directory: %w", err)
	}

	var latest time.Time
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if t, ok := ParseDirDate(e.Name()); ok && t.After(latest) {
			latest = t
		}
	}
	if latest.IsZero() {
		return time.Time{}, fmt.Errorf("no dated directories in %s", p.InputRoot)
	}
	return latest, nil
}

// InputDirFor returns the directory holding date's raw files: the canonical
// YYYY-MM-DD directory, or a directory named with the DD_MM_YYYY token.
func (p Paths) InputDirFor(date time.Time) (string, error) {
	canonical := p.InputDir(date)
	if info, err := os.Stat(canonical); err == nil && info.IsDir() {
		return canonical, nil
	}

	entries, err := os.ReadDir(p.InputRoot)
	if err != nil {
		return "", fmt.Errorf("failed to list input directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if t, ok := ParseDirDate(e.Name()); ok && t.Equal(date) {
			return filepath.Join(p.InputRoot, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no input directory for %s", date.Format(domain.DateLayout))
}
