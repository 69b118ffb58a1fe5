package detection

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aristath/custodian/internal/domain"
)

// Rejection is a file the detector could not classify.
type Rejection struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
}

// Reason returns the rejection message.
func (r Rejection) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// ScanResult holds the classified and rejected files of a directory.
type ScanResult struct {
	Files    []domain.RawBankFile
	Rejected []Rejection
}

// ByBank groups classified files by bank code.
func (r ScanResult) ByBank() map[domain.BankCode][]domain.RawBankFile {
	out := make(map[domain.BankCode][]domain.RawBankFile)
	for _, f := range r.Files {
		out[f.Bank] = append(out[f.Bank], f)
	}
	return out
}

// Banks returns the banks present, in AllBanks order.
func (r ScanResult) Banks() []domain.BankCode {
	present := r.ByBank()
	var banks []domain.BankCode
	for _, b := range domain.AllBanks() {
		if len(present[b]) > 0 {
			banks = append(banks, b)
		}
	}
	return banks
}

// IsSpreadsheet reports whether name is an xlsx/xls file and not an editor lock file.
func IsSpreadsheet(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	return ext == ".xlsx" || ext == ".xls"
}

// Scan classifies every spreadsheet below dir. Files that cannot be
// classified are returned as rejections; only I/O failures on dir itself
// are errors. Output is sorted by path.
func (d *Detector) Scan(dir string) (ScanResult, error) {
	var result ScanResult

	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !IsSpreadsheet(entry.Name()) {
			return nil
		}

		file, err := d.Classify(path)
		if err != nil {
			d.log.Warn().Err(err).Str("file", entry.Name()).Msg("File rejected by detector")
			result.Rejected = append(result.Rejected, Rejection{Path: path, Err: err})
			return nil
		}
		result.Files = append(result.Files, file)
		return nil
	})
	if err != nil {
		return ScanResult{}, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	sort.Slice(result.Files, func(i, j int) bool { return result.Files[i].Path < result.Files[j].Path })
	sort.Slice(result.Rejected, func(i, j int) bool { return result.Rejected[i].Path < result.Rejected[j].Path })

	d.log.Info().
		Str("dir", dir).
		Int("classified", len(result.Files)).
		Int("rejected", len(result.Rejected)).
		Msg("Scanned input directory")

	return result, nil
}
