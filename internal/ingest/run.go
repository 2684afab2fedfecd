package ingest

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/iaros/vintage-crm-core/internal/contract"
	"github.com/iaros/vintage-crm-core/internal/corerr"
	"github.com/iaros/vintage-crm-core/internal/logging"
)

// tableStems maps the filename prefix a source file is recognized by to
// the table it feeds; a source directory may name its exports
// "clients.csv", "clients_2024.csv", "clients-export.csv", etc.
var tableStems = []struct {
	stem  string
	table contract.Table
}{
	{"clients", contract.TableClients},
	{"products", contract.TableProducts},
	{"sales", contract.TableSales},
}

// matchedFile is one source file recognized as feeding a table, held in
// memory between its RAW archival and its staging pass.
type matchedFile struct {
	table contract.Table
	path  string
	data  []byte
}

func tableForFilename(name string) (contract.Table, bool) {
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	for _, ts := range tableStems {
		if strings.HasPrefix(base, ts.stem) {
			return ts.table, true
		}
	}
	return "", false
}

// RunReport summarizes one tenant source-directory ingestion: every raw
// file archived, every table staged, every curated CSV emitted, and the
// combined dataset_version those raw files hash to.
type RunReport struct {
	RunID          string
	TenantID       int64
	DatasetVersion string
	RawFiles       []string
	StagingFiles   []string
	CuratedFiles   []string
	Errors         []Issue
	Warnings       []Issue
	Rows           map[contract.Table]int
}

// RunTenantDirectory walks sourceDir for clients*/products*/sales* CSV
// exports, archives each byte-for-byte under runsRoot/runs/{run_id}/raw/
// before anything else touches it, stages and contract-validates every
// recognized file, and writes the rows that passed validation back out
// as curated CSVs under runsRoot/runs/{run_id}/curated/. The archive
// step refuses to re-copy a path already present in that run's raw
// directory: a run_id is fresh per call, so collision only happens if a
// caller replays the same run_id, which this treats as a programmer
// error rather than silently overwriting evidence.
//
// The returned map holds, per recognized table, every row that passed
// contract validation - the input loader.LoadAllCuratedForTenant expects.
func RunTenantDirectory(log *logging.Logger, tenantID int64, sourceDir, runsRoot string) (RunReport, map[contract.Table][]RawRow, error) {
	runID := uuid.NewString()
	report := RunReport{RunID: runID, TenantID: tenantID, Rows: make(map[contract.Table]int)}

	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return report, nil, corerr.Wrap(corerr.ContractError, "ingest.RunTenantDirectory.readDir", err)
	}

	rawDir := filepath.Join(runsRoot, "runs", runID, "raw")
	curatedDir := filepath.Join(runsRoot, "runs", runID, "curated")
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return report, nil, corerr.Wrap(corerr.ContractError, "ingest.RunTenantDirectory.mkdirRaw", err)
	}

	var files []matchedFile

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		table, ok := tableForFilename(entry.Name())
		if !ok {
			continue
		}

		srcPath := filepath.Join(sourceDir, entry.Name())
		data, err := os.ReadFile(srcPath)
		if err != nil {
			return report, nil, corerr.Wrap(corerr.ContractError, "ingest.RunTenantDirectory.read", err)
		}

		rawPath := filepath.Join(rawDir, entry.Name())
		if _, err := os.Stat(rawPath); err == nil {
			return report, nil, corerr.New(corerr.ContractError, "ingest.RunTenantDirectory.archive",
				fmt.Sprintf("raw file %q already archived for run %s", entry.Name(), runID))
		}
		if err := os.WriteFile(rawPath, data, 0o644); err != nil {
			return report, nil, corerr.Wrap(corerr.ContractError, "ingest.RunTenantDirectory.archive", err)
		}

		report.RawFiles = append(report.RawFiles, rawPath)
		files = append(files, matchedFile{table: table, path: entry.Name(), data: data})
	}

	report.DatasetVersion = combinedDatasetVersion(files)

	if len(files) > 0 {
		if err := os.MkdirAll(curatedDir, 0o755); err != nil {
			return report, nil, corerr.Wrap(corerr.ContractError, "ingest.RunTenantDirectory.mkdirCurated", err)
		}
	}

	rowsByTable := make(map[contract.Table][]RawRow, len(files))
	for _, f := range files {
		rep, err := Ingest(log, f.table, strings.NewReader(string(f.data)))
		if err != nil {
			report.Errors = append(report.Errors, Issue{Message: fmt.Sprintf("%s: %s", f.path, err.Error())})
			continue
		}
		report.StagingFiles = append(report.StagingFiles, f.path)
		report.Errors = append(report.Errors, rep.Errors...)
		report.Warnings = append(report.Warnings, rep.Warnings...)
		report.Rows[f.table] += len(rep.Rows)
		rowsByTable[f.table] = append(rowsByTable[f.table], rep.Rows...)

		curatedPath := filepath.Join(curatedDir, string(f.table)+".csv")
		if err := writeCuratedCSV(curatedPath, rep.Rows); err != nil {
			return report, nil, corerr.Wrap(corerr.ContractError, "ingest.RunTenantDirectory.writeCurated", err)
		}
		report.CuratedFiles = append(report.CuratedFiles, curatedPath)
	}

	if log != nil {
		log.WithRun(runID).PipelineStageLogger("ingest:run", 0, len(rowsByTable))
	}
	return report, rowsByTable, nil
}

// combinedDatasetVersion hashes every raw file's own byte hash together,
// ordered by filename so the same set of files always reduces to the
// same version regardless of directory-listing order.
func combinedDatasetVersion(files []matchedFile) string {
	sorted := make([]matchedFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].path < sorted[j].path })

	var parts []string
	for _, f := range sorted {
		sum := sha256.Sum256(f.data)
		parts = append(parts, f.path+":"+hex.EncodeToString(sum[:]))
	}
	combined := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(combined[:])
}

// writeCuratedCSV dumps rows back to disk as a CSV with a stable header
// (keys sorted) so the curated stage of a run leaves an inspectable
// artifact distinct from the raw upload.
func writeCuratedCSV(path string, rows []RawRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if len(rows) == 0 {
		return nil
	}

	header := make([]string, 0, len(rows[0].Values))
	for col := range rows[0].Values {
		header = append(header, col)
	}
	sort.Strings(header)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		record := make([]string, len(header))
		for i, col := range header {
			record[i] = row.Values[col]
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return w.Error()
}
