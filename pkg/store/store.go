// Package store persists workflow runs as delimited tabular files with
// optional transparent compression. The header row is the schema
// contract shared by the fetch, combine and filter commands; columns
// are only ever added, never renamed or reordered, so files written by
// older versions stay readable.
package store

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
)

var (
	// ErrFormat indicates a persisted file with an unparsable value in
	// a recognized column.
	ErrFormat = errors.New("store format error")

	// ErrWrite indicates an I/O failure while writing a store. The
	// partially written output must be treated as invalid.
	ErrWrite = errors.New("store write error")
)

// Column names, in schema order. The duration column is named per unit
// so a minutes-converted store round-trips with its unit intact.
const (
	colWorkflowID     = "workflow_id"
	colWorkflowName   = "workflow_name"
	colBranch         = "branch"
	colStatus         = "status"
	colCreatedAt      = "created_at"
	colStoppedAt      = "stopped_at"
	colDurationSec    = "duration_sec"
	colDurationMin    = "duration_min"
	colCreditsUsed    = "credits_used"
	colIsApproval     = "is_approval"
	colPipelineID     = "pipeline_id"
	colPipelineNumber = "pipeline_number"
	colProjectSlug    = "project_slug"
	colStartedBy      = "started_by"
	colCanceledBy     = "canceled_by"
	colErroredBy      = "errored_by"
	colRerunOf        = "rerun_of"
	colRerunType      = "rerun_type"
	colJobs           = "jobs"
)

// timeFormat is the fixed absolute timestamp serialization. All
// timestamps are normalized to UTC before writing.
const timeFormat = time.RFC3339

// header returns the full current schema header for the given unit.
func header(minutes bool) []string {
	duration := colDurationSec
	if minutes {
		duration = colDurationMin
	}

	return []string{
		colWorkflowID,
		colWorkflowName,
		colBranch,
		colStatus,
		colCreatedAt,
		colStoppedAt,
		duration,
		colCreditsUsed,
		colIsApproval,
		colPipelineID,
		colPipelineNumber,
		colProjectSlug,
		colStartedBy,
		colCanceledBy,
		colErroredBy,
		colRerunOf,
		colRerunType,
		colJobs,
	}
}

// Read loads a store from path, decompressing by file extension
// (.gz, .bz2). Files written with an older, smaller schema are
// tolerated: absent columns read as null. Unknown extra columns are
// ignored.
func Read(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r, err := newDecompressor(f, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err == io.EOF {
		return &Store{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading header: %v", ErrFormat, path, err)
	}

	cols := make(map[string]int, len(head))
	for i, name := range head {
		cols[strings.TrimSpace(name)] = i
	}

	st := &Store{}
	_, st.DurationInMinutes = cols[colDurationMin]

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
		}

		run, err := parseRecord(record, cols, st.DurationInMinutes)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: row %d: %v", ErrFormat, path, len(st.Runs)+2, err)
		}

		st.Runs = append(st.Runs, *run)
	}

	return st, nil
}

// Write persists the store to path with the full current schema header,
// compressing by file extension. Any I/O failure surfaces as ErrWrite;
// a partially written file is the caller's to clean up.
func Write(st *Store, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrWrite, path, err)
	}

	w, closeAll, err := newCompressor(f, path)
	if err != nil {
		_ = f.Close()

		return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}

	cw := csv.NewWriter(w)

	if err := cw.Write(header(st.DurationInMinutes)); err != nil {
		_ = closeAll()

		return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}

	for i := range st.Runs {
		record, err := formatRecord(&st.Runs[i])
		if err != nil {
			_ = closeAll()

			return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
		}

		if err := cw.Write(record); err != nil {
			_ = closeAll()

			return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
		}
	}

	cw.Flush()

	if err := cw.Error(); err != nil {
		_ = closeAll()

		return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}

	if err := closeAll(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}

	return nil
}

// newDecompressor wraps f according to the path extension.
func newDecompressor(f *os.File, path string) (io.Reader, error) {
	switch filepath.Ext(path) {
	case ".gz":
		return gzip.NewReader(f)
	case ".bz2":
		return bzip2.NewReader(f, nil)
	default:
		return f, nil
	}
}

// newCompressor wraps f according to the path extension and returns a
// close function that flushes the compressor before closing the file.
func newCompressor(f *os.File, path string) (io.Writer, func() error, error) {
	switch filepath.Ext(path) {
	case ".gz":
		zw := gzip.NewWriter(f)

		return zw, func() error {
			zerr := zw.Close()
			ferr := f.Close()

			if zerr != nil {
				return zerr
			}

			return ferr
		}, nil
	case ".bz2":
		zw, err := bzip2.NewWriter(f, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
		if err != nil {
			return nil, nil, err
		}

		return zw, func() error {
			zerr := zw.Close()
			ferr := f.Close()

			if zerr != nil {
				return zerr
			}

			return ferr
		}, nil
	default:
		return f, f.Close, nil
	}
}

// parseRecord decodes one CSV record against the header map. Absent
// columns are null-filled; a non-empty rerun_type cell marks the row as
// detail-bearing, which is what keeps "never fetched" distinct from
// "fetched and found none" across a round trip.
func parseRecord(record []string, cols map[string]int, minutes bool) (*Run, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}

		return record[i]
	}

	run := &Run{
		WorkflowID:   field(colWorkflowID),
		WorkflowName: field(colWorkflowName),
		Branch:       field(colBranch),
		Status:       field(colStatus),
	}

	if v := field(colCreatedAt); v != "" {
		t, err := time.Parse(timeFormat, v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %v", colCreatedAt, err)
		}

		run.CreatedAt = t.UTC()
	}

	if v := field(colStoppedAt); v != "" {
		t, err := time.Parse(timeFormat, v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %v", colStoppedAt, err)
		}

		tu := t.UTC()
		run.StoppedAt = &tu
	}

	durationCol := colDurationSec
	if minutes {
		durationCol = colDurationMin
	}

	if v := field(durationCol); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %v", durationCol, err)
		}

		run.DurationSec = &d
	}

	if v := field(colCreditsUsed); v != "" {
		c, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %v", colCreditsUsed, err)
		}

		run.CreditsUsed = &c
	}

	if v := field(colIsApproval); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %v", colIsApproval, err)
		}

		run.IsApproval = b
	}

	if rerunType := field(colRerunType); rerunType != "" {
		run.RerunType = &rerunType

		strPtr := func(name string) *string {
			v := field(name)

			return &v
		}

		run.PipelineID = strPtr(colPipelineID)
		run.ProjectSlug = strPtr(colProjectSlug)
		run.StartedBy = strPtr(colStartedBy)
		run.CanceledBy = strPtr(colCanceledBy)
		run.ErroredBy = strPtr(colErroredBy)
		run.RerunOf = strPtr(colRerunOf)

		if v := field(colPipelineNumber); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("column %s: %v", colPipelineNumber, err)
			}

			run.PipelineNumber = &n
		} else {
			var zero int64
			run.PipelineNumber = &zero
		}

		run.Jobs = []JobSummary{}

		if v := field(colJobs); v != "" {
			if err := json.Unmarshal([]byte(v), &run.Jobs); err != nil {
				return nil, fmt.Errorf("column %s: %v", colJobs, err)
			}
		}
	}

	return run, nil
}

// formatRecord encodes one run in schema column order.
func formatRecord(run *Run) ([]string, error) {
	formatTime := func(t *time.Time) string {
		if t == nil {
			return ""
		}

		return t.UTC().Format(timeFormat)
	}

	formatFloat := func(f *float64) string {
		if f == nil {
			return ""
		}

		return strconv.FormatFloat(*f, 'f', -1, 64)
	}

	deref := func(s *string) string {
		if s == nil {
			return ""
		}

		return *s
	}

	pipelineNumber := ""
	if run.PipelineNumber != nil {
		pipelineNumber = strconv.FormatInt(*run.PipelineNumber, 10)
	}

	jobs := ""

	if run.Jobs != nil {
		encoded, err := json.Marshal(run.Jobs)
		if err != nil {
			return nil, fmt.Errorf("encoding jobs: %v", err)
		}

		jobs = string(encoded)
	}

	created := ""
	if !run.CreatedAt.IsZero() {
		created = run.CreatedAt.UTC().Format(timeFormat)
	}

	return []string{
		run.WorkflowID,
		run.WorkflowName,
		run.Branch,
		run.Status,
		created,
		formatTime(run.StoppedAt),
		formatFloat(run.DurationSec),
		formatFloat(run.CreditsUsed),
		strconv.FormatBool(run.IsApproval),
		deref(run.PipelineID),
		pipelineNumber,
		deref(run.ProjectSlug),
		deref(run.StartedBy),
		deref(run.CanceledBy),
		deref(run.ErroredBy),
		deref(run.RerunOf),
		deref(run.RerunType),
		jobs,
	}, nil
}
