// Package profiler infers column metadata of CSV data with DuckDB.
package profiler

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/datamart/webapp/internal/models"
	"github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"
)

const (
	// MaxSize is the number of bytes profiled; the rest of the input is ignored.
	MaxSize = 50 << 20
	// SampleRows is the number of rows kept in the sample.
	SampleRows = 20
)

// ErrEmpty is returned for input without any data.
var ErrEmpty = errors.New("empty dataset")

// Profiler runs CSV profiling queries on an in-memory DuckDB database.
type Profiler struct {
	db      *sql.DB
	tempDir string
	log     *zap.Logger
}

// Option configures a Profiler.
type Option func(*Profiler)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Profiler) {
		p.log = log
	}
}

// WithTempDir sets where the input is spooled before profiling.
func WithTempDir(dir string) Option {
	return func(p *Profiler) {
		p.tempDir = dir
	}
}

// New opens the profiling database.
func New(opts ...Option) (*Profiler, error) {
	p := &Profiler{log: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.Named("profiler")

	connector, err := duckdb.NewConnector("", func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='512MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}
	p.db = sql.OpenDB(connector)
	return p, nil
}

// Close releases the database.
func (p *Profiler) Close() error {
	return p.db.Close()
}

// spool copies at most MaxSize bytes of r into a temporary file. Truncated
// input is cut after its last complete line.
func (p *Profiler) spool(r io.Reader) (string, error) {
	f, err := os.CreateTemp(p.tempDir, "profile-*.csv")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	path := f.Name()

	n, err := io.Copy(f, io.LimitReader(r, MaxSize))
	if err == nil && n == MaxSize {
		var probe [1]byte
		if m, _ := r.Read(probe[:]); m > 0 {
			err = truncateToLine(f, n)
		}
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("spooling input: %w", err)
	}
	if n == 0 {
		os.Remove(path)
		return "", ErrEmpty
	}
	return path, nil
}

func truncateToLine(f *os.File, size int64) error {
	const tail = 64 << 10
	start := size - tail
	if start < 0 {
		start = 0
	}
	buf := make([]byte, size-start)
	if _, err := f.ReadAt(buf, start); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	idx := bytes.LastIndexByte(buf, '\n')
	if idx < 0 {
		return nil
	}
	return f.Truncate(start + int64(idx) + 1)
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Profile reads CSV data from r and returns its column metadata, row count and
// a sample of the first rows.
func (p *Profiler) Profile(ctx context.Context, r io.Reader) (*models.ProfileData, error) {
	path, err := p.spool(r)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)
	return p.ProfileFile(ctx, path)
}

// ProfileFile profiles a CSV file on disk.
func (p *Profiler) ProfileFile(ctx context.Context, path string) (*models.ProfileData, error) {
	start := time.Now()
	source := fmt.Sprintf("read_csv_auto(%s, header=true)", quoteString(path))

	columns, err := p.describe(ctx, source)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, ErrEmpty
	}

	nbRows, err := p.countMissing(ctx, source, columns)
	if err != nil {
		return nil, err
	}
	if nbRows > 0 {
		if err := p.numericStats(ctx, source, columns); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading file size: %w", err)
	}

	sample, err := p.sample(ctx, source, columns)
	if err != nil {
		return nil, err
	}

	p.log.Debug("profiled",
		zap.Int("columns", len(columns)),
		zap.Int64("rows", nbRows),
		zap.Duration("took", time.Since(start)))
	return &models.ProfileData{
		Columns:   columns,
		NbRows:    nbRows,
		NbColumns: len(columns),
		Size:      info.Size(),
		Types:     datasetTypes(columns),
		Sample:    sample,
	}, nil
}

func (p *Profiler) describe(ctx context.Context, source string) ([]models.ColumnMetadata, error) {
	rows, err := p.db.QueryContext(ctx, "DESCRIBE SELECT * FROM "+source)
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	defer rows.Close()

	var columns []models.ColumnMetadata
	for rows.Next() {
		var name, dbType string
		var null, key, dflt, extra sql.NullString
		if err := rows.Scan(&name, &dbType, &null, &key, &dflt, &extra); err != nil {
			return nil, fmt.Errorf("scanning column description: %w", err)
		}
		structural, semantic := mapType(dbType)
		columns = append(columns, models.ColumnMetadata{
			Name:           name,
			StructuralType: structural,
			SemanticTypes:  semantic,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	return columns, nil
}

// countMissing fills MissingValuesRatio for columns with null values and
// returns the number of rows.
func (p *Profiler) countMissing(ctx context.Context, source string, columns []models.ColumnMetadata) (int64, error) {
	exprs := make([]string, 0, len(columns)+1)
	exprs = append(exprs, "count(*)")
	for _, c := range columns {
		exprs = append(exprs, "count("+quoteIdent(c.Name)+")")
	}

	counts := make([]int64, len(exprs))
	dest := make([]any, len(exprs))
	for i := range counts {
		dest[i] = &counts[i]
	}
	query := "SELECT " + strings.Join(exprs, ", ") + " FROM " + source
	if err := p.db.QueryRowContext(ctx, query).Scan(dest...); err != nil {
		return 0, fmt.Errorf("counting values: %w", err)
	}

	total := counts[0]
	if total == 0 {
		return 0, nil
	}
	for i := range columns {
		missing := total - counts[i+1]
		if missing > 0 {
			ratio := float64(missing) / float64(total)
			columns[i].MissingValuesRatio = &ratio
		}
	}
	return total, nil
}

func isNumeric(c models.ColumnMetadata) bool {
	return c.StructuralType == models.TypeInteger || c.StructuralType == models.TypeFloat
}

// numericStats sets Mean and Stddev (population) on integer and float columns.
func (p *Profiler) numericStats(ctx context.Context, source string, columns []models.ColumnMetadata) error {
	var idx []int
	var exprs []string
	for i, c := range columns {
		if !isNumeric(c) {
			continue
		}
		col := quoteIdent(c.Name)
		idx = append(idx, i)
		exprs = append(exprs, "avg("+col+")::DOUBLE", "stddev_pop("+col+")::DOUBLE")
	}
	if len(idx) == 0 {
		return nil
	}

	values := make([]sql.NullFloat64, len(exprs))
	dest := make([]any, len(exprs))
	for i := range values {
		dest[i] = &values[i]
	}
	query := "SELECT " + strings.Join(exprs, ", ") + " FROM " + source
	if err := p.db.QueryRowContext(ctx, query).Scan(dest...); err != nil {
		return fmt.Errorf("computing numeric statistics: %w", err)
	}

	for n, i := range idx {
		if mean := values[2*n]; mean.Valid {
			v := mean.Float64
			columns[i].Mean = &v
		}
		if stddev := values[2*n+1]; stddev.Valid {
			v := stddev.Float64
			columns[i].Stddev = &v
		}
	}
	return nil
}

// datasetTypes classifies the dataset from its columns, sorted and distinct.
func datasetTypes(columns []models.ColumnMetadata) []string {
	seen := make(map[string]struct{})
	for _, c := range columns {
		switch {
		case slices.Contains(c.SemanticTypes, models.TypeDateTime):
			seen[models.DatasetTemporal] = struct{}{}
		case isNumeric(c):
			seen[models.DatasetNumerical] = struct{}{}
		case c.StructuralType == models.TypeBoolean:
			seen[models.DatasetCategorical] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (p *Profiler) sample(ctx context.Context, source string, columns []models.ColumnMetadata) (string, error) {
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", source, SampleRows))
	if err != nil {
		return "", fmt.Errorf("sampling rows: %w", err)
	}
	defer rows.Close()

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	w := csv.NewWriter(bw)

	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.Name
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	record := make([]string, len(columns))
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return "", fmt.Errorf("scanning sample row: %w", err)
		}
		for i, v := range values {
			record[i] = formatValue(v)
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("sampling rows: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	if err := bw.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02T15:04:05")
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// mapType converts a DuckDB column type into a schema.org structural type and
// the semantic types implied by it.
func mapType(dbType string) (string, []string) {
	t := strings.ToUpper(dbType)
	switch {
	case t == "BOOLEAN":
		return models.TypeBoolean, nil
	case strings.HasSuffix(t, "INT"), t == "BIGINT", t == "INTEGER", t == "SMALLINT",
		t == "TINYINT", t == "HUGEINT", t == "UBIGINT", t == "UINTEGER",
		t == "USMALLINT", t == "UTINYINT":
		return models.TypeInteger, nil
	case t == "DOUBLE", t == "FLOAT", t == "REAL", strings.HasPrefix(t, "DECIMAL"):
		return models.TypeFloat, nil
	case strings.HasPrefix(t, "DATE"), strings.HasPrefix(t, "TIME"):
		return models.TypeText, []string{models.TypeDateTime}
	default:
		return models.TypeText, nil
	}
}
