package flux

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arloliu/influxwire/compress"
	"github.com/arloliu/influxwire/errs"
	"github.com/arloliu/influxwire/format"
	"github.com/arloliu/influxwire/frame"
	"github.com/arloliu/influxwire/internal/groupkey"
	"github.com/arloliu/influxwire/internal/logging"
	"github.com/arloliu/influxwire/internal/options"
	"github.com/arloliu/influxwire/value"
)

// Well-known column names of annotated CSV.
const (
	ColumnResult      = "result"
	ColumnTable       = "table"
	ColumnStart       = "_start"
	ColumnStop        = "_stop"
	ColumnTime        = "_time"
	ColumnMeasurement = "_measurement"
	ColumnField       = "_field"
	ColumnValue       = "_value"
	ColumnError       = "error"
	ColumnReference   = "reference"
)

// DefaultTableName names tables that carry neither a measurement nor a result.
const DefaultTableName = "_result"

// DecoderConfig holds the settings of DecodeCSV and DecodeCSVReader.
type DecoderConfig struct {
	compression format.CompressionType
	logger      logrus.FieldLogger
}

// DecodeOption is a functional option for configuring CSV decoding.
type DecodeOption = options.Option[*DecoderConfig]

// WithContentEncoding decompresses the body with the codec of ct before decoding.
func WithContentEncoding(ct format.CompressionType) DecodeOption {
	return options.Named("content encoding", func(c *DecoderConfig) error {
		if _, err := compress.GetCodec(ct); err != nil {
			return err
		}
		c.compression = ct

		return nil
	})
}

// WithLogger sets the logger receiving server error rows, dropped tables and
// empty tables.
func WithLogger(l logrus.FieldLogger) DecodeOption {
	return options.NoError(func(c *DecoderConfig) {
		c.logger = logging.OrDiscard(l)
	})
}

func newDecoderConfig(opts []DecodeOption) (*DecoderConfig, error) {
	cfg := &DecoderConfig{
		compression: format.CompressionNone,
		logger:      logging.Discard(),
	}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Table is one decoded group table.
type Table[T any] struct {
	Name string
	// Tags holds the group key columns other than the bounds, measurement, field,
	// result and table columns.
	Tags  map[string]string
	Table T
}

// Result is the outcome of decoding a response.
//
// Tables are in order of first appearance. Errors collects the tolerated
// failures: *errs.ServerError for server error rows, *errs.ParseError for tables
// dropped on a datatype mismatch and *errs.ConversionError for tables the sink
// refused.
type Result[T any] struct {
	Tables []Table[T]
	Errors []error
}

// DecodeCSV decodes an annotated-CSV response body.
//
// Parameters:
//   - body: Response body
//   - sink: Sink building every group table
//   - opts: Decoder options
//
// Returns:
//   - *Result[T]: Decoded tables and tolerated errors
//   - error: *errs.ParseError on a structural violation (column count mismatch,
//     annotation after data, unknown annotation or datatype, malformed CSV)
func DecodeCSV[T any](body []byte, sink frame.Sink[T], opts ...DecodeOption) (*Result[T], error) {
	cfg, err := newDecoderConfig(opts)
	if err != nil {
		return nil, err
	}
	if body, err = decompress(body, cfg.compression); err != nil {
		return nil, err
	}

	return decodeCSV(bytes.NewReader(body), sink, cfg)
}

// DecodeCSVReader decodes an annotated-CSV response read from r. Uncompressed
// input is decoded as it streams; compressed input is read fully first.
func DecodeCSVReader[T any](r io.Reader, sink frame.Sink[T], opts ...DecodeOption) (*Result[T], error) {
	cfg, err := newDecoderConfig(opts)
	if err != nil {
		return nil, err
	}
	if cfg.compression != format.CompressionNone {
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		if body, err = decompress(body, cfg.compression); err != nil {
			return nil, err
		}
		r = bytes.NewReader(body)
	}

	return decodeCSV(r, sink, cfg)
}

func decompress(body []byte, ct format.CompressionType) ([]byte, error) {
	if ct == format.CompressionNone {
		return body, nil
	}
	codec, err := compress.GetCodec(ct)
	if err != nil {
		return nil, err
	}

	return codec.Decompress(body)
}

func decodeCSV[T any](in io.Reader, sink frame.Sink[T], cfg *DecoderConfig) (*Result[T], error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1

	d := &csvDecoder[T]{sink: sink, cfg: cfg, res: &Result[T]{}}
	prevEnd := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvError(err)
		}

		// The reader skips blank lines, so a gap in line numbers marks the end
		// of a table.
		line, _ := r.FieldPos(0)
		if d.blk != nil && line > prevEnd+1 {
			if err := d.finishBlock(); err != nil {
				return nil, err
			}
		}
		prevEnd = line
		for _, cell := range rec {
			prevEnd += strings.Count(cell, "\n")
		}

		if err := d.record(rec, line); err != nil {
			return nil, err
		}
	}
	if d.blk != nil {
		if err := d.finishBlock(); err != nil {
			return nil, err
		}
	}

	return d.res, nil
}

func csvError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &errs.ParseError{
			Row:      pe.Line,
			Column:   max(pe.Column-1, 0),
			Expected: "CSV record",
			Err:      fmt.Errorf("%w: %w", errs.ErrSyntax, pe.Err),
		}
	}

	return err
}

type annotationRow struct {
	row   int
	width int
}

// block is one annotation block: annotations, a header and the data rows up to
// the next blank line.
type block struct {
	startRow    int
	annotations []annotationRow
	datatypes   []format.DataType
	groups      []bool
	defaults    []string

	header     []string
	kinds      []format.DataType
	keyCols    []int
	tagCols    []int
	fieldCols  []int
	indexCol   int
	resultCol  int
	measureCol int
	fieldCol   int
	valueCol   int
	errorCol   int
	refCol     int
	errorTable bool
	pivot      bool

	tracker *groupkey.Tracker
	tables  []*tableState
	rows    int
}

type columnState struct {
	name   string
	values []value.Value
	filled int
}

// tableState accumulates the rows of one group table. In pivot mode rows sharing
// a timestamp share one index position as long as their columns do not collide.
type tableState struct {
	name    string
	tags    map[string]string
	index   []time.Time
	pos     map[int64]int
	columns []columnState
	byName  map[string]int
	dropped bool
}

func (t *tableState) occupied(names []string, pos int) bool {
	for _, name := range names {
		i, ok := t.byName[name]
		if !ok {
			continue
		}
		if c := t.columns[i]; pos < len(c.values) && c.values[pos].IsValid() {
			return true
		}
	}

	return false
}

func (t *tableState) set(name string, pos int, v value.Value) {
	i, ok := t.byName[name]
	if !ok {
		i = len(t.columns)
		t.columns = append(t.columns, columnState{name: name})
		t.byName[name] = i
	}

	c := &t.columns[i]
	for len(c.values) <= pos {
		c.values = append(c.values, value.Value{})
	}
	if !c.values[pos].IsValid() {
		c.filled++
	}
	c.values[pos] = v
}

type csvDecoder[T any] struct {
	sink   frame.Sink[T]
	cfg    *DecoderConfig
	res    *Result[T]
	blk    *block
	blocks int
}

func fatal(row, column int, token string, err error) error {
	return &errs.ParseError{Row: row, Column: column, Token: token, Err: err}
}

func (d *csvDecoder[T]) record(rec []string, row int) error {
	if d.blk == nil {
		d.blk = &block{startRow: row}
	}
	b := d.blk

	if strings.HasPrefix(rec[0], "#") {
		if b.header != nil {
			return fatal(row, 0, rec[0], errs.ErrAnnotationAfterData)
		}

		return b.annotate(rec, row)
	}
	if b.header == nil {
		return b.setHeader(rec, row)
	}

	return d.row(rec, row)
}

func (b *block) annotate(rec []string, row int) error {
	switch rec[0] {
	case "#datatype":
		b.datatypes = make([]format.DataType, len(rec))
		for i := 1; i < len(rec); i++ {
			if rec[i] == "" {
				b.datatypes[i] = format.DataTypeString
				continue
			}
			dt, err := format.ParseDataType(rec[i])
			if err != nil {
				return &errs.ParseError{Row: row, Column: i, Token: rec[i], Expected: "datatype", Err: err}
			}
			b.datatypes[i] = dt
		}
	case "#group":
		b.groups = make([]bool, len(rec))
		for i := 1; i < len(rec); i++ {
			switch rec[i] {
			case "true":
				b.groups[i] = true
			case "false", "":
			default:
				return &errs.ParseError{Row: row, Column: i, Token: rec[i], Expected: "true or false", Err: errs.ErrSyntax}
			}
		}
	case "#default":
		b.defaults = append([]string(nil), rec...)
		b.defaults[0] = ""
	default:
		return fatal(row, 0, rec[0], errs.ErrUnknownAnnotation)
	}
	b.annotations = append(b.annotations, annotationRow{row: row, width: len(rec)})

	return nil
}

func (b *block) setHeader(rec []string, row int) error {
	for _, a := range b.annotations {
		if a.width != len(rec) {
			return &errs.ParseError{
				Row:      a.row,
				Column:   -1,
				Expected: strconv.Itoa(len(rec)) + " columns as in the header",
				Err:      errs.ErrColumnCount,
			}
		}
	}

	b.header = rec
	first := 0
	if rec[0] == "" {
		first = 1
	}

	find := func(name string) int {
		for i := first; i < len(rec); i++ {
			if rec[i] == name {
				return i
			}
		}

		return -1
	}
	b.resultCol = find(ColumnResult)
	b.measureCol = find(ColumnMeasurement)
	b.fieldCol = find(ColumnField)
	b.valueCol = find(ColumnValue)
	b.errorCol = find(ColumnError)
	b.refCol = find(ColumnReference)
	b.errorTable = b.errorCol >= 0 && b.refCol >= 0
	b.pivot = b.fieldCol >= 0 && b.valueCol >= 0
	b.indexCol = find(ColumnTime)
	if b.indexCol < 0 {
		b.indexCol = find(ColumnStop)
	}
	if b.indexCol < 0 {
		b.indexCol = find(ColumnStart)
	}
	tableCol := find(ColumnTable)

	b.kinds = make([]format.DataType, len(rec))
	for i, name := range rec {
		switch {
		case b.datatypes != nil:
			b.kinds[i] = b.datatypes[i]
		case name == ColumnTime, name == ColumnStart, name == ColumnStop:
			b.kinds[i] = format.DataTypeRFC3339
		default:
			b.kinds[i] = format.DataTypeString
		}
	}

	isGroup := make([]bool, len(rec))
	switch {
	case b.groups != nil:
		copy(isGroup, b.groups)
		isGroup[0] = isGroup[0] && first == 0
	case tableCol >= 0:
		isGroup[tableCol] = true
	}

	// Different results never share a table.
	if b.resultCol >= 0 && !isGroup[b.resultCol] {
		b.keyCols = append(b.keyCols, b.resultCol)
	}
	for i := first; i < len(rec); i++ {
		if !isGroup[i] {
			continue
		}
		b.keyCols = append(b.keyCols, i)
		switch rec[i] {
		case ColumnStart, ColumnStop, ColumnMeasurement, ColumnField, ColumnResult, ColumnTable:
		default:
			b.tagCols = append(b.tagCols, i)
		}
	}

	for i := first; i < len(rec); i++ {
		switch {
		case isGroup[i], i == b.indexCol, i == b.resultCol, i == tableCol, i == b.errorCol:
		case rec[i] == ColumnStart, rec[i] == ColumnStop:
		case b.pivot && i == b.fieldCol:
		default:
			b.fieldCols = append(b.fieldCols, i)
		}
	}

	b.tracker = groupkey.NewTracker()

	return nil
}

// cell returns the text of column i, substituting the declared default for an
// empty cell.
func (b *block) cell(rec []string, i int) string {
	if rec[i] == "" && b.defaults != nil {
		return b.defaults[i]
	}

	return rec[i]
}

func (b *block) parse(rec []string, row, i int) (value.Value, error) {
	raw := b.cell(rec, i)
	dt := b.kinds[i]

	var (
		v   value.Value
		err error
	)
	switch {
	case raw == "" && dt != format.DataTypeString && dt != format.DataTypeBase64:
		err = errs.ErrNullValue
	case dt == format.DataTypeDuration:
		v, err = parseDurationCell(raw)
	default:
		v, err = value.ParseCSV(dt, raw)
	}
	if err != nil {
		var pe *errs.ParseError
		if errors.As(err, &pe) {
			err = pe.Err
		}

		return value.Value{}, &errs.ParseError{
			Row:        row,
			Column:     i,
			ColumnName: b.header[i],
			Token:      raw,
			Expected:   dt.String(),
			Err:        fmt.Errorf("%w: %w", errs.ErrDataTypeMismatch, err),
		}
	}

	return v, nil
}

// parseDurationCell accepts Flux duration literals and Go duration strings.
func parseDurationCell(raw string) (value.Value, error) {
	if d, err := ParseDuration(raw); err == nil {
		ns, err := d.Std()
		if err != nil {
			return value.Value{}, err
		}

		return value.Integer(int64(ns)), nil
	}

	return value.ParseCSV(format.DataTypeDuration, raw)
}

func (b *block) tableName(rec []string) string {
	if b.measureCol >= 0 {
		if name := b.cell(rec, b.measureCol); name != "" {
			return name
		}
	}
	if b.resultCol >= 0 {
		if name := b.cell(rec, b.resultCol); name != "" {
			return name
		}
	}

	return DefaultTableName
}

func (d *csvDecoder[T]) serverError(rec []string, row int, msg, ref string) {
	b := d.blk
	name := ""
	if b.resultCol >= 0 {
		name = b.cell(rec, b.resultCol)
	}
	if name == "" {
		name = strconv.Itoa(d.blocks)
	}

	se := &errs.ServerError{Kind: errs.ServerTable, Table: name, Reference: ref, Message: msg}
	d.res.Errors = append(d.res.Errors, se)
	d.cfg.logger.WithFields(logrus.Fields{"row": row, "table": name, "error": msg}).Warn("server error row")
}

func (d *csvDecoder[T]) row(rec []string, row int) error {
	b := d.blk
	if len(rec) != len(b.header) {
		return &errs.ParseError{
			Row:      row,
			Column:   -1,
			Expected: strconv.Itoa(len(b.header)) + " columns as in the header",
			Err:      errs.ErrColumnCount,
		}
	}
	b.rows++

	if b.errorTable {
		d.serverError(rec, row, b.cell(rec, b.errorCol), b.cell(rec, b.refCol))
		return nil
	}
	if b.errorCol >= 0 {
		if msg := b.cell(rec, b.errorCol); msg != "" {
			d.serverError(rec, row, msg, "")
			return nil
		}
	}

	key := make([]string, len(b.keyCols))
	for i, col := range b.keyCols {
		key[i] = b.cell(rec, col)
	}
	ord, isNew := b.tracker.Track(key)
	if isNew {
		t := &tableState{
			name:   b.tableName(rec),
			tags:   make(map[string]string, len(b.tagCols)),
			byName: make(map[string]int, len(b.fieldCols)),
		}
		for _, col := range b.tagCols {
			t.tags[b.header[col]] = b.cell(rec, col)
		}
		if b.pivot {
			t.pos = make(map[int64]int)
		}
		b.tables = append(b.tables, t)
	}

	t := b.tables[ord]
	if t.dropped {
		return nil
	}
	if err := d.fill(t, rec, row); err != nil {
		t.dropped = true
		d.res.Errors = append(d.res.Errors, err)
		d.cfg.logger.WithFields(logrus.Fields{"row": row, "table": t.name, "error": err}).Debug("dropping table")
	}

	return nil
}

func (d *csvDecoder[T]) fill(t *tableState, rec []string, row int) error {
	b := d.blk

	var ts time.Time
	if b.indexCol >= 0 {
		v, err := b.parse(rec, row, b.indexCol)
		if err != nil {
			return err
		}
		var ok bool
		if ts, ok = v.AsTime(); !ok {
			n, isInt := v.AsInteger()
			if !isInt {
				return &errs.ParseError{
					Row:        row,
					Column:     b.indexCol,
					ColumnName: b.header[b.indexCol],
					Token:      rec[b.indexCol],
					Expected:   "timestamp",
					Err:        errs.ErrDataTypeMismatch,
				}
			}
			ts = time.Unix(0, n).UTC()
		}
	}

	// Parse every cell before touching the table so a failing row leaves no
	// partial values behind.
	values := make([]value.Value, len(b.fieldCols))
	for i, col := range b.fieldCols {
		v, err := b.parse(rec, row, col)
		if err != nil {
			return err
		}
		values[i] = v
	}

	names := make([]string, len(b.fieldCols))
	for i, col := range b.fieldCols {
		names[i] = b.header[col]
		if b.pivot && col == b.valueCol {
			names[i] = b.cell(rec, b.fieldCol)
		}
	}

	// A pivoted row joins the latest position holding its timestamp only when
	// none of its columns is filled there yet; otherwise it starts a new row.
	pos := -1
	if t.pos != nil {
		if p, ok := t.pos[ts.UnixNano()]; ok && !t.occupied(names, p) {
			pos = p
		}
	}
	if pos < 0 {
		pos = len(t.index)
		t.index = append(t.index, ts)
		if t.pos != nil {
			t.pos[ts.UnixNano()] = pos
		}
	}

	for i, name := range names {
		t.set(name, pos, values[i])
	}

	return nil
}

func (d *csvDecoder[T]) finishBlock() error {
	b := d.blk
	d.blk = nil
	d.blocks++

	if b.header == nil {
		return &errs.ParseError{Row: b.startRow, Column: -1, Expected: "header row", Err: errs.ErrMissingHeader}
	}
	if b.rows == 0 {
		d.cfg.logger.WithFields(logrus.Fields{"row": b.startRow}).Debug("empty table")
		return nil
	}

	for _, t := range b.tables {
		if t.dropped || len(t.index) == 0 {
			continue
		}
		d.emit(t)
	}

	return nil
}

func (d *csvDecoder[T]) emit(t *tableState) {
	columns := make(frame.Columns, 0, len(t.columns))
	for _, c := range t.columns {
		if c.filled != len(t.index) {
			err := &errs.ConversionError{
				Table:    t.name,
				Column:   c.name,
				Expected: len(t.index),
				Found:    c.filled,
				Err:      errs.ErrRaggedColumn,
			}
			d.res.Errors = append(d.res.Errors, err)
			d.cfg.logger.WithFields(logrus.Fields{"table": t.name, "error": err}).Debug("dropping table")

			return
		}
		columns = append(columns, frame.Column{Name: c.name, Values: c.values})
	}

	table, err := d.sink.FromTable(t.name, t.index, columns)
	if err != nil {
		d.res.Errors = append(d.res.Errors, err)
		d.cfg.logger.WithFields(logrus.Fields{"table": t.name, "error": err}).Debug("sink rejected table")

		return
	}
	d.res.Tables = append(d.res.Tables, Table[T]{Name: t.name, Tags: t.tags, Table: table})
}
