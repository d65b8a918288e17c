package io

import (
	"encoding/csv"
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	mat "github.com/nlpodyssey/spago/pkg/mat32"

	"studium/pkg/model"
)

type void struct{}

var Void = void{}

type Set map[string]void

func NewSet(values ...string) Set {
	set := Set{}
	for _, val := range values {
		set[val] = Void
	}
	return set
}

type DataParameters struct {
	DataFile     string
	TargetColumn string

	// CategoricalColumns is the fixed allow-list of known categorical
	// columns; any other non-numeric column is detected from the data.
	CategoricalColumns Set

	BatchSize int
}

// DataError describes a single row that could not be transformed under a
// frozen schema. The row is skipped.
type DataError struct {
	Line  int
	Error string
}

// ShapeError is a fatal data-shape failure: one or more declared-numeric
// columns contained values that cannot be coerced to numbers.
type ShapeError struct {
	// Samples holds up to maxShapeSamples offending values per column.
	Samples map[string][]string
}

const maxShapeSamples = 5

func (e *ShapeError) Error() string {
	columns := make([]string, 0, len(e.Samples))
	for column := range e.Samples {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	var sb strings.Builder
	sb.WriteString("non-numeric values in declared-numeric columns:")
	for _, column := range columns {
		fmt.Fprintf(&sb, " %s (e.g. %s)", column, strings.Join(e.Samples[column], ", "))
	}
	return sb.String()
}

func (e *ShapeError) add(column, value string) {
	if e.Samples == nil {
		e.Samples = map[string][]string{}
	}
	if len(e.Samples[column]) < maxShapeSamples {
		e.Samples[column] = append(e.Samples[column], value)
	}
}

// typeProbeRows bounds the window used to detect text-typed columns while
// fitting the schema. Non-numeric values past the window in a column that
// probed numeric surface as a ShapeError instead of reclassifying it.
const typeProbeRows = 100

// Load reads a CSV file with a header row and returns its records batched
// into a DataSet.
//
// With a nil metaData the feature schema is fitted from the file: columns
// are partitioned into continuous and categorical sets, standardization
// parameters are computed over the full input and one category encoder per
// categorical column is fitted in row order. With a non-nil metaData the
// frozen schema is applied unchanged; rows it cannot transform are reported
// as DataErrors and skipped.
func Load(p DataParameters, metaData *model.Metadata) (*model.Metadata, *DataSet, []DataError, error) {
	inputFile, err := os.Open(p.DataFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error opening file: %w", err)
	}
	defer inputFile.Close()

	reader := csv.NewReader(inputFile)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error reading data header: %w", err)
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error reading data rows: %w", err)
	}

	fit := metaData == nil
	if fit {
		metaData, err = fitSchema(p, header, rows)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	records, dataErrors := buildRecords(metaData, rows, fit)
	return metaData, NewDataSet(records, p.BatchSize), dataErrors, nil
}

// fitSchema freezes the column partition and the standardization parameters.
// The category encoders are left empty here and filled in row order by
// buildRecords.
func fitSchema(p DataParameters, header []string, rows [][]string) (*model.Metadata, error) {
	metaData := model.NewMetadata()
	metaData.Columns = header

	for i, col := range header {
		if col == p.TargetColumn {
			metaData.TargetColumn = i
			break
		}
	}
	if metaData.TargetColumn < 0 {
		return nil, fmt.Errorf("target column %s not found in data header", p.TargetColumn)
	}

	for column, name := range header {
		if column == metaData.TargetColumn {
			continue
		}
		_, known := p.CategoricalColumns[name]
		if !known && probesNumeric(rows, column) {
			metaData.Continuous = append(metaData.Continuous, &model.ContinuousColumn{
				Name:   name,
				Column: column,
				Index:  len(metaData.Continuous),
			})
			continue
		}
		metaData.Categorical = append(metaData.Categorical, &model.CategoricalColumn{
			Name:    name,
			Column:  column,
			Index:   len(metaData.Categorical),
			Encoder: model.NewNameMap(),
		})
	}

	if err := fitStandardization(metaData, rows); err != nil {
		return nil, err
	}
	return metaData, nil
}

func probesNumeric(rows [][]string, column int) bool {
	for i, row := range rows {
		if i == typeProbeRows {
			break
		}
		if column >= len(row) {
			continue
		}
		if _, err := strconv.ParseFloat(row[column], 32); err != nil {
			return false
		}
	}
	return true
}

// fitStandardization computes the per-column mean and standard deviation
// over the full input. A declared-numeric value that fails to parse here is
// a fatal shape error.
func fitStandardization(metaData *model.Metadata, rows [][]string) error {
	shapeErr := &ShapeError{}
	counts := make([]int, len(metaData.Continuous))
	sums := make([]float64, len(metaData.Continuous))
	sumSquares := make([]float64, len(metaData.Continuous))

	for _, row := range rows {
		for _, c := range metaData.Continuous {
			if c.Column >= len(row) {
				continue
			}
			value, err := strconv.ParseFloat(row[c.Column], 32)
			if err != nil {
				shapeErr.add(c.Name, row[c.Column])
				continue
			}
			counts[c.Index]++
			sums[c.Index] += value
			sumSquares[c.Index] += value * value
		}
	}
	if len(shapeErr.Samples) > 0 {
		return shapeErr
	}

	for _, c := range metaData.Continuous {
		if counts[c.Index] == 0 {
			continue
		}
		n := float64(counts[c.Index])
		mean := sums[c.Index] / n
		variance := sumSquares[c.Index]/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		c.Mean = mat.Float(mean)
		c.Std = mat.Float(math.Sqrt(variance))
	}
	return nil
}

func buildRecords(metaData *model.Metadata, rows [][]string, fit bool) ([]*DataRecord, []DataError) {
	var records []*DataRecord
	var dataErrors []DataError

	for line, row := range rows {
		if len(row) != len(metaData.Columns) {
			dataErrors = append(dataErrors, DataError{Line: line, Error: "wrong number of fields"})
			continue
		}

		target, err := strconv.ParseFloat(row[metaData.TargetColumn], 32)
		if err != nil {
			dataErrors = append(dataErrors, DataError{
				Line:  line,
				Error: fmt.Sprintf("error parsing target %s: %s", metaData.TargetName(), err),
			})
			continue
		}

		features := mat.NewEmptyVecDense(metaData.ContinuousCount())
		ok := true
		for _, c := range metaData.Continuous {
			value, err := strconv.ParseFloat(row[c.Column], 32)
			if err != nil {
				dataErrors = append(dataErrors, DataError{
					Line:  line,
					Error: fmt.Sprintf("error parsing feature %s: %s", c.Name, err),
				})
				ok = false
				break
			}
			features.Set(c.Index, 0, c.Standardize(mat.Float(value)))
		}
		if !ok {
			continue
		}

		categorical := make([]int, metaData.CategoricalCount())
		for _, c := range metaData.Categorical {
			if fit {
				categorical[c.Index] = c.Encoder.ValueFor(row[c.Column])
				continue
			}
			code, found := c.Encoder.ContainsName(row[c.Column])
			if !found {
				dataErrors = append(dataErrors, DataError{
					Line:  line,
					Error: fmt.Sprintf("unknown value %s for categorical attribute %s", row[c.Column], c.Name),
				})
				ok = false
				break
			}
			categorical[c.Index] = code
		}
		if !ok {
			continue
		}

		records = append(records, &DataRecord{
			ContinuousFeatures:  features,
			CategoricalFeatures: categorical,
			Target:              mat.Float(target),
		})
	}
	return records, dataErrors
}

func SaveModel(m *model.Model, writer io.Writer) error {
	encoder := gob.NewEncoder(writer)
	if err := encoder.Encode(m); err != nil {
		return fmt.Errorf("error encoding model: %w", err)
	}
	return nil
}

func LoadModel(input io.Reader) (*model.Model, error) {
	decoder := gob.NewDecoder(input)
	m := &model.Model{}
	if err := decoder.Decode(m); err != nil {
		return nil, fmt.Errorf("error decoding model: %w", err)
	}
	return m, nil
}
