package model

import (
	mat "github.com/nlpodyssey/spago/pkg/mat32"
)

// NameMap implements a bidirectional mapping between a category name and its
// integer code.
type NameMap struct {
	NameToIndex map[string]int
	IndexToName map[int]string
}

func NewNameMap() NameMap {
	return NameMap{
		NameToIndex: map[string]int{},
		IndexToName: map[int]string{},
	}
}

func (f NameMap) Set(name string, index int) {
	f.NameToIndex[name] = index
	f.IndexToName[index] = name
}

func (f NameMap) Size() int {
	return len(f.IndexToName)
}

func (f NameMap) ContainsName(name string) (int, bool) {
	index, ok := f.NameToIndex[name]
	return index, ok
}

// ValueFor returns the code for name, assigning the next free code on first
// sight. Only valid while the metadata is being fitted.
func (f NameMap) ValueFor(name string) int {
	index, ok := f.NameToIndex[name]
	if !ok {
		index = f.Size()
		f.Set(name, index)
	}
	return index
}

// ContinuousColumn describes one numeric input column together with the
// standardization parameters fitted on the input data.
type ContinuousColumn struct {
	Name string

	// Column is the index of the column in the data row.
	Column int

	// Index is the position of the column inside the dense feature vector.
	Index int

	Mean mat.Float
	Std  mat.Float
}

// Standardize maps a raw value to zero mean and unit variance under the
// fitted parameters. Columns with no variance map to zero.
func (c *ContinuousColumn) Standardize(value mat.Float) mat.Float {
	if c.Std == 0 {
		return 0
	}
	return (value - c.Mean) / c.Std
}

// CategoricalColumn describes one categorical input column and its fitted
// encoder. The embedding table for the column is sized by Encoder.Size().
type CategoricalColumn struct {
	Name string

	// Column is the index of the column in the data row.
	Column int

	// Index is the position of the column among the categorical features,
	// which is also its token position (shifted by one for the continuous
	// token) in the model input sequence.
	Index int

	Encoder NameMap
}

// Metadata holds the frozen feature schema of a trained model: the ordered
// partition of input columns into continuous and categorical sets, the
// fitted standardization parameters and the fitted category encoders.
// It is fitted once on the training input and never mutated afterwards.
type Metadata struct {
	Columns      []string
	TargetColumn int

	// Continuous and Categorical are ordered by data-row column index; the
	// order fixes the layout of the feature vector and of the token
	// sequence across the lifetime of the model.
	Continuous  []*ContinuousColumn
	Categorical []*CategoricalColumn
}

func NewMetadata() *Metadata {
	return &Metadata{TargetColumn: -1}
}

func (d *Metadata) TargetName() string {
	return d.Columns[d.TargetColumn]
}

func (d *Metadata) ContinuousCount() int {
	return len(d.Continuous)
}

func (d *Metadata) CategoricalCount() int {
	return len(d.Categorical)
}

// SequenceLength is the number of tokens the embedder produces per sample:
// one for the whole continuous block plus one per categorical column.
func (d *Metadata) SequenceLength() int {
	return 1 + len(d.Categorical)
}

// EmbeddingSpecs returns the ordered (column, vocabulary size) pairs used to
// size the categorical embedding tables.
func (d *Metadata) EmbeddingSpecs() []EmbeddingSpec {
	specs := make([]EmbeddingSpec, len(d.Categorical))
	for i, c := range d.Categorical {
		specs[i] = EmbeddingSpec{Column: c.Name, VocabularySize: c.Encoder.Size()}
	}
	return specs
}
