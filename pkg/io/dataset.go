package io

import (
	"math/rand"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
)

// DataRecord is one sample: the standardized continuous features as a dense
// vector, the encoded categorical features in schema order and the target
// value. Records are immutable once constructed.
type DataRecord struct {
	ContinuousFeatures  mat.Matrix
	CategoricalFeatures []int
	Target              mat.Float
}

type DataBatch []*DataRecord

// DataSet is an ordered collection of records with deterministic batching.
// Splits share the backing records and only own their index sets.
type DataSet struct {
	Data         []*DataRecord
	BatchSize    int
	Rand         *rand.Rand
	dataIndices  []int
	currentOrder []int
	currentIndex int
}

func NewDataSet(data []*DataRecord, batchSize int) *DataSet {
	dataIndices := make([]int, len(data))
	for i := range dataIndices {
		dataIndices[i] = i
	}
	ds := &DataSet{Data: data, BatchSize: batchSize, dataIndices: dataIndices}
	ds.ResetOrder(OriginalOrder)
	return ds
}

func newDataSetSplit(parent *DataSet, indices []int) *DataSet {
	ds := &DataSet{
		Data:        parent.Data,
		BatchSize:   parent.BatchSize,
		Rand:        parent.Rand,
		dataIndices: indices,
	}
	ds.ResetOrder(OriginalOrder)
	return ds
}

type DatasetOrder int

const (
	OriginalOrder DatasetOrder = iota
	RandomOrder
)

func (d *DataSet) ResetOrder(order DatasetOrder) {
	if d.currentOrder == nil {
		d.currentOrder = make([]int, len(d.dataIndices))
	}
	switch order {
	case OriginalOrder:
		copy(d.currentOrder, d.dataIndices)
	case RandomOrder:
		ind := d.Rand.Perm(len(d.currentOrder))
		for i := range ind {
			d.currentOrder[i] = d.dataIndices[ind[i]]
		}
	}
	d.currentIndex = 0
}

// Next returns the next batch of at most BatchSize records, or an empty
// batch once the set is exhausted.
func (d *DataSet) Next() DataBatch {
	batch := make(DataBatch, 0, d.BatchSize)
	for ; d.currentIndex < len(d.currentOrder) && len(batch) < d.BatchSize; d.currentIndex++ {
		batch = append(batch, d.Data[d.currentOrder[d.currentIndex]])
	}
	return batch
}

func (d *DataSet) Size() int {
	return len(d.dataIndices)
}

// RandomSplit shuffles the set once and partitions it into one split per
// requested size. The split draws from the data set's own random source, so
// consecutive splits on the same source are reproducible for a fixed seed.
func (d *DataSet) RandomSplit(sizes ...int) []*DataSet {
	indices := make([]int, len(d.dataIndices))
	copy(indices, d.dataIndices)
	d.Rand.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})
	splits := make([]*DataSet, len(sizes))
	idx := 0
	for i := range sizes {
		splitIndices := make([]int, sizes[i])
		for j := range splitIndices {
			splitIndices[j] = indices[idx]
			idx++
		}
		splits[i] = newDataSetSplit(d, splitIndices)
	}
	return splits
}

// SplitFraction partitions the set into a (fraction, 1-fraction) pair, the
// first split taking the rounded-down share.
func (d *DataSet) SplitFraction(fraction float64) (*DataSet, *DataSet) {
	first := int(float64(d.Size()) * fraction)
	splits := d.RandomSplit(first, d.Size()-first)
	return splits[0], splits[1]
}
