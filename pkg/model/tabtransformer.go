package model

import (
	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/encoding/pe"
	"github.com/nlpodyssey/spago/pkg/ml/initializers"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/nn/linear"

	"studium/pkg/model/encoder"
)

var _ nn.Model = &TabTransformer{}

// TabTransformer is a transformer-style regressor over mixed tabular data:
// the standardized continuous features are projected into a single token,
// each categorical feature is embedded into its own token, and the token
// sequence is run through an encoder stack, mean-pooled and regressed to a
// scalar.
type TabTransformer struct {
	nn.BaseModel
	TabTransformerConfig
	ContinuousProjection *linear.Model
	Embeddings           []*CategoricalEmbedding
	PositionalEncoder    *pe.SinusoidalPositionalEncoder
	Encoder              *encoder.Model
	OutputProjectionIn   *linear.Model
	OutputProjectionOut  *linear.Model
}

type TabTransformerConfig struct {
	ContinuousFeatures   int
	EmbeddingDimension   int
	NumHeads             int
	NumBlocks            int
	FeedForwardDimension int
	Dropout              mat.Float
	Categorical          []EmbeddingSpec
}

// EmbeddingSpec sizes the embedding table of one categorical column. The
// vocabulary size is fixed from the distinct values observed at fit time;
// codes at or beyond it are invalid input.
type EmbeddingSpec struct {
	Column         string
	VocabularySize int
}

// NewDefaultConfig returns the fixed model hyperparameters. The feature
// counts are only known after the schema has been fitted and are filled in
// by the trainer.
func NewDefaultConfig() TabTransformerConfig {
	return TabTransformerConfig{
		EmbeddingDimension:   64,
		NumHeads:             4,
		NumBlocks:            3,
		FeedForwardDimension: 256,
		Dropout:              0.1,
	}
}

func NewTabTransformer(config TabTransformerConfig) *TabTransformer {
	embeddings := make([]*CategoricalEmbedding, len(config.Categorical))
	for i, spec := range config.Categorical {
		embeddings[i] = newCategoricalEmbedding(spec, config.EmbeddingDimension)
	}
	return &TabTransformer{
		TabTransformerConfig: config,
		ContinuousProjection: linear.New(config.ContinuousFeatures, config.EmbeddingDimension),
		Embeddings:           embeddings,
		PositionalEncoder:    pe.NewSinusoidalPositionalEncoder(config.EmbeddingDimension, 1+len(config.Categorical)),
		Encoder: encoder.New(encoder.Config{
			NumBlocks:            config.NumBlocks,
			InputDimension:       config.EmbeddingDimension,
			NumHeads:             config.NumHeads,
			FeedForwardDimension: config.FeedForwardDimension,
			Dropout:              config.Dropout,
		}),
		OutputProjectionIn:  linear.New(config.EmbeddingDimension, config.FeedForwardDimension),
		OutputProjectionOut: linear.New(config.FeedForwardDimension, 1),
	}
}

func (m *TabTransformer) Init(generator *rand.LockedRand) {
	gain := initializers.Gain(ag.OpIdentity)
	initializers.XavierUniform(m.ContinuousProjection.W.Value(), gain, generator)
	for _, e := range m.Embeddings {
		e.Init(generator)
	}
	m.Encoder.Init(generator)
	initializers.XavierUniform(m.OutputProjectionIn.W.Value(), initializers.Gain(ag.OpReLU), generator)
	initializers.XavierUniform(m.OutputProjectionOut.W.Value(), gain, generator)
}

// SequenceLength is the number of tokens fed to the encoder per sample.
func (m *TabTransformer) SequenceLength() int {
	return 1 + len(m.Embeddings)
}

// Input is one sample: the standardized continuous feature vector as a graph
// node and the encoded categorical features in schema order.
type Input struct {
	Continuous  ag.Node
	Categorical []int
}

// Forward computes one scalar prediction per sample.
func (m *TabTransformer) Forward(xs ...Input) []ag.Node {
	ys := make([]ag.Node, len(xs))
	for i, x := range xs {
		ys[i] = m.forward(x)
	}
	return ys
}

func (m *TabTransformer) forward(x Input) ag.Node {
	g := m.Graph()

	tokens := make([]ag.Node, 0, m.SequenceLength())
	tokens = append(tokens, m.ContinuousProjection.Forward(x.Continuous)[0])
	for j, e := range m.Embeddings {
		tokens = append(tokens, e.Vectors[x.Categorical[j]])
	}

	for pos := range tokens {
		signal := g.NewVariable(m.PositionalEncoder.Encode(pos)[0], false)
		tokens[pos] = m.drop(g.Add(tokens[pos], signal))
	}

	tokens = m.Encoder.Forward(tokens...)

	pooled := tokens[0]
	for _, token := range tokens[1:] {
		pooled = g.Add(pooled, token)
	}
	pooled = g.DivScalar(pooled, g.NewScalar(mat.Float(len(tokens))))

	hidden := m.drop(g.ReLU(m.OutputProjectionIn.Forward(pooled)[0]))
	return m.OutputProjectionOut.Forward(hidden)[0]
}

func (m *TabTransformer) drop(x ag.Node) ag.Node {
	if m.Mode() != nn.Training {
		return x
	}
	return m.Graph().Dropout(x, m.Dropout)
}

// CategoricalEmbedding is the embedding table of a single categorical
// column, one learned vector per category code.
type CategoricalEmbedding struct {
	nn.BaseModel
	Column  string
	Vectors []nn.Param
}

func newCategoricalEmbedding(spec EmbeddingSpec, dim int) *CategoricalEmbedding {
	vectors := make([]nn.Param, spec.VocabularySize)
	for i := range vectors {
		vectors[i] = nn.NewParam(mat.NewEmptyVecDense(dim))
	}
	return &CategoricalEmbedding{
		Column:  spec.Column,
		Vectors: vectors,
	}
}

func (e *CategoricalEmbedding) Init(generator *rand.LockedRand) {
	for _, v := range e.Vectors {
		initializers.Normal(v.Value(), 0.0, 0.02, generator)
	}
}
