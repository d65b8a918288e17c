package encoder

import (
	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/initializers"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/nn/attention"
	"github.com/nlpodyssey/spago/pkg/ml/nn/attention/multiheadattention"
	"github.com/nlpodyssey/spago/pkg/ml/nn/linear"
	"github.com/nlpodyssey/spago/pkg/ml/nn/normalization/layernorm"
)

var (
	_ nn.Model = &Model{}
	_ nn.Model = &Block{}
)

type Config struct {
	NumBlocks            int
	InputDimension       int
	NumHeads             int
	FeedForwardDimension int
	Dropout              mat.Float
}

// Model is a fixed-depth stack of identical pre-norm transformer blocks.
// Attention is full: the token sequence is an unordered feature bag, so no
// causal masking applies.
type Model struct {
	nn.BaseModel
	Blocks []*Block
}

func New(config Config) *Model {
	blocks := make([]*Block, config.NumBlocks)
	for i := range blocks {
		blocks[i] = newBlock(config)
	}
	return &Model{Blocks: blocks}
}

func (m *Model) Init(generator *rand.LockedRand) {
	for _, block := range m.Blocks {
		block.Init(generator)
	}
}

func (m *Model) Forward(xs ...ag.Node) []ag.Node {
	ys := xs
	for _, block := range m.Blocks {
		ys = block.Forward(ys...)
	}
	return ys
}

// Block is one encoder block: pre-norm multi-head self-attention with a
// residual connection, followed by a pre-norm position-wise feed-forward
// with a residual connection.
type Block struct {
	nn.BaseModel
	AttentionNorm   *layernorm.Model
	Attention       *multiheadattention.Model
	FeedForwardNorm *layernorm.Model
	FeedForwardIn   *linear.Model
	FeedForwardOut  *linear.Model
	Dropout         mat.Float
}

func newBlock(config Config) *Block {
	return &Block{
		AttentionNorm:   layernorm.New(config.InputDimension),
		Attention:       multiheadattention.New(config.InputDimension, config.NumHeads, false),
		FeedForwardNorm: layernorm.New(config.InputDimension),
		FeedForwardIn:   linear.New(config.InputDimension, config.FeedForwardDimension),
		FeedForwardOut:  linear.New(config.FeedForwardDimension, config.InputDimension),
		Dropout:         config.Dropout,
	}
}

func (b *Block) Init(generator *rand.LockedRand) {
	gain := initializers.Gain(ag.OpIdentity)
	nn.ForEachParam(b.Attention, func(param nn.Param) {
		if param.Value().Columns() > 1 {
			initializers.XavierUniform(param.Value(), gain, generator)
		}
	})
	initializers.XavierUniform(b.FeedForwardIn.W.Value(), initializers.Gain(ag.OpReLU), generator)
	initializers.XavierUniform(b.FeedForwardOut.W.Value(), gain, generator)
}

func (b *Block) Forward(xs ...ag.Node) []ag.Node {
	g := b.Graph()

	normed := b.AttentionNorm.Forward(xs...)
	attended := b.Attention.Forward(attention.ToQKV(normed)).AttOutput
	ys := make([]ag.Node, len(xs))
	for i := range xs {
		ys[i] = g.Add(xs[i], b.drop(attended[i]))
	}

	normed = b.FeedForwardNorm.Forward(ys...)
	for i := range ys {
		hidden := g.ReLU(b.FeedForwardIn.Forward(normed[i])[0])
		ys[i] = g.Add(ys[i], b.drop(b.FeedForwardOut.Forward(hidden)[0]))
	}
	return ys
}

func (b *Block) drop(x ag.Node) ag.Node {
	if b.Mode() != nn.Training {
		return x
	}
	return b.Graph().Dropout(x, b.Dropout)
}
