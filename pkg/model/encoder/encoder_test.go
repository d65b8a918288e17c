package encoder

import (
	"testing"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/stretchr/testify/require"
)

func TestModel_ForwardPreservesShape(t *testing.T) {
	config := Config{
		NumBlocks:            3,
		InputDimension:       16,
		NumHeads:             4,
		FeedForwardDimension: 32,
		Dropout:              0.1,
	}
	m := New(config)
	m.Init(rand.NewLockedRand(42))
	require.Len(t, m.Blocks, 3)

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	proc := nn.Reify(m, g, nn.Inference).(*Model)

	const sequenceLength = 5
	xs := make([]ag.Node, sequenceLength)
	for i := range xs {
		xs[i] = g.NewVariable(mat.NewInitVecDense(config.InputDimension, mat.Float(i)+0.5), false)
	}

	ys := proc.Forward(xs...)
	require.Len(t, ys, sequenceLength)
	for _, y := range ys {
		require.Equal(t, config.InputDimension, y.Value().Rows())
		require.Equal(t, 1, y.Value().Columns())
	}
}
