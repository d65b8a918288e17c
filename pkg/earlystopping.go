package pkg

import (
	"math"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
)

// EarlyStopping halts training once the validation loss has failed to
// improve for a fixed number of consecutive epochs. Every improvement
// snapshots the parameter values so that training can be rolled back to the
// best epoch rather than the last one.
type EarlyStopping struct {
	patience int
	params   nn.ParamsGetter
	bestLoss mat.Float
	counter  int
	snapshot []mat.Matrix
}

func NewEarlyStopping(patience int, params nn.ParamsGetter) *EarlyStopping {
	return &EarlyStopping{
		patience: patience,
		params:   params,
		bestLoss: mat.Float(math.Inf(1)),
	}
}

// Step records one epoch's validation loss. A loss strictly greater than
// the best seen so far increments the stall counter; an equal or better
// loss resets it and snapshots the current parameters. Step returns true
// once the counter reaches the patience threshold.
func (e *EarlyStopping) Step(validationLoss mat.Float) bool {
	if validationLoss > e.bestLoss {
		e.counter++
		return e.counter >= e.patience
	}
	e.bestLoss = validationLoss
	e.counter = 0
	e.takeSnapshot()
	return false
}

func (e *EarlyStopping) BestLoss() mat.Float {
	return e.bestLoss
}

// Restore rolls all parameters back to the values of the best epoch.
func (e *EarlyStopping) Restore() {
	if e.snapshot == nil {
		return
	}
	for i, param := range e.params.Params() {
		param.ReplaceValue(e.snapshot[i].Clone())
	}
}

func (e *EarlyStopping) takeSnapshot() {
	params := e.params.Params()
	if e.snapshot == nil {
		e.snapshot = make([]mat.Matrix, len(params))
	}
	for i, param := range params {
		e.snapshot[i] = param.Value().Clone()
	}
}
