package pkg

import (
	"fmt"
	gio "io"
	"math"
	"os"

	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"studium/pkg/io"
	"studium/pkg/model"
)

type NoopWriter struct{}

func (x NoopWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

// EvaluationResult holds the regression metrics computed over the full
// held-out set.
type EvaluationResult struct {
	RMSE float64
	R2   float64
}

// Evaluate reloads a saved model and runs it over the given data file,
// reporting RMSE and R². If outputFileName is non-empty, every
// target,prediction pair is written there as CSV.
func Evaluate(modelFileName, inputFileName, outputFileName string) error {
	modelFile, err := os.Open(modelFileName)
	if err != nil {
		return fmt.Errorf("error opening model file %s: %w", modelFileName, err)
	}
	defer modelFile.Close()

	m, err := io.LoadModel(modelFile)
	if err != nil {
		return fmt.Errorf("error loading model from file %s: %w", modelFileName, err)
	}

	_, data, dataErrors, err := io.Load(io.DataParameters{
		DataFile:     inputFileName,
		TargetColumn: m.MetaData.TargetName(),
		BatchSize:    1,
	}, m.MetaData)
	if err != nil {
		return fmt.Errorf("error loading data from %s: %w", inputFileName, err)
	}
	printDataErrors(dataErrors)
	if data.Size() == 0 {
		return fmt.Errorf("no data to evaluate")
	}

	result, err := evaluateInternal(m, data, outputFileName, 42)
	if err != nil {
		return err
	}
	reportMetrics(result)
	return nil
}

func evaluateInternal(m *model.Model, data *io.DataSet, outputFileName string, rndSeed uint64) (*EvaluationResult, error) {
	var outputWriter gio.Writer
	if outputFileName != "" {
		outputFile, err := os.Create(outputFileName)
		if err != nil {
			return nil, fmt.Errorf("error opening output file %s: %w", outputFileName, err)
		}
		defer outputFile.Close()
		outputWriter = outputFile
	} else {
		outputWriter = NoopWriter{}
	}

	var estimated, values []float64

	data.ResetOrder(io.OriginalOrder)
	for batch := data.Next(); len(batch) > 0; batch = data.Next() {
		g := ag.NewGraph(ag.Rand(rand.NewLockedRand(rndSeed)))
		proc := nn.Reify(m.Network, g, nn.Inference).(*model.TabTransformer)
		predictions := proc.Forward(inputs(g, batch)...)
		for i, prediction := range predictions {
			predicted := float64(prediction.ScalarValue())
			target := float64(batch[i].Target)
			log.Debug().Float64("Target", target).Float64("Prediction", predicted).Msg("")
			fmt.Fprintf(outputWriter, "%f,%f\n", target, predicted)
			estimated = append(estimated, predicted)
			values = append(values, target)
		}
		g.Clear()
	}

	sumSquaredError := 0.0
	for i := range estimated {
		diff := estimated[i] - values[i]
		sumSquaredError += diff * diff
	}
	return &EvaluationResult{
		RMSE: math.Sqrt(sumSquaredError / float64(len(estimated))),
		R2:   stat.RSquaredFrom(estimated, values, nil),
	}, nil
}

func reportMetrics(result *EvaluationResult) {
	fmt.Printf("RMSE: %.4f\n", result.RMSE)
	fmt.Printf("R²: %.4f\n", result.R2)
}
