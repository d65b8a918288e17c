package pkg

import (
	"fmt"
	mrand "math/rand"
	"os"
	"strings"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/losses"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/optimizers/gd"
	"github.com/nlpodyssey/spago/pkg/ml/optimizers/gd/adam"
	"github.com/rs/zerolog/log"

	"studium/pkg/io"
	"studium/pkg/model"
)

// KnownCategoricalColumns is the fixed allow-list of columns treated as
// categorical regardless of their content. Any other text-typed column is
// detected from the data.
var KnownCategoricalColumns = []string{
	"Parental_Involvement",
	"Access_to_Resources",
	"Peer_Influence",
	"School_Type",
	"Learning_Disabilities",
	"Parental_Education_Level",
	"Distance_from_Home",
	"Gender",
}

type TrainingParameters struct {
	BatchSize      int
	MaxEpochs      int
	LearningRate   float64
	Patience       int
	ReportInterval int
	RndSeed        uint64

	// TrainFraction is applied twice: first to carve the held-out test set,
	// then to carve the validation set out of the remaining training data.
	TrainFraction float64
}

// NewDefaultTrainingParameters returns the fixed training hyperparameters.
func NewDefaultTrainingParameters() TrainingParameters {
	return TrainingParameters{
		BatchSize:      32,
		MaxEpochs:      100,
		LearningRate:   0.001,
		Patience:       10,
		ReportInterval: 10,
		RndSeed:        42,
		TrainFraction:  0.8,
	}
}

type Trainer struct {
	params    TrainingParameters
	optimizer *gd.GradientDescent
	model     *model.TabTransformer
}

const gradientClipThreshold = 2000.0

// TrainingResult holds the per-epoch loss curves and the held-out
// evaluation of the restored best parameters.
type TrainingResult struct {
	TrainLoss      []mat.Float
	ValidationLoss []mat.Float
	Evaluation     *EvaluationResult
}

// Train fits the feature schema on the given file, trains a TabTransformer
// with validation-based early stopping and reports RMSE and R² on the
// held-out test split. If outputFileName is non-empty the trained model and
// its schema are saved there.
func Train(dataFile, targetColumn, outputFileName string, config model.TabTransformerConfig, params TrainingParameters) (*TrainingResult, error) {
	t := &Trainer{params: params}

	metaData, ds, dataErrors, err := io.Load(io.DataParameters{
		DataFile:           dataFile,
		TargetColumn:       targetColumn,
		CategoricalColumns: io.NewSet(KnownCategoricalColumns...),
		BatchSize:          params.BatchSize,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("error reading training data: %w", err)
	}
	printDataErrors(dataErrors)
	if ds.Size() == 0 {
		return nil, fmt.Errorf("no data to train")
	}
	reportSchema(metaData)

	// Both splits draw from a source freshly seeded with RndSeed.
	ds.Rand = mrand.New(mrand.NewSource(int64(params.RndSeed)))
	trainAndValidation, testSet := ds.SplitFraction(params.TrainFraction)
	trainAndValidation.Rand = mrand.New(mrand.NewSource(int64(params.RndSeed)))
	trainSet, validationSet := trainAndValidation.SplitFraction(params.TrainFraction)

	config.ContinuousFeatures = metaData.ContinuousCount()
	config.Categorical = metaData.EmbeddingSpecs()
	t.model = model.NewTabTransformer(config)
	t.model.Init(rand.NewLockedRand(params.RndSeed))

	updaterConfig := adam.NewDefaultConfig()
	updaterConfig.StepSize = mat.Float(params.LearningRate)
	updater := adam.New(updaterConfig)
	t.optimizer = gd.NewOptimizer(updater, nn.NewDefaultParamsIterator(t.model),
		gd.ClipGradByValue(gradientClipThreshold))

	earlyStopping := NewEarlyStopping(params.Patience, nn.NewDefaultParamsIterator(t.model))

	result := &TrainingResult{}
	for epoch := 0; epoch < params.MaxEpochs; epoch++ {
		t.optimizer.IncEpoch()
		trainLoss := t.trainEpoch(epoch, trainSet)
		validationLoss := t.meanLoss(validationSet)
		result.TrainLoss = append(result.TrainLoss, trainLoss)
		result.ValidationLoss = append(result.ValidationLoss, validationLoss)
		log.Info().
			Int("Epoch", epoch).
			Float64("TrainLoss", float64(trainLoss)).
			Float64("ValidationLoss", float64(validationLoss)).
			Msg("")
		if earlyStopping.Step(validationLoss) {
			log.Info().Int("Epoch", epoch).
				Float64("BestValidationLoss", float64(earlyStopping.BestLoss())).
				Msg("Early stopping")
			break
		}
	}
	earlyStopping.Restore()

	m := &model.Model{
		MetaData: metaData,
		Network:  t.model,
	}

	if outputFileName != "" {
		if err := saveModel(m, outputFileName); err != nil {
			return nil, err
		}
	}

	result.Evaluation, err = evaluateInternal(m, testSet, "", params.RndSeed)
	if err != nil {
		return nil, err
	}
	reportMetrics(result.Evaluation)
	return result, nil
}

func (t *Trainer) trainEpoch(epoch int, data *io.DataSet) mat.Float {
	data.ResetOrder(io.RandomOrder)
	var epochLoss mat.Float
	count := 0
	for i, batch := 0, data.Next(); len(batch) > 0; i, batch = i+1, data.Next() {
		batchLoss := t.trainBatch(batch)
		t.optimizer.Optimize()
		epochLoss += batchLoss * mat.Float(len(batch))
		count += len(batch)
		if i%t.params.ReportInterval == 0 {
			log.Debug().Int("Epoch", epoch).Int("Batch", i).
				Float64("Loss", float64(batchLoss)).Msg("")
		}
	}
	return epochLoss / mat.Float(count)
}

func (t *Trainer) trainBatch(batch io.DataBatch) mat.Float {
	t.optimizer.IncBatch()

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(t.params.RndSeed)))
	defer g.Clear()
	proc := nn.Reify(t.model, g, nn.Training).(*model.TabTransformer)
	predictions := proc.Forward(inputs(g, batch)...)

	var loss ag.Node
	for i, prediction := range predictions {
		exampleLoss := losses.MSE(g, prediction, g.NewScalar(batch[i].Target), false)
		loss = g.Add(loss, exampleLoss)
	}
	loss = g.Div(loss, g.NewScalar(mat.Float(len(batch))))

	g.Backward(loss)
	return loss.ScalarValue()
}

// meanLoss computes the mean squared error over a full pass of the data
// with no parameter updates.
func (t *Trainer) meanLoss(data *io.DataSet) mat.Float {
	data.ResetOrder(io.OriginalOrder)
	var total mat.Float
	count := 0
	for batch := data.Next(); len(batch) > 0; batch = data.Next() {
		g := ag.NewGraph(ag.Rand(rand.NewLockedRand(t.params.RndSeed)))
		proc := nn.Reify(t.model, g, nn.Inference).(*model.TabTransformer)
		predictions := proc.Forward(inputs(g, batch)...)
		for i, prediction := range predictions {
			total += losses.MSE(g, prediction, g.NewScalar(batch[i].Target), false).ScalarValue()
			count++
		}
		g.Clear()
	}
	return total / mat.Float(count)
}

func inputs(g *ag.Graph, batch io.DataBatch) []model.Input {
	xs := make([]model.Input, len(batch))
	for i, record := range batch {
		xs[i] = model.Input{
			Continuous:  g.NewVariable(record.ContinuousFeatures, false),
			Categorical: record.CategoricalFeatures,
		}
	}
	return xs
}

func reportSchema(metaData *model.Metadata) {
	continuous := make([]string, 0, metaData.ContinuousCount())
	for _, c := range metaData.Continuous {
		continuous = append(continuous, c.Name)
	}
	categorical := make([]string, 0, metaData.CategoricalCount())
	for _, c := range metaData.Categorical {
		categorical = append(categorical, c.Name)
	}
	fmt.Printf("Numeric columns: %s\n", strings.Join(continuous, ", "))
	fmt.Printf("Categorical columns: %s\n", strings.Join(categorical, ", "))
}

func saveModel(m *model.Model, outputFileName string) error {
	outputFile, err := os.Create(outputFileName)
	if err != nil {
		return fmt.Errorf("error creating output file %s: %w", outputFileName, err)
	}
	defer outputFile.Close()
	if err := io.SaveModel(m, outputFile); err != nil {
		return fmt.Errorf("error saving model to %s: %w", outputFileName, err)
	}
	return nil
}
