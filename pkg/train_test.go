package pkg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/nn/linear"
	"github.com/stretchr/testify/require"

	"studium/pkg/model"
)

func TestEarlyStoppingHaltsAtBestPlusPatience(t *testing.T) {
	m := linear.New(2, 1)
	stopping := NewEarlyStopping(3, nn.NewDefaultParamsIterator(m))

	require.False(t, stopping.Step(5.0)) // epoch 0
	m.W.ReplaceValue(mat.NewDense(1, 2, []mat.Float{1, 2}))
	m.B.ReplaceValue(mat.NewVecDense([]mat.Float{3}))
	require.False(t, stopping.Step(4.0)) // epoch 1: best, snapshot taken here

	// Training keeps mutating the parameters while the loss stalls.
	m.W.ReplaceValue(mat.NewDense(1, 2, []mat.Float{9, 9}))
	m.B.ReplaceValue(mat.NewVecDense([]mat.Float{9}))
	require.False(t, stopping.Step(4.5)) // epoch 2
	require.False(t, stopping.Step(4.5)) // epoch 3
	require.True(t, stopping.Step(4.5))  // epoch 4 = best epoch (1) + patience (3)

	stopping.Restore()
	require.Equal(t, []mat.Float{1, 2}, m.W.Value().Data())
	require.Equal(t, []mat.Float{3}, m.B.Value().Data())
	require.Equal(t, mat.Float(4.0), stopping.BestLoss())
}

func TestEarlyStoppingEqualLossResetsCounter(t *testing.T) {
	m := linear.New(1, 1)
	stopping := NewEarlyStopping(2, nn.NewDefaultParamsIterator(m))

	require.False(t, stopping.Step(3.0))
	require.False(t, stopping.Step(3.5)) // counter 1
	require.False(t, stopping.Step(3.0)) // equal to best: counter resets
	require.False(t, stopping.Step(3.5)) // counter 1
	require.True(t, stopping.Step(3.5))  // counter 2
}

func writeStudentData(t *testing.T, rows int) string {
	t.Helper()
	genders := []string{"Male", "Female"}
	schools := []string{"Public", "Private"}
	lines := []string{"Hours_Studied,Attendance,Sleep_Hours,Gender,School_Type,Exam_Score"}
	for i := 0; i < rows; i++ {
		hours := float64(i%20) + 1
		attendance := 60.0 + float64((i*7)%40)
		sleep := 5.0 + float64(i%4)
		score := 40.0 + 1.2*hours + 0.2*attendance + 0.5*sleep + float64(i%2)
		lines = append(lines, fmt.Sprintf("%.1f,%.1f,%.1f,%s,%s,%.2f",
			hours, attendance, sleep, genders[i%2], schools[(i/2)%2], score))
	}
	path := filepath.Join(t.TempDir(), "students.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestTrainEndToEnd(t *testing.T) {
	dataFile := writeStudentData(t, 100)

	params := NewDefaultTrainingParameters()
	params.MaxEpochs = 5
	params.Patience = 3

	result, err := Train(dataFile, "Exam_Score", "", model.NewDefaultConfig(), params)
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.Evaluation.RMSE, 0.0)
	require.LessOrEqual(t, result.Evaluation.R2, 1.0)
	require.NotEmpty(t, result.TrainLoss)
	require.Len(t, result.ValidationLoss, len(result.TrainLoss))

	// Fixed seeds make the whole run reproducible, epoch by epoch.
	again, err := Train(dataFile, "Exam_Score", "", model.NewDefaultConfig(), params)
	require.NoError(t, err)
	require.Equal(t, result.TrainLoss, again.TrainLoss)
	require.Equal(t, result.ValidationLoss, again.ValidationLoss)
	require.Equal(t, result.Evaluation.RMSE, again.Evaluation.RMSE)
	require.Equal(t, result.Evaluation.R2, again.Evaluation.R2)
}
