package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeExamData covers both categorical paths: Distance_from_Home is on the
// known-column list, Internet_Access is text-typed and must be autodetected.
func writeExamData(t *testing.T, rows int) string {
	t.Helper()
	distances := []string{"Near", "Moderate", "Far"}
	internet := []string{"Yes", "No"}
	lines := []string{"Hours_Studied,Previous_Scores,Tutoring_Sessions,Distance_from_Home,Internet_Access,Exam_Score"}
	for i := 0; i < rows; i++ {
		hours := float64(i%25) + 2
		previous := 50.0 + float64((i*11)%45)
		sessions := float64(i % 5)
		score := 30.0 + 0.9*hours + 0.4*previous + 1.5*sessions - float64(i%3)
		lines = append(lines, fmt.Sprintf("%.1f,%.1f,%.0f,%s,%s,%.2f",
			hours, previous, sessions, distances[i%3], internet[(i/3)%2], score))
	}
	path := filepath.Join(t.TempDir(), "exams.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestTrainAndEvaluateCommands(t *testing.T) {
	dataFile := writeExamData(t, 120)
	modelFile := filepath.Join(t.TempDir(), "students.model")

	trainCmd := TrainCommand()
	trainCmd.SetArgs(strings.Split(fmt.Sprintf("-i %s -o %s", dataFile, modelFile), " "))
	require.NoError(t, trainCmd.Execute())
	require.FileExists(t, modelFile)

	predictionsFile := filepath.Join(t.TempDir(), "predictions.csv")
	evalCmd := EvaluateCommand()
	evalCmd.SetArgs(strings.Split(fmt.Sprintf("-m %s -i %s -o %s", modelFile, dataFile, predictionsFile), " "))
	require.NoError(t, evalCmd.Execute())

	predictions, err := os.ReadFile(predictionsFile)
	require.NoError(t, err)
	require.Equal(t, 120, strings.Count(string(predictions), "\n"))
}
