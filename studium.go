package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"studium/pkg"
	"studium/pkg/model"
)

func TrainCommand() *cobra.Command {
	var dataFile string
	var targetColumn string
	var outputFile string

	var cmd = &cobra.Command{
		Use:   "train -i dataFile [-t targetColumn] [-o outputFile]",
		Short: "Trains a student-performance score predictor on the provided data and reports held-out RMSE and R²",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := pkg.Train(dataFile, targetColumn, outputFile,
				model.NewDefaultConfig(), pkg.NewDefaultTrainingParameters())
			return err
		},
	}

	cmd.Flags().StringVarP(&dataFile, "data-file", "i", "", "name of the input data file")
	cmd.Flags().StringVarP(&targetColumn, "target-column", "t", "Exam_Score", "target column")
	cmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "name of the file to save the trained model to (optional)")

	_ = cmd.MarkFlagRequired("data-file")

	return cmd
}

func EvaluateCommand() *cobra.Command {
	var modelFile string
	var inputFile string
	var outputFile string

	var cmd = &cobra.Command{
		Use:   "evaluate -m modelFile -i inputFile [-o outputFile]",
		Short: "Runs a saved model on the specified data and reports RMSE and R², optionally writing the predictions",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pkg.Evaluate(modelFile, inputFile, outputFile)
		},
	}

	cmd.Flags().StringVarP(&modelFile, "model", "m", "", "name of the model to evaluate")
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "name of the data input file")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "name of the predictions output file (optional)")

	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

var logLevel string
var logFormat string

func main() {
	Main := &cobra.Command{Use: "studium", PersistentPreRun: setupLogging}

	Main.PersistentFlags().StringVarP(&logLevel, "log-level", "", "info", "Logging level: info error or debug")
	Main.PersistentFlags().StringVarP(&logFormat, "log-format", "", "pretty", "Logging format: pretty or json")

	Main.AddCommand(TrainCommand())
	Main.AddCommand(EvaluateCommand())

	if err := Main.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command, args []string) {
	switch logLevel {
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	default:
		panic("Invalid logging level specified")
	}

	switch logFormat {
	case "pretty":
		setupPrettyLogging()
	case "json":
	default:
		panic("Invalid log format specified")
	}
}

func setupPrettyLogging() {
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	writer.FormatFieldValue = func(i interface{}) string {
		switch v := i.(type) {
		case json.Number:
			val, _ := v.Float64()
			return fmt.Sprintf("%.4f", val)
		default:
			return fmt.Sprintf("%s", i)
		}
	}
	log.Logger = log.Output(writer)
}
