package main

import "github.com/spf13/cobra"

var (
	priorityFlag string
)

var rootCmd = &cobra.Command{
	Use:   "faktulove-ocr",
	Short: "Invoice OCR processing engine",
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statsCmd)

	runCmd.Flags().StringVarP(&priorityFlag, "priority", "p", "normal", "Task priority: low, normal, high or urgent")
}
