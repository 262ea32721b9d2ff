package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scantron",
		Short:         "Grade scanned bubble sheets",
		SilenceUsage: true,
	}

	p := root.PersistentFlags()
	p.String("store", "memory", "Grade store (memory, sqlite)")
	p.String("db", "scantron.db", "SQLite database path")
	p.String("answer-keys", "answer_keys", "Directory of <assignment>.yaml answer keys")
	p.Int("workers", 0, "Pages graded in parallel (default: number of CPUs)")
	p.Bool("ocr", true, "Fall back to OCR name matching when no code is found")
	p.String("ocr-language", "eng", "Tesseract language")
	p.Duration("identify-timeout", 0, "Budget for each decode or OCR call (default 10s)")
	p.String("log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(gradeCmd(), resolveCmd(), reportCmd(), serveCmd())
	return root
}
