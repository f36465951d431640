// Command field-extractor extracts structured fields from a PDF and writes
// the resulting document record as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/docufield/field-extractor/internal/config"
	"github.com/docufield/field-extractor/internal/extract"
	"github.com/docufield/field-extractor/internal/llm"
	"github.com/docufield/field-extractor/internal/observability"
	"github.com/docufield/field-extractor/internal/pdf"
	"github.com/docufield/field-extractor/internal/store"
)

const version = "1.0.0"

var (
	fieldList   string
	outputPath  string
	configPath  string
	showVersion bool
	verbose     bool
)

func init() {
	flag.StringVar(&fieldList, "fields", "", "Comma-separated field names to extract (required)")
	flag.StringVar(&outputPath, "output", "", "Output file path (default: <input-name>-fields.json)")
	flag.StringVar(&outputPath, "o", "", "Output file path (shorthand)")
	flag.StringVar(&configPath, "config", "", "Path to YAML configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	flag.Usage = usage
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Printf("field-extractor version %s\n", version)
		os.Exit(0)
	}

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: PDF file path required\n\n")
		usage()
		os.Exit(1)
	}
	pdfPath := flag.Arg(0)

	fields := splitFields(fieldList)
	if len(fields) == 0 {
		fmt.Fprintf(os.Stderr, "Error: -fields is required\n\n")
		usage()
		os.Exit(1)
	}

	// Ignore error if .env doesn't exist.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Extraction.APIKey == "" {
		fmt.Fprintf(os.Stderr, "Error: OPENAI_API_KEY environment variable not set\n")
		fmt.Fprintf(os.Stderr, "Please set it in your .env file or environment\n")
		os.Exit(1)
	}

	logLevel := "info"
	if verbose {
		logLevel = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:       logLevel,
		Format:      "console",
		ServiceName: "field-extractor",
	})

	data, err := os.ReadFile(pdfPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", pdfPath).Msg("failed to read PDF")
	}
	if err := pdf.CheckPDF(data); err != nil {
		logger.Fatal().Err(err).Str("path", pdfPath).Msg("not a PDF document")
	}

	// One-shot runs keep their record cache next to the output.
	docStore, err := store.Open(cfg.Database.Path, cfg.Database.JournalMode, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open document store")
	}
	defer docStore.Close()

	renderer := pdf.NewRenderer(cfg.Render.Scale)
	client := llm.NewClient(cfg.Extraction, logger)
	svc := extract.NewService(renderer, client, docStore, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	documentID := uuid.New().String()
	rec, err := svc.ProcessDocument(ctx, documentID, filepath.Base(pdfPath), data, fields)
	if err != nil {
		logger.Fatal().Err(err).Msg("extraction failed")
	}

	if outputPath == "" {
		baseName := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
		outputPath = baseName + "-fields.json"
	}

	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to encode record")
	}
	if err := os.WriteFile(outputPath, out, 0o644); err != nil {
		logger.Fatal().Err(err).Str("path", outputPath).Msg("failed to write output")
	}

	logger.Info().
		Str("output", outputPath).
		Int("pages", rec.TotalPages).
		Msg("extraction complete")
}

func splitFields(raw string) []string {
	fields := make([]string, 0, 4)
	for _, field := range strings.Split(raw, ",") {
		if field = strings.TrimSpace(field); field != "" {
			fields = append(fields, field)
		}
	}
	return fields
}

func usage() {
	fmt.Fprintf(os.Stderr, `field-extractor - extract structured fields from PDF documents

Usage:
  field-extractor [flags] <pdf-file>

Flags:
`)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Example:
  field-extractor -fields "invoice_number,date,amount" invoice.pdf
`)
}
