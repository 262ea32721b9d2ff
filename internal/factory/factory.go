package factory

import (
	"fmt"

	"go-scantron-grader/internal/analyzer"
	"go-scantron-grader/internal/config"
	"go-scantron-grader/internal/decoder"
	"go-scantron-grader/internal/identify"
	"go-scantron-grader/internal/layout"
	"go-scantron-grader/internal/logger"
	"go-scantron-grader/internal/ocr"
	"go-scantron-grader/internal/repository"
	"go-scantron-grader/internal/storage"
	"go-scantron-grader/pkg/models"
)

// AnalyzerType represents different page analyzer profiles
type AnalyzerType string

const (
	// StandardAnalyzer runs quality checks and code pattern detection
	StandardAnalyzer AnalyzerType = "standard"
	// FastAnalyzer only reads orientation and bubbles
	FastAnalyzer AnalyzerType = "fast"
)

// StorageType represents different page sources
type StorageType string

const (
	HTTPStorage  StorageType = "http"
	AzureStorage StorageType = "azure"
	LocalStorage StorageType = "local"
)

// AnalyzerFactory creates page analyzers
type AnalyzerFactory interface {
	CreateAnalyzer(analyzerType AnalyzerType) (analyzer.PageAnalyzer, error)
}

// StorageFactory creates page sources
type StorageFactory interface {
	CreatePageRepository(enabled ...StorageType) (repository.PageRepository, error)
}

// analyzerFactory implements AnalyzerFactory
type analyzerFactory struct {
	template layout.Template
}

// NewAnalyzerFactory creates a new analyzer factory for one sheet layout
func NewAnalyzerFactory(template layout.Template) AnalyzerFactory {
	return &analyzerFactory{template: template}
}

// CreateAnalyzer creates an analyzer based on the specified type
func (f *analyzerFactory) CreateAnalyzer(analyzerType AnalyzerType) (analyzer.PageAnalyzer, error) {
	switch analyzerType {
	case StandardAnalyzer:
		return analyzer.NewPageAnalyzer(f.template, analyzer.DefaultOptions())
	case FastAnalyzer:
		return analyzer.NewPageAnalyzer(f.template, analyzer.FastOptions())
	default:
		return nil, fmt.Errorf("unsupported analyzer type: %s", analyzerType)
	}
}

// storageFactory implements StorageFactory
type storageFactory struct {
	cfg *config.Config
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config) StorageFactory {
	return &storageFactory{cfg: cfg}
}

// CreatePageRepository wires the requested page sources into one repository.
// Sources not listed stay disabled and their URLs are rejected.
func (f *storageFactory) CreatePageRepository(enabled ...StorageType) (repository.PageRepository, error) {
	var (
		fetcher storage.PageFetcher
		blobs   storage.BlobStorage
		files   *storage.FileStorage
		err     error
	)
	for _, t := range enabled {
		switch t {
		case HTTPStorage:
			fetcher = storage.NewHTTPPageFetcher(
				storage.WithRetry(f.cfg.FetchAttempts, storage.DefaultBackoff),
				storage.WithTimeout(f.cfg.PageFetchTimeout),
			)
		case AzureStorage:
			blobs, err = f.azure()
			if err != nil {
				return nil, err
			}
		case LocalStorage:
			files = storage.NewFileStorage(f.cfg.PageRoot)
		default:
			return nil, fmt.Errorf("unsupported storage type: %s", t)
		}
	}
	return repository.NewPageRepository(fetcher, blobs, files), nil
}

func (f *storageFactory) azure() (storage.BlobStorage, error) {
	switch {
	case f.cfg.AzureConnectionString != "":
		return storage.NewAzureStorageFromConnectionString(f.cfg.AzureConnectionString)
	case f.cfg.AzureAccount != "" && f.cfg.AzureAccountKey != "":
		return storage.NewAzureStorage(f.cfg.AzureAccount, f.cfg.AzureAccountKey)
	default:
		return nil, fmt.Errorf("azure storage requires a connection string or account credentials")
	}
}

// NewResolverFactory returns a constructor that builds fresh identification
// collaborators for every batch
func NewResolverFactory(cfg *config.Config, template layout.Template) func(roster []models.RosterEntry) *identify.Resolver {
	opts := identify.DefaultOptions()
	opts.Timeout = cfg.IdentifyTimeout
	opts.MinOCRConfidence = cfg.MinOCRConfidence

	return func(roster []models.RosterEntry) *identify.Resolver {
		var engine ocr.Engine
		if cfg.OCREnabled {
			engine = ocr.NewTesseractEngine(ocr.Config{
				Language:  cfg.OCRLanguage,
				Whitelist: ocr.DefaultConfig().Whitelist,
			})
		}
		logger.WithField("roster_size", len(roster)).Debug("Creating identification resolver")
		return identify.NewResolver(decoder.NewQRDecoder(true), engine, roster, template, opts)
	}
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	AnalyzerFactory AnalyzerFactory
	StorageFactory  StorageFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config, template layout.Template) *ComponentFactory {
	return &ComponentFactory{
		AnalyzerFactory: NewAnalyzerFactory(template),
		StorageFactory:  NewStorageFactory(cfg),
	}
}
