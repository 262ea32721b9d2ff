package container

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"go-scantron-grader/internal/analyzer"
	"go-scantron-grader/internal/config"
	"go-scantron-grader/internal/factory"
	"go-scantron-grader/internal/grading"
	"go-scantron-grader/internal/layout"
	"go-scantron-grader/internal/logger"
	"go-scantron-grader/internal/observer"
	"go-scantron-grader/internal/repository"
	"go-scantron-grader/internal/service"
	"go-scantron-grader/internal/transport"
	"go-scantron-grader/pkg/services"
)

// Container holds all application dependencies
type Container struct {
	config         *config.Config
	registry       *prometheus.Registry
	pageAnalyzer   analyzer.PageAnalyzer
	store          repository.GradeStore
	metrics        *observer.MetricsObserver
	gradingService service.GradingService
	reportService  *services.ReportService
	handler        http.Handler
}

// NewContainer builds the dependency graph for cfg
func NewContainer(cfg *config.Config) (*Container, error) {
	template := layout.DefaultTemplate()
	components := factory.NewComponentFactory(cfg, template)

	pageAnalyzer, err := components.AnalyzerFactory.CreateAnalyzer(factory.StandardAnalyzer)
	if err != nil {
		return nil, fmt.Errorf("failed to create page analyzer: %w", err)
	}

	sources := []factory.StorageType{factory.HTTPStorage, factory.LocalStorage}
	if cfg.AzureEnabled() {
		sources = append(sources, factory.AzureStorage)
	}
	pages, err := components.StorageFactory.CreatePageRepository(sources...)
	if err != nil {
		return nil, fmt.Errorf("failed to create page sources: %w", err)
	}

	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observer.NewMetricsObserver(registry)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	events := observer.NewEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metrics)

	gradingService := service.NewGradingService(
		pageAnalyzer,
		factory.NewResolverFactory(cfg, template),
		grading.NewEngine(cfg.LowConfidence),
		store,
		repository.NewFileAnswerKeySource(cfg.AnswerKeyDir),
		pages,
		events,
		service.Options{Workers: cfg.Workers, Template: template},
	)
	reportService := services.NewReportService(gradingService, 0)

	handler, err := transport.NewHandler(gradingService, reportService, cfg, registry)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Container{
		config:         cfg,
		registry:       registry,
		pageAnalyzer:   pageAnalyzer,
		store:          store,
		metrics:        metrics,
		gradingService: gradingService,
		reportService:  reportService,
		handler:        handler,
	}, nil
}

func newStore(cfg *config.Config) (repository.GradeStore, error) {
	switch cfg.StoreType {
	case config.StoreSQLite:
		store, err := repository.NewSQLiteGradeStore(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open grade store: %w", err)
		}
		return store, nil
	default:
		return repository.NewMemoryGradeStore(), nil
	}
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// GradingService returns the batch driver
func (c *Container) GradingService() service.GradingService {
	return c.gradingService
}

// ReportService returns the report builder
func (c *Container) ReportService() *services.ReportService {
	return c.reportService
}

// Metrics returns the in-process grading counters
func (c *Container) Metrics() map[string]interface{} {
	return c.metrics.GetMetrics()
}

// Close releases the store and the analyzer caches
func (c *Container) Close() error {
	return errors.Join(c.pageAnalyzer.Close(), c.store.Close())
}
