package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-scantron-grader/internal/analyzer"
	apperrors "go-scantron-grader/internal/errors"
	"go-scantron-grader/internal/grading"
	"go-scantron-grader/internal/identify"
	"go-scantron-grader/internal/layout"
	"go-scantron-grader/internal/ledger"
	"go-scantron-grader/internal/logger"
	"go-scantron-grader/internal/merge"
	"go-scantron-grader/internal/observer"
	"go-scantron-grader/internal/repository"
	"go-scantron-grader/pkg/models"
)

// GradingService runs grading batches and manual resolutions against the grade store
type GradingService interface {
	// GradeBatch grades already rasterized pages and merges the result
	GradeBatch(ctx context.Context, req BatchRequest) (*BatchResult, error)

	// GradeURLs grades pages by location; each page is fetched by the
	// worker that grades it
	GradeURLs(ctx context.Context, req URLBatchRequest) (*BatchResult, error)

	// ResolvePage attributes a ledger page to a student and grades it
	ResolvePage(ctx context.Context, assignmentID string, pageNumber int, req ResolveRequest) (*models.GradeRecord, error)

	GradeBook(ctx context.Context, assignmentID string) (*models.GradeBook, error)
	Unidentified(ctx context.Context, assignmentID string) ([]models.UnidentifiedPage, error)
}

// Page is one rasterized page of a batch
type Page struct {
	Number int
	Image  image.Image
}

// BatchRequest describes one grading run
type BatchRequest struct {
	AssignmentID string
	Pages        []Page
	Roster       []models.RosterEntry
	// DefaultVersionID grades OCR-identified pages when the assignment has
	// several key versions. With a single version it is not needed.
	DefaultVersionID string
}

// URLBatchRequest is a BatchRequest whose pages still need fetching.
// Page numbers follow the order of PageURLs, starting at 1.
type URLBatchRequest struct {
	AssignmentID     string
	PageURLs         []string
	Roster           []models.RosterEntry
	DefaultVersionID string
}

// ResolveRequest names the student (and optionally the version) for a ledger
// page. BatchID is required only when the page number is pending in more
// than one batch.
type ResolveRequest struct {
	StudentID string
	VersionID string
	BatchID   string
}

// BatchResult is what one grading run produced and committed
type BatchResult struct {
	BatchID      string
	AssignmentID string
	Records      []models.GradeRecord
	Unidentified []models.UnidentifiedPage
	Book         *models.GradeBook
	Duration     time.Duration
}

// ResolverFactory builds the identification collaborators for one batch
type ResolverFactory func(roster []models.RosterEntry) *identify.Resolver

// Options tunes the batch driver
type Options struct {
	Workers  int
	Template layout.Template
}

type gradingService struct {
	analyzer    analyzer.PageAnalyzer
	newResolver ResolverFactory
	engine      *grading.Engine
	store       repository.GradeStore
	keys        repository.AnswerKeySource
	pages       repository.PageRepository
	events      observer.Subject
	opts        Options
}

// NewGradingService wires the batch driver. pages and events may be nil.
func NewGradingService(
	pageAnalyzer analyzer.PageAnalyzer,
	newResolver ResolverFactory,
	engine *grading.Engine,
	store repository.GradeStore,
	keys repository.AnswerKeySource,
	pages repository.PageRepository,
	events observer.Subject,
	opts Options,
) GradingService {
	if opts.Template.PageWidth == 0 {
		opts.Template = layout.DefaultTemplate()
	}
	if engine == nil {
		engine = grading.NewEngine(0)
	}
	return &gradingService{
		analyzer:    pageAnalyzer,
		newResolver: newResolver,
		engine:      engine,
		store:       store,
		keys:        keys,
		pages:       pages,
		events:      events,
		opts:        opts,
	}
}

// pageOutcome is the result slot for one page; exactly one of record and
// unidentified is set
type pageOutcome struct {
	record       *models.GradeRecord
	unidentified *models.UnidentifiedPage
	resolution   identify.Resolution
}

// batchRun carries the per-batch state shared by the page jobs
type batchRun struct {
	id           string
	assignmentID string
	keys         models.AnswerKeys
	defaultKey   string
	resolver     *identify.Resolver
}

// pageSource yields one page of a batch. load runs inside the page's
// worker job so only pages in flight are held in memory.
type pageSource struct {
	number int
	load   func(ctx context.Context) (image.Image, error)
}

func (s *gradingService) GradeURLs(ctx context.Context, req URLBatchRequest) (*BatchResult, error) {
	if s.pages == nil {
		return nil, apperrors.NewConfigError("no page repository configured", nil)
	}
	if len(req.PageURLs) == 0 {
		return nil, apperrors.NewValidationError("at least one page is required", nil)
	}
	for _, u := range req.PageURLs {
		if err := s.pages.ValidatePageURL(u); err != nil {
			return nil, apperrors.NewValidationError(fmt.Sprintf("invalid page URL %q", u), err)
		}
	}

	sources := make([]pageSource, len(req.PageURLs))
	for i, u := range req.PageURLs {
		number, pageURL := i+1, u
		sources[i] = pageSource{number: number, load: func(ctx context.Context) (image.Image, error) {
			img, err := s.pages.FetchPage(ctx, pageURL)
			if err == nil {
				return img, nil
			}
			if ctx.Err() != nil {
				return nil, apperrors.NewTimeoutError("batch cancelled while fetching pages", ctx.Err())
			}
			s.publish(ctx, observer.GradingEvent{
				EventType:    observer.PageFetchFailed,
				AssignmentID: req.AssignmentID,
				PageNumber:   number,
				ErrorMessage: err.Error(),
			})
			return nil, apperrors.NewNetworkError(fmt.Sprintf("failed to fetch page %d", number), err)
		}}
	}

	return s.run(ctx, req.AssignmentID, req.Roster, req.DefaultVersionID, sources)
}

func (s *gradingService) GradeBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	sources := make([]pageSource, len(req.Pages))
	for i, p := range req.Pages {
		if err := s.checkImage(p.Number, p.Image); err != nil {
			return nil, err
		}
		img := p.Image
		sources[i] = pageSource{number: p.Number, load: func(context.Context) (image.Image, error) {
			return img, nil
		}}
	}
	return s.run(ctx, req.AssignmentID, req.Roster, req.DefaultVersionID, sources)
}

func (s *gradingService) run(ctx context.Context, assignmentID string, roster []models.RosterEntry, requestedVersion string, sources []pageSource) (*BatchResult, error) {
	start := time.Now()
	if err := validateBatch(assignmentID, sources); err != nil {
		return nil, err
	}

	run := &batchRun{id: uuid.NewString(), assignmentID: assignmentID}
	log := logger.WithFields(logrus.Fields{"assignment_id": assignmentID, "batch_id": run.id})

	var err error
	run.keys, err = s.loadKeys(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	run.defaultKey = defaultVersion(run.keys, requestedVersion)
	run.resolver = s.newResolver(roster)

	s.publish(ctx, observer.GradingEvent{
		EventType:    observer.BatchStarted,
		AssignmentID: assignmentID,
		BatchID:      run.id,
		Metadata:     map[string]interface{}{"pages": len(sources)},
	})
	fail := func(err error) (*BatchResult, error) {
		s.publish(ctx, observer.GradingEvent{
			EventType:    observer.BatchFailed,
			AssignmentID: assignmentID,
			BatchID:      run.id,
			Duration:     time.Since(start),
			ErrorMessage: err.Error(),
		})
		return nil, err
	}

	outcomes, err := s.processPages(ctx, run, sources)
	if err != nil {
		return fail(err)
	}

	batch := merge.Batch{}
	for _, o := range outcomes {
		switch {
		case o.record != nil:
			batch.Records = append(batch.Records, *o.record)
		case o.unidentified != nil:
			batch.Unidentified = append(batch.Unidentified, *o.unidentified)
		}
	}
	if len(batch.Records)+len(batch.Unidentified) != len(sources) {
		return fail(apperrors.NewInternalError(fmt.Sprintf(
			"batch produced %d records and %d unidentified pages for %d input pages",
			len(batch.Records), len(batch.Unidentified), len(sources)), nil))
	}
	if err := ctx.Err(); err != nil {
		return fail(apperrors.NewTimeoutError("batch cancelled before merge", err))
	}

	book, err := s.store.Update(ctx, assignmentID, func(current *models.GradeBook) (*models.GradeBook, error) {
		return merge.Merge(current, batch), nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to commit grading batch")
		return fail(apperrors.NewStoreError("failed to save grade book", err))
	}

	result := &BatchResult{
		BatchID:      run.id,
		AssignmentID: assignmentID,
		Records:      batch.Records,
		Unidentified: batch.Unidentified,
		Book:         book,
		Duration:     time.Since(start),
	}
	s.publish(ctx, observer.GradingEvent{
		EventType:    observer.BatchCompleted,
		AssignmentID: assignmentID,
		BatchID:      run.id,
		Duration:     result.Duration,
		Success:      true,
		Metadata: map[string]interface{}{
			"records":      len(result.Records),
			"unidentified": len(result.Unidentified),
			"revision":     book.Revision,
		},
	})
	return result, nil
}

// validateBatch checks the request shape before any page is loaded
func validateBatch(assignmentID string, sources []pageSource) error {
	if assignmentID == "" {
		return apperrors.NewValidationError("assignment id is required", nil)
	}
	if len(sources) == 0 {
		return apperrors.NewValidationError("at least one page is required", nil)
	}

	seen := make(map[int]bool, len(sources))
	for _, src := range sources {
		if src.number < 1 {
			return apperrors.NewValidationError(fmt.Sprintf("page number %d must be positive", src.number), nil)
		}
		if seen[src.number] {
			return apperrors.NewValidationError(fmt.Sprintf("duplicate page number %d", src.number), nil)
		}
		seen[src.number] = true
	}
	return nil
}

// checkImage rejects images the sheet layout cannot be projected onto. It
// only looks at the bounds; the gray copy is made inside the page job.
func (s *gradingService) checkImage(number int, img image.Image) error {
	if img == nil || img.Bounds().Empty() {
		return apperrors.NewValidationError(fmt.Sprintf("page %d is not a usable image", number), layout.ErrEmptyImage)
	}
	b := img.Bounds()
	if _, err := layout.NewGeometry(s.opts.Template, b.Dx(), b.Dy()); err != nil {
		return apperrors.NewConfigError(fmt.Sprintf("page %d cannot be mapped onto the sheet layout", number), err)
	}
	return nil
}

func (s *gradingService) loadKeys(ctx context.Context, assignmentID string) (models.AnswerKeys, error) {
	keys, err := s.keys.Versions(ctx, assignmentID)
	if errors.Is(err, repository.ErrAnswerKeyNotFound) {
		logger.WithField("assignment_id", assignmentID).Warn("No answer keys for assignment; identified pages go to the ledger")
		return models.AnswerKeys{}, nil
	}
	if err != nil {
		return nil, apperrors.NewConfigError("failed to load answer keys", err)
	}
	return keys, nil
}

// processPages runs every page on a bounded pool. Results land in a slot per
// input index so completion order never matters. The first page error
// cancels the pages still queued.
func (s *gradingService) processPages(ctx context.Context, run *batchRun, sources []pageSource) ([]pageOutcome, error) {
	outcomes := make([]pageOutcome, len(sources))

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		once     sync.Once
		firstErr error
	)
	abort := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	pool := analyzer.NewWorkerPool(s.opts.Workers)
	pool.Start()
	for i := range sources {
		i := i
		submitted := pool.Submit(func() {
			if jobCtx.Err() != nil {
				return
			}
			outcome, err := s.processPage(jobCtx, run, sources[i])
			if err != nil {
				abort(err)
				return
			}
			outcomes[i] = outcome
		})
		if !submitted {
			abort(fmt.Errorf("page %d was not scheduled", sources[i].number))
		}
	}
	pool.Wait()
	pool.Close()

	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewTimeoutError("batch cancelled", err)
	}
	if firstErr != nil {
		var appErr *apperrors.AppError
		if errors.As(firstErr, &appErr) {
			return nil, firstErr
		}
		return nil, apperrors.NewProcessingError("page processing failed", firstErr)
	}
	return outcomes, nil
}

func (s *gradingService) processPage(ctx context.Context, run *batchRun, src pageSource) (pageOutcome, error) {
	img, err := src.load(ctx)
	if err != nil {
		return pageOutcome{}, err
	}
	if err := s.checkImage(src.number, img); err != nil {
		return pageOutcome{}, err
	}
	page, err := analyzer.NewPageImage(src.number, img)
	if err != nil {
		return pageOutcome{}, err
	}

	prepared, err := s.analyzer.Prepare(page)
	if err != nil {
		return pageOutcome{}, err
	}

	// identification and bubble reading only share the read-only upright image
	var resolution identify.Resolution
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		resolution = run.resolver.Resolve(ctx, page.Number, prepared.Gray, prepared.Geometry)
	}()
	readings := s.analyzer.ReadBubbles(prepared, s.opts.Template.MaxQuestions)
	wg.Wait()

	outcome := s.gradePage(run, prepared, resolution, readings)
	outcome.resolution = resolution
	s.publishOutcome(ctx, run, page.Number, outcome)
	return outcome, nil
}

func (s *gradingService) gradePage(run *batchRun, page *analyzer.PreparedPage, res identify.Resolution, readings []models.BubbleReading) pageOutcome {
	if !res.Identified() {
		reason := models.ReasonUnidentified
		if res.OCRName != nil && len(res.Candidates) > 0 {
			reason = models.ReasonAmbiguousName
		}
		return s.divert(run, page, res, readings, reason, "")
	}

	var identity models.Identity
	versionID := run.defaultKey
	if res.Identity != nil {
		identity = *res.Identity
		versionID = identity.VersionID
		if identity.AssignmentID != run.assignmentID {
			return s.divert(run, page, res, readings, models.ReasonAssignmentMismatch, versionID)
		}
	} else {
		identity = models.Identity{
			AssignmentID:  run.assignmentID,
			StudentID:     res.StudentID,
			VersionID:     versionID,
			SchemaVersion: identify.SupportedSchemaVersion,
		}
	}

	key, ok := run.keys[versionID]
	if !ok || versionID == "" {
		return s.divert(run, page, res, readings, models.ReasonMissingAnswerKey, versionID)
	}

	count := identity.QuestionCount
	if count <= 0 {
		count = maxQuestion(key)
		identity.QuestionCount = count
	}
	record := s.engine.Grade(grading.Submission{
		StudentID:  res.StudentID,
		Identity:   identity,
		Source:     res.Source,
		Readings:   grading.TrimReadings(readings, count),
		Key:        key,
		PageNumber: page.Number,
		BatchID:    run.id,
		Flags:      page.Flags(),
	})
	return pageOutcome{record: &record}
}

// divert turns a page that cannot be graded automatically into a ledger entry
func (s *gradingService) divert(run *batchRun, page *analyzer.PreparedPage, res identify.Resolution, readings []models.BubbleReading, reason models.UnresolvedReason, versionID string) pageOutcome {
	entry := models.UnidentifiedPage{
		PageNumber:      page.Number,
		Classification:  s.analyzer.Classify(page, readings),
		Reason:          reason,
		Readings:        readings,
		OCRStudentName:  res.OCRName,
		OCRConfidence:   res.OCRConfidence,
		Candidates:      res.Candidates,
		VersionID:       versionID,
		DecodedIdentity: res.Identity,
		Flags:           page.Flags(),
		BatchID:         run.id,
		CreatedAt:       time.Now().UTC(),
	}
	return pageOutcome{unidentified: &entry}
}

func (s *gradingService) ResolvePage(ctx context.Context, assignmentID string, pageNumber int, req ResolveRequest) (*models.GradeRecord, error) {
	if req.StudentID == "" {
		return nil, apperrors.NewValidationError("student id is required", nil)
	}
	keys, err := s.loadKeys(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	var record models.GradeRecord
	_, err = s.store.Update(ctx, assignmentID, func(book *models.GradeBook) (*models.GradeBook, error) {
		l := ledger.New(s.engine, book.Unidentified)
		page, err := l.Get(pageNumber, req.BatchID)
		switch {
		case errors.Is(err, ledger.ErrAmbiguousPage):
			return nil, apperrors.NewConflictError(fmt.Sprintf("page %d is pending in several batches of %s; pass a batch id", pageNumber, assignmentID), err)
		case err != nil:
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("page %d is not pending in %s", pageNumber, assignmentID), err)
		}

		versionID := req.VersionID
		if versionID == "" {
			versionID = page.VersionID
		}
		if versionID == "" {
			versionID = defaultVersion(keys, "")
		}
		key, ok := keys[versionID]
		if !ok {
			return nil, apperrors.NewConflictError(fmt.Sprintf("no answer key for version %q; pass a version id", versionID), repository.ErrAnswerKeyNotFound)
		}

		record, err = l.Resolve(pageNumber, ledger.Assignment{
			StudentID:    req.StudentID,
			AssignmentID: assignmentID,
			VersionID:    versionID,
			Key:          key,
			BatchID:      page.BatchID,
		})
		if err != nil {
			return nil, apperrors.NewValidationError("failed to resolve page", err)
		}

		book.Unidentified = l.List()
		return merge.Merge(book, merge.Batch{Records: []models.GradeRecord{record}}), nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.NewStoreError("failed to save grade book", err)
	}

	s.publish(ctx, observer.GradingEvent{
		EventType:    observer.PageResolved,
		AssignmentID: assignmentID,
		PageNumber:   pageNumber,
		Success:      true,
		BatchID:      record.BatchID,
		Metadata:     map[string]interface{}{"student_id": record.StudentID},
	})
	return &record, nil
}

func (s *gradingService) GradeBook(ctx context.Context, assignmentID string) (*models.GradeBook, error) {
	book, err := s.store.Load(ctx, assignmentID)
	if err != nil {
		return nil, apperrors.NewStoreError("failed to load grade book", err)
	}
	return book, nil
}

func (s *gradingService) Unidentified(ctx context.Context, assignmentID string) ([]models.UnidentifiedPage, error) {
	book, err := s.GradeBook(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	return book.Unidentified, nil
}

func (s *gradingService) publish(ctx context.Context, event observer.GradingEvent) {
	if s.events != nil {
		s.events.NotifyObservers(ctx, event)
	}
}

func (s *gradingService) publishOutcome(ctx context.Context, run *batchRun, pageNumber int, o pageOutcome) {
	event := observer.GradingEvent{AssignmentID: run.assignmentID, BatchID: run.id, PageNumber: pageNumber, Success: true}
	if o.record != nil {
		event.EventType = observer.PageGraded
		event.Metadata = map[string]interface{}{
			"student_id":   o.record.StudentID,
			"source":       o.record.Source,
			"percentage":   o.record.Percentage,
			"needs_review": o.record.NeedsReview,
		}
	} else {
		event.EventType = observer.PageUnidentified
		event.Metadata = map[string]interface{}{
			"reason":         o.unidentified.Reason,
			"classification": o.unidentified.Classification,
		}
	}
	if o.resolution.Variant != "" {
		event.Metadata[observer.MetaDecodeVariant] = o.resolution.Variant
	}
	if o.resolution.OCRConfidence > 0 {
		event.Metadata[observer.MetaOCRConfidence] = o.resolution.OCRConfidence
	}
	s.publish(ctx, event)
}

// defaultVersion picks the requested version, or the only version when there is just one
func defaultVersion(keys models.AnswerKeys, requested string) string {
	if requested != "" {
		return requested
	}
	if len(keys) != 1 {
		return ""
	}
	for v := range keys {
		return v
	}
	return ""
}

func maxQuestion(key []models.AnswerKeyEntry) int {
	n := 0
	for _, e := range key {
		n = max(n, e.QuestionNumber)
	}
	return n
}
