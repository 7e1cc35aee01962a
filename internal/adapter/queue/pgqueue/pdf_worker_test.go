package pgqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
	"github.com/fairyhunter13/ai-deep-researcher/internal/domain/mocks"
)

func pdfBackoff() domain.BackoffPolicy {
	return domain.BackoffPolicy{Initial: 15 * time.Second, Max: 300 * time.Second, MaxRetries: 3}
}

func pdfJob(attempts int) domain.PdfJob {
	return domain.PdfJob{
		ID:        "pdf-1",
		SessionID: "sess-1",
		SourceURL: "https://example.com/paper.pdf",
		Title:     "Example Paper",
		Attempts:  attempts,
		Reason:    domain.PdfReasonScrapeTimeout,
	}
}

func TestPdfWorker_Execute_Success(t *testing.T) {
	jobs := mocks.NewMockPdfJobRepository(t)
	pdf := mocks.NewMockPDFService(t)
	vec := mocks.NewMockVectorStore(t)
	w := &PdfWorker{Jobs: jobs, PDF: pdf, Vector: vec, WorkerID: "worker-a", Backoff: pdfBackoff()}

	doc := &domain.Document{
		PageContent: "full pdf text",
		Metadata:    domain.DocumentMetadata{Source: "https://example.com/paper.pdf", IsPDF: true},
	}
	pdf.On("ExtractInMemory", mock.Anything, "https://example.com/paper.pdf", "Example Paper").
		Return(doc, 7, nil).Once()
	vec.On("ReplaceBySource", mock.Anything, "sess-1", *doc).Return(nil).Once()
	jobs.On("Complete", mock.Anything, "pdf-1", len("full pdf text"), 7).Return(nil).Once()

	w.execute(context.Background(), pdfJob(0))
}

func TestPdfWorker_Execute_EmptyTextRequeues(t *testing.T) {
	jobs := mocks.NewMockPdfJobRepository(t)
	pdf := mocks.NewMockPDFService(t)
	vec := mocks.NewMockVectorStore(t)
	w := &PdfWorker{Jobs: jobs, PDF: pdf, Vector: vec, WorkerID: "worker-a", Backoff: pdfBackoff()}

	pdf.On("ExtractInMemory", mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.Document{}, 0, nil).Once()
	jobs.On("Requeue", mock.Anything, "pdf-1", mock.Anything, 15*time.Second).Return(nil).Once()

	w.execute(context.Background(), pdfJob(0))
}

func TestPdfWorker_Execute_VectorFailureRequeues(t *testing.T) {
	jobs := mocks.NewMockPdfJobRepository(t)
	pdf := mocks.NewMockPDFService(t)
	vec := mocks.NewMockVectorStore(t)
	w := &PdfWorker{Jobs: jobs, PDF: pdf, Vector: vec, WorkerID: "worker-a", Backoff: pdfBackoff()}

	doc := &domain.Document{PageContent: "text"}
	pdf.On("ExtractInMemory", mock.Anything, mock.Anything, mock.Anything).Return(doc, 2, nil).Once()
	vec.On("ReplaceBySource", mock.Anything, "sess-1", *doc).Return(errors.New("qdrant down")).Once()
	// Second recorded attempt doubles the delay.
	jobs.On("Requeue", mock.Anything, "pdf-1", mock.Anything, 30*time.Second).Return(nil).Once()

	w.execute(context.Background(), pdfJob(1))
}

func TestPdfWorker_HandleFailure_Exhausted(t *testing.T) {
	jobs := mocks.NewMockPdfJobRepository(t)
	w := &PdfWorker{Jobs: jobs, Backoff: pdfBackoff()}

	jobs.On("Fail", mock.Anything, "pdf-1", mock.Anything).Return(nil).Once()

	w.handleFailure(context.Background(), pdfJob(2), errors.New("not a pdf"))
}

func TestPdfWorker_Tick_RespectsCapacity(t *testing.T) {
	jobs := mocks.NewMockPdfJobRepository(t)
	pdf := mocks.NewMockPDFService(t)
	vec := mocks.NewMockVectorStore(t)
	w := &PdfWorker{
		Jobs: jobs, PDF: pdf, Vector: vec,
		WorkerID: "worker-a", BatchSize: 1, Lease: time.Minute, Backoff: pdfBackoff(),
	}

	jobs.On("ListClaimable", mock.Anything, 3).Return([]domain.PdfJob{pdfJob(0)}, nil).Once()
	jobs.On("Claim", mock.Anything, "pdf-1", "worker-a", time.Minute).
		Return(pdfJob(0), true, nil).Once()
	doc := &domain.Document{PageContent: "text"}
	pdf.On("ExtractInMemory", mock.Anything, mock.Anything, mock.Anything).Return(doc, 1, nil).Once()
	vec.On("ReplaceBySource", mock.Anything, "sess-1", *doc).Return(nil).Once()
	jobs.On("Complete", mock.Anything, "pdf-1", 4, 1).Return(nil).Once()

	sem := make(chan struct{}, w.BatchSize)
	var wg sync.WaitGroup
	w.tick(context.Background(), sem, &wg)
	wg.Wait()

	// Saturated semaphore: the next tick must not even list.
	sem <- struct{}{}
	w.tick(context.Background(), sem, &wg)
	wg.Wait()
}
