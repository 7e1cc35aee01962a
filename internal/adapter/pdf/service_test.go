package pdf

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
	"github.com/fairyhunter13/ai-deep-researcher/internal/domain/mocks"
	"github.com/fairyhunter13/ai-deep-researcher/internal/observability"
)

// fakeStream plays back chunks, then either ends with final (io.EOF by
// default) or, when ctx is set, blocks until the stream context dies the
// way a stalled upstream would.
type fakeStream struct {
	chunks []string
	final  error
	ctx    context.Context

	idx    int
	closed bool
}

func (f *fakeStream) Recv() (string, error) {
	if f.idx < len(f.chunks) {
		c := f.chunks[f.idx]
		f.idx++
		return c, nil
	}
	if f.ctx != nil {
		<-f.ctx.Done()
		return "", f.ctx.Err()
	}
	if f.final != nil {
		return "", f.final
	}
	return "", io.EOF
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

func sessionContext() domain.Context {
	return observability.ContextWithSession(context.Background(), observability.Session{
		UserID:    "u-1",
		SessionID: "sess-1",
	})
}

func TestExtractCompleteStream(t *testing.T) {
	ai := &mocks.MockAIClient{}
	jobs := &mocks.MockPdfJobRepository{}
	st := &fakeStream{chunks: []string{"Hello ", "world."}}

	ai.On("ChatStream", mock.Anything, mock.MatchedBy(func(req domain.ChatRequest) bool {
		return req.Model == "extract-m" &&
			len(req.Messages) == 2 &&
			req.Messages[1].Content == "https://example.com/paper.pdf"
	})).Return(st, nil).Once()

	s := &Service{AI: ai, Model: "extract-m", Jobs: jobs}
	doc, outcome, err := s.Extract(sessionContext(), "https://example.com/paper.pdf", "BBR Paper")

	require.NoError(t, err)
	assert.Equal(t, domain.PdfComplete, outcome)
	require.NotNil(t, doc)
	assert.Equal(t, "Title: BBR Paper\n\nHello world.", doc.PageContent)
	assert.Equal(t, "application/pdf", doc.Metadata.ContentType)
	assert.True(t, doc.Metadata.IsPDF)
	assert.False(t, doc.Metadata.PartialPDFContent)
	assert.Equal(t, "stream", doc.Metadata.ExtractionMethod)
	assert.Empty(t, doc.Metadata.PdfJobID)
	assert.True(t, st.closed)
	jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	ai.AssertExpectations(t)
}

func TestExtractPartialTimeoutKeepsTextAndEnqueues(t *testing.T) {
	ai := &mocks.MockAIClient{}
	jobs := &mocks.MockPdfJobRepository{}
	st := &fakeStream{chunks: []string{"This is the first page of the document text."}}

	ai.On("ChatStream", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			// Block Recv on the stream's own deadline once chunks run out.
			st.ctx = args.Get(0).(domain.Context)
		}).
		Return(st, nil).Once()
	jobs.On("Create", mock.Anything, mock.MatchedBy(func(j domain.PdfJob) bool {
		return j.SessionID == "sess-1" &&
			j.SourceURL == "https://example.com/paper.pdf" &&
			j.Status == domain.JobQueued &&
			j.Reason == domain.PdfReasonPrimaryTimeout &&
			j.PartialTextAvailable
	})).Return("job-1", nil).Once()

	s := &Service{AI: ai, Model: "m", Jobs: jobs, PrimaryTimeout: 60 * time.Millisecond, MinPartialChars: 10}
	doc, outcome, err := s.Extract(sessionContext(), "https://example.com/paper.pdf", "Paper")

	require.NoError(t, err)
	assert.Equal(t, domain.PdfPartialTimeout, outcome)
	require.NotNil(t, doc)
	assert.True(t, strings.HasPrefix(doc.PageContent, "Title: Paper\n\n[Partial PDF content - extraction timed out after"))
	assert.Contains(t, doc.PageContent, "This is the first page of the document text.")
	assert.True(t, doc.Metadata.PartialPDFContent)
	assert.Equal(t, "job-1", doc.Metadata.PdfJobID)
	jobs.AssertExpectations(t)
}

func TestExtractTimeoutWithoutUsableTextQueuesFallback(t *testing.T) {
	ai := &mocks.MockAIClient{}
	jobs := &mocks.MockPdfJobRepository{}
	st := &fakeStream{chunks: []string{"tiny"}}

	ai.On("ChatStream", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { st.ctx = args.Get(0).(domain.Context) }).
		Return(st, nil).Once()
	jobs.On("Create", mock.Anything, mock.MatchedBy(func(j domain.PdfJob) bool {
		return j.Reason == domain.PdfReasonPrimaryTimeout && !j.PartialTextAvailable
	})).Return("job-2", nil).Once()

	s := &Service{AI: ai, Model: "m", Jobs: jobs, PrimaryTimeout: 60 * time.Millisecond, MinPartialChars: 10}
	doc, outcome, err := s.Extract(sessionContext(), "https://example.com/paper.pdf", "Paper")

	require.NoError(t, err)
	assert.Equal(t, domain.PdfQueuedFallback, outcome)
	assert.Nil(t, doc)
	jobs.AssertExpectations(t)
}

func TestExtractStreamErrorEnqueuesFailedJob(t *testing.T) {
	ai := &mocks.MockAIClient{}
	jobs := &mocks.MockPdfJobRepository{}
	st := &fakeStream{
		chunks: []string{"partial body text here"},
		final:  errors.New("connection reset by peer"),
	}

	ai.On("ChatStream", mock.Anything, mock.Anything).Return(st, nil).Once()
	jobs.On("Create", mock.Anything, mock.MatchedBy(func(j domain.PdfJob) bool {
		return j.Reason == domain.PdfReasonPrimaryFailed && j.PartialTextAvailable
	})).Return("job-3", nil).Once()

	s := &Service{AI: ai, Model: "m", Jobs: jobs, MinPartialChars: 10}
	doc, outcome, err := s.Extract(sessionContext(), "https://example.com/paper.pdf", "Paper")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.Equal(t, domain.PdfFailed, outcome)
	assert.Nil(t, doc)
	jobs.AssertExpectations(t)
}

func TestExtractEmptyStreamTreatedAsFailure(t *testing.T) {
	ai := &mocks.MockAIClient{}
	jobs := &mocks.MockPdfJobRepository{}

	ai.On("ChatStream", mock.Anything, mock.Anything).Return(&fakeStream{}, nil).Once()
	jobs.On("Create", mock.Anything, mock.MatchedBy(func(j domain.PdfJob) bool {
		return j.Reason == domain.PdfReasonPrimaryFailed && !j.PartialTextAvailable
	})).Return("job-4", nil).Once()

	s := &Service{AI: ai, Model: "m", Jobs: jobs}
	doc, outcome, err := s.Extract(sessionContext(), "https://example.com/paper.pdf", "Paper")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text")
	assert.Equal(t, domain.PdfFailed, outcome)
	assert.Nil(t, doc)
	jobs.AssertExpectations(t)
}

func TestExtractCallerCancellationSkipsEnqueue(t *testing.T) {
	ai := &mocks.MockAIClient{}
	jobs := &mocks.MockPdfJobRepository{}
	st := &fakeStream{}

	ai.On("ChatStream", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { st.ctx = args.Get(0).(domain.Context) }).
		Return(st, nil).Once()

	ctx, cancel := context.WithCancel(sessionContext())
	cancel()

	s := &Service{AI: ai, Model: "m", Jobs: jobs}
	doc, outcome, err := s.Extract(ctx, "https://example.com/paper.pdf", "Paper")

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.PdfFailed, outcome)
	assert.Nil(t, doc)
	// The caller owns its deadline; no background job on its behalf.
	jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestExtractWithoutSessionSkipsEnqueue(t *testing.T) {
	ai := &mocks.MockAIClient{}
	jobs := &mocks.MockPdfJobRepository{}
	st := &fakeStream{chunks: []string{"tiny"}}

	ai.On("ChatStream", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { st.ctx = args.Get(0).(domain.Context) }).
		Return(st, nil).Once()

	s := &Service{AI: ai, Model: "m", Jobs: jobs, PrimaryTimeout: 60 * time.Millisecond}
	doc, outcome, err := s.Extract(context.Background(), "https://example.com/paper.pdf", "Paper")

	require.NoError(t, err)
	assert.Equal(t, domain.PdfQueuedFallback, outcome)
	assert.Nil(t, doc)
	jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestMergeChunk(t *testing.T) {
	cases := []struct {
		name  string
		acc   string
		chunk string
		want  string
	}{
		{"empty accumulator", "", "abc", "abc"},
		{"empty chunk", "abc", "", "abc"},
		{"chunk restates everything", "abc", "abcdef", "abcdef"},
		{"chunk repeats the tail", "abcdef", "def", "abcdef"},
		{"plain append", "abc", "xyz", "abcxyz"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, mergeChunk(tc.acc, tc.chunk))
		})
	}
}

func TestTitleFromURL(t *testing.T) {
	assert.Equal(t, "paper.pdf", titleFromURL("https://example.com/docs/paper.pdf"))
	assert.Equal(t, "https://example.com", titleFromURL("https://example.com"))
	assert.Equal(t, "https://example.com/", titleFromURL("https://example.com/"))
}
