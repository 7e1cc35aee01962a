package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrBrowserClosed     = errors.New("browser context closed")
	ErrNotPDF            = errors.New("not a pdf")
	ErrLeaseLost         = errors.New("job lease lost")
	ErrInternal          = errors.New("internal error")
)

//go:generate mockery --name=ResearchJobRepository --with-expecter --filename=research_job_repository_mock.go
//go:generate mockery --name=PdfJobRepository --with-expecter --filename=pdf_job_repository_mock.go
//go:generate mockery --name=SessionStore --with-expecter --filename=session_store_mock.go
//go:generate mockery --name=AIClient --with-expecter --filename=aiclient_mock.go
//go:generate mockery --name=VectorStore --with-expecter --filename=vector_store_mock.go
//go:generate mockery --name=WebSearchAPI --with-expecter --filename=web_search_api_mock.go
//go:generate mockery --name=Scraper --with-expecter --filename=scraper_mock.go
//go:generate mockery --name=PDFService --with-expecter --filename=pdf_service_mock.go

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// StageTag names a node of the research DAG, plus the synthetic
// queued/preparing/completed/failed markers used for progress reporting.
type StageTag string

const (
	StageQueued       StageTag = "queued"
	StagePreparing    StageTag = "preparing"
	StageOutline      StageTag = "generate_document_outline"
	StagePerspectives StageTag = "generate_perspectives"
	StageContent      StageTag = "generate_content_for_perspectives"
	StageFusion       StageTag = "final_section_generation"
	StageCompleted    StageTag = "completed"
	StageFailed       StageTag = "failed"
)

// StageOrder is the fixed linear order of the pipeline DAG.
var StageOrder = []StageTag{StageOutline, StagePerspectives, StageContent, StageFusion}

// NextStage returns the stage after s in StageOrder, or "" when s is the
// last stage or not a pipeline stage.
func NextStage(s StageTag) StageTag {
	for i, t := range StageOrder {
		if t == s && i+1 < len(StageOrder) {
			return StageOrder[i+1]
		}
	}
	return ""
}

// ProgressMessage maps a stage tag to its user-visible progress line.
func ProgressMessage(s StageTag) string {
	switch s {
	case StageQueued:
		return "Research queued. Waiting to start."
	case StagePreparing:
		return "Preparing your research workflow."
	case StageOutline:
		return "Analyzing your request, gathering context, and drafting an outline."
	case StagePerspectives:
		return "Ensuring all important angles of your idea are covered."
	case StageContent:
		return "Performing deep, well-rounded research to collect information."
	case StageFusion:
		return "Writing your final research document."
	case StageCompleted:
		return "Research completed."
	case StageFailed:
		return "Research could not be completed."
	}
	return ""
}

// Request enums. Validation happens at the API edge; the constants here are
// the single source of truth for budget lookups.

type ModelTier string

const (
	TierMini ModelTier = "mini"
	TierPro  ModelTier = "pro"
)

type Breadth string

type Depth string

type DocumentLength string

const (
	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"
)

// ExpertCount maps breadth to the number of expert perspectives.
func (b Breadth) ExpertCount() int {
	switch string(b) {
	case LevelMedium:
		return 3
	case LevelHigh:
		return 5
	default:
		return 1
	}
}

// MinDocumentsBeforeStop maps depth to the web_search early-stop threshold.
func (d Depth) MinDocumentsBeforeStop() int {
	switch string(d) {
	case LevelMedium:
		return 2
	case LevelHigh:
		return 4
	default:
		return 1
	}
}

// ResearchRequest is the immutable request submap captured at enqueue time.
type ResearchRequest struct {
	ResearchIdea   string         `json:"research_idea"`
	ModelTier      ModelTier      `json:"model_tier"`
	Breadth        Breadth        `json:"breadth"`
	Depth          Depth          `json:"depth"`
	DocumentLength DocumentLength `json:"document_length"`
}

// ResearchJob is the durable record of one research run.
// Invariants: running implies WorkerID and StartedAt set; completed implies
// ResultText set, WorkerID nil and ResumeFromNode nil; failed implies Error
// set; Attempts never decreases; the claim predicate is
// status=queued AND next_run_at <= now.
type ResearchJob struct {
	ID              string
	UserID          string
	SessionID       string
	Status          JobStatus
	CurrentNode     StageTag
	ProgressMessage string
	ResumeFromNode  *StageTag
	Attempts        int
	WorkerID        *string
	LeaseExpiresAt  *time.Time
	Error           *string
	ResultText      *string
	GraphState      map[string]any
	Request         ResearchRequest
	IdemKey         *string
	NextRunAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	FailedAt        *time.Time
}

// PdfJob is the durable record of one background PDF extraction.
type PdfJob struct {
	ID                   string
	SessionID            string
	SourceURL            string
	Title                string
	Status               JobStatus
	Attempts             int
	Reason               string
	PartialTextAvailable bool
	LastError            *string
	WorkerID             *string
	LeaseExpiresAt       *time.Time
	ResultCharacters     *int
	ResultPageCount      *int
	NextRunAt            time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PdfEnqueueReason tags why a background PDF job exists.
const (
	PdfReasonPrimaryTimeout = "primary_timeout"
	PdfReasonPrimaryFailed  = "primary_failed"
	PdfReasonScrapeTimeout  = "scrape_timeout"
)

// ActiveTaskTypeResearch is the only task type the tracker stores today.
const ActiveTaskTypeResearch = "research"

// ActiveTask is the single-slot per-session reference to the one in-flight
// research job. It must stay coherent with the underlying job record; all
// mutations are conditional on the stored task id.
type ActiveTask struct {
	TaskID          string
	Type            string
	Status          JobStatus
	CurrentNode     StageTag
	ProgressMessage string
	UpdatedAt       time.Time
}

// SessionMessage is one entry of a session transcript. The research worker
// appends exactly one assistant message per completed job; everything else
// about the transcript belongs to the chat frontend.
type SessionMessage struct {
	ID        string
	UserID    string
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

// Repositories (ports)

type ResearchJobRepository interface {
	Create(ctx Context, j ResearchJob) (string, error)
	Get(ctx Context, id string) (ResearchJob, error)
	FindByIdempotencyKey(ctx Context, key string) (ResearchJob, error)
	// ListClaimable returns up to limit queued jobs whose next_run_at has
	// passed, oldest first. Callers must still Claim each candidate.
	ListClaimable(ctx Context, limit int) ([]ResearchJob, error)
	// Claim atomically transitions one queued job to running for workerID,
	// setting the lease deadline and pre-run progress. ok=false reports a
	// lost race, never an error.
	Claim(ctx Context, id, workerID string, lease time.Duration) (ResearchJob, bool, error)
	ExtendLease(ctx Context, id, workerID string, lease time.Duration) error
	UpdateProgress(ctx Context, id string, node StageTag, message string) error
	// SaveCheckpoint writes graph_state and resume_from_node in one statement.
	SaveCheckpoint(ctx Context, id string, graphState map[string]any, resumeFrom *StageTag) error
	Complete(ctx Context, id, resultText string) error
	Fail(ctx Context, id, errMsg string) error
	// Requeue re-queues a failed attempt: attempts+1, next_run_at=now+delay,
	// worker cleared, error recorded.
	Requeue(ctx Context, id, errMsg string, delay time.Duration) error
	// ActiveForSession returns the session's job in {queued, running},
	// preferring running then most recently updated; ErrNotFound when none.
	ActiveForSession(ctx Context, sessionID string) (ResearchJob, error)
	// ListExpiredLeases returns running jobs whose lease deadline passed.
	ListExpiredLeases(ctx Context, cutoff time.Time, limit int) ([]ResearchJob, error)
}

type PdfJobRepository interface {
	Create(ctx Context, j PdfJob) (string, error)
	Get(ctx Context, id string) (PdfJob, error)
	ListClaimable(ctx Context, limit int) ([]PdfJob, error)
	Claim(ctx Context, id, workerID string, lease time.Duration) (PdfJob, bool, error)
	Complete(ctx Context, id string, characters, pageCount int) error
	Fail(ctx Context, id, errMsg string) error
	Requeue(ctx Context, id, errMsg string, delay time.Duration) error
}

// SessionStore (port). Conditional updates guard against clobbering a newer
// job queued in the same session.
type SessionStore interface {
	SetActiveTask(ctx Context, userID, sessionID string, task ActiveTask) error
	GetActiveTask(ctx Context, sessionID string) (ActiveTask, error)
	UpdateActiveTaskStatusIfMatches(ctx Context, sessionID, taskID string, status JobStatus, node StageTag, message string) error
	ClearActiveTaskIfMatches(ctx Context, sessionID, taskID string) error
	AppendMessage(ctx Context, m SessionMessage) (string, error)
	ListMessages(ctx Context, sessionID string, limit int) ([]SessionMessage, error)
}

// Context is an alias to allow decoupling from std context in domain
// signatures; adapters and usecases pass context.Context straight through.
type Context = context.Context
