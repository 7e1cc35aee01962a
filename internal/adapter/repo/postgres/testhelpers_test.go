package postgres_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// rowStub satisfies pgx.Row with a scripted Scan.
type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

// rowsStub satisfies pgx.Rows; each element of scans backs one Next/Scan pair.
type rowsStub struct {
	scans []func(dest ...any) error
	idx   int
	err   error
}

func (r *rowsStub) Next() bool                                { return r.idx < len(r.scans) }
func (r *rowsStub) Scan(dest ...any) error                    { f := r.scans[r.idx]; r.idx++; return f(dest...) }
func (r *rowsStub) Close()                                    {}
func (r *rowsStub) Err() error                                { return r.err }
func (r *rowsStub) CommandTag() pgconn.CommandTag             { return pgconn.CommandTag{} }
func (r *rowsStub) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *rowsStub) Values() ([]any, error)                    { return nil, nil }
func (r *rowsStub) RawValues() [][]byte                       { return nil }
func (r *rowsStub) Conn() *pgx.Conn                           { return nil }

// poolStub satisfies postgres.PgxPool and records the last statement issued.
type poolStub struct {
	execTag  pgconn.CommandTag
	execErr  error
	row      pgx.Row
	rows     pgx.Rows
	queryErr error

	lastSQL  string
	lastArgs []any
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.lastSQL, p.lastArgs = sql, args
	return p.execTag, p.execErr
}

func (p *poolStub) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	p.lastSQL, p.lastArgs = sql, args
	if p.row != nil {
		return p.row
	}
	return rowStub{scan: func(...any) error { return pgx.ErrNoRows }}
}

func (p *poolStub) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.lastSQL, p.lastArgs = sql, args
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	if p.rows != nil {
		return p.rows, nil
	}
	return &rowsStub{}, nil
}

// researchRowScan fills a research_jobs row in column order with sane
// defaults; state is written verbatim into the graph_state destination.
func researchRowScan(id, status, node string, state []byte) func(dest ...any) error {
	return func(dest ...any) error {
		now := time.Now().UTC()
		*(dest[0].(*string)) = id
		*(dest[1].(*string)) = "user-1"
		*(dest[2].(*string)) = "sess-1"
		*(dest[3].(*string)) = status
		*(dest[4].(*string)) = node
		*(dest[5].(*string)) = "Researching your idea"
		*(dest[12].(*[]byte)) = state
		*(dest[13].(*string)) = "impact of microplastics on coastal fisheries"
		*(dest[14].(*string)) = "mini"
		*(dest[15].(*string)) = "medium"
		*(dest[16].(*string)) = "medium"
		*(dest[17].(*string)) = "medium"
		*(dest[19].(*time.Time)) = now
		*(dest[20].(*time.Time)) = now
		*(dest[21].(*time.Time)) = now
		return nil
	}
}

// pdfRowScan fills a pdf_jobs row in column order.
func pdfRowScan(id, status string) func(dest ...any) error {
	return func(dest ...any) error {
		now := time.Now().UTC()
		*(dest[0].(*string)) = id
		*(dest[1].(*string)) = "sess-1"
		*(dest[2].(*string)) = "https://example.com/paper.pdf"
		*(dest[3].(*string)) = "Example Paper"
		*(dest[4].(*string)) = status
		*(dest[6].(*string)) = "scrape_blocked"
		*(dest[7].(*bool)) = false
		*(dest[13].(*time.Time)) = now
		*(dest[14].(*time.Time)) = now
		*(dest[15].(*time.Time)) = now
		return nil
	}
}
