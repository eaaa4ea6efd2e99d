package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ResultKind tells the shape of a Result.
type ResultKind string

const (
	ResultArtifact ResultKind = "artifact"
	ResultRows     ResultKind = "rows"
	ResultAffected ResultKind = "affected"
	ResultBatch    ResultKind = "batch"
)

// Result is what an engine operation hands back. Callers treat it
// polymorphically; the concrete types below carry the data.
type Result interface {
	Kind() ResultKind
	String() string
}

// Statement is one rendered SQL statement with its bound arguments, in
// placeholder order.
type Statement struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

// QueryArtifact is the output of parsing a script.
type QueryArtifact struct {
	Script     string      `json:"script"`
	Dialect    Dialect     `json:"dialect"`
	Statements []Statement `json:"statements"`
}

func (a *QueryArtifact) Kind() ResultKind { return ResultArtifact }

func (a *QueryArtifact) String() string {
	var sb strings.Builder
	for i, st := range a.Statements {
		if i > 0 {
			sb.WriteString(";\n")
		}
		sb.WriteString(st.SQL)
		if len(st.Args) > 0 {
			sb.WriteString("\n  -- params: ")
			sb.WriteString(formatArgs(st.Args))
		}
	}
	return sb.String()
}

func formatArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case nil:
			parts[i] = "NULL"
		case string:
			parts[i] = fmt.Sprintf("%q", v)
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Row maps column names to normalised values.
type Row map[string]any

func (r Row) String() string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, r[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Rows is the result of a read statement.
type Rows struct {
	Columns []string `json:"columns"`
	Data    []Row    `json:"rows"`
}

func (r *Rows) Kind() ResultKind { return ResultRows }

func (r *Rows) String() string {
	var sb strings.Builder
	sb.WriteString(strings.Join(r.Columns, "\t"))
	for _, row := range r.Data {
		sb.WriteByte('\n')
		for i, c := range r.Columns {
			if i > 0 {
				sb.WriteByte('\t')
			}
			fmt.Fprint(&sb, row[c])
		}
	}
	return sb.String()
}

// Affected is the row count reported by a write statement.
type Affected int64

func (a Affected) Kind() ResultKind { return ResultAffected }
func (a Affected) String() string   { return fmt.Sprintf("%d row(s) affected", int64(a)) }

// Batch holds the ordered results of a multi-statement script, run in one
// transaction.
type Batch struct {
	Results []Result `json:"results"`
}

func (b *Batch) Kind() ResultKind { return ResultBatch }

func (b *Batch) String() string {
	parts := make([]string, len(b.Results))
	for i, r := range b.Results {
		parts[i] = fmt.Sprintf("[%d] %s", i+1, r.String())
	}
	return strings.Join(parts, "\n")
}

// RunRecord is one harness invocation as kept in the run history.
type RunRecord struct {
	ID         string    `json:"id"`
	Script     string    `json:"script"`
	Mode       string    `json:"mode"`
	Dialect    Dialect   `json:"dialect"`
	ResultKind string    `json:"resultKind"`
	Summary    string    `json:"summary"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMs int       `json:"durationMs"`
	ErrorKind  string    `json:"errorKind"`
	Error      string    `json:"error"`
	Host       string    `json:"host"`
}

// RunRecordStore persists run records.
type RunRecordStore interface {
	RecordRun(r *RunRecord) error
	ListRuns(limit int) ([]RunRecord, error)
}
