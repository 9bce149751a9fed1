package runs

import (
	"database/sql"
	"encoding/json"
	"net/url"

	"github.com/tariffdesk/tariffdesk/internal/classify"
	"github.com/tariffdesk/tariffdesk/pkg/query"
	"github.com/tariffdesk/tariffdesk/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "runs", "r").
	Project("id", "ID").
	Project("user_id", "UserID").
	Project("kind", "Kind").
	Project("status", "Status").
	Project("remote_id", "RemoteID").
	Project("file_name", "FileName").
	Project("file_key", "FileKey").
	Project("total_items", "TotalItems").
	Project("progress_current", "ProgressCurrent").
	Project("progress_total", "ProgressTotal").
	Project("summary", "Summary").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for run queries.
// Nil fields are ignored.
type Filters struct {
	UserID *string             `json:"user_id,omitempty"`
	Kind   *Kind               `json:"kind,omitempty"`
	Status *classify.RunStatus `json:"status,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("UserID", f.UserID).
		WhereEquals("Kind", f.Kind).
		WhereEquals("Status", f.Status)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if u := values.Get("user_id"); u != "" {
		f.UserID = &u
	}

	if k := values.Get("kind"); k != "" {
		kind := Kind(k)
		f.Kind = &kind
	}

	if s := values.Get("status"); s != "" {
		status := classify.RunStatus(s)
		f.Status = &status
	}

	return f
}

func scanRun(s repository.Scanner) (Run, error) {
	var (
		r        Run
		remoteID sql.NullString
		fileName sql.NullString
		fileKey  sql.NullString
		summary  []byte
	)

	err := s.Scan(
		&r.ID,
		&r.UserID,
		&r.Kind,
		&r.Status,
		&remoteID,
		&fileName,
		&fileKey,
		&r.TotalItems,
		&r.ProgressCurrent,
		&r.ProgressTotal,
		&summary,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return r, err
	}

	r.RemoteID = remoteID.String
	r.FileName = fileName.String
	r.FileKey = fileKey.String

	if len(summary) > 0 {
		var rs classify.RunSummary
		if err := json.Unmarshal(summary, &rs); err != nil {
			return r, err
		}
		r.Summary = &rs
	}

	return r, nil
}
