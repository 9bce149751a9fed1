package query_test

import (
	"testing"

	"github.com/tariffdesk/tariffdesk/pkg/query"
)

func testProjection() *query.ProjectionMap {
	return query.NewProjectionMap("public", "runs", "r").
		Project("id", "id").
		Project("user_id", "userId").
		Project("created_at", "createdAt")
}

func ptr(s string) *string { return &s }

func TestProjectionMapFrom(t *testing.T) {
	p := testProjection()
	got := p.From()
	want := "public.runs r"
	if got != want {
		t.Errorf("From() = %q, want %q", got, want)
	}
}

func TestProjectionMapAlias(t *testing.T) {
	p := testProjection()
	if got := p.Alias(); got != "r" {
		t.Errorf("Alias() = %q, want %q", got, "r")
	}
}

func TestProjectionMapColumns(t *testing.T) {
	p := testProjection()
	got := p.Columns()
	want := "r.id, r.user_id, r.created_at"
	if got != want {
		t.Errorf("Columns() = %q, want %q", got, want)
	}
}

func TestProjectionMapColumnLookup(t *testing.T) {
	p := testProjection()

	tests := []struct {
		name     string
		viewName string
		want     string
	}{
		{"mapped field", "userId", "r.user_id"},
		{"mapped camel", "createdAt", "r.created_at"},
		{"unmapped passthrough", "unknown", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Column(tt.viewName); got != tt.want {
				t.Errorf("Column(%q) = %q, want %q", tt.viewName, got, tt.want)
			}
		})
	}
}

func TestParseSortFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []query.SortField
	}{
		{
			name:  "empty string",
			input: "",
			want:  nil,
		},
		{
			name:  "single ascending",
			input: "userId",
			want:  []query.SortField{{Field: "userId", Descending: false}},
		},
		{
			name:  "single descending",
			input: "-createdAt",
			want:  []query.SortField{{Field: "createdAt", Descending: true}},
		},
		{
			name:  "multiple mixed",
			input: "userId,-createdAt",
			want: []query.SortField{
				{Field: "userId", Descending: false},
				{Field: "createdAt", Descending: true},
			},
		},
		{
			name:  "with spaces",
			input: " userId , -createdAt ",
			want: []query.SortField{
				{Field: "userId", Descending: false},
				{Field: "createdAt", Descending: true},
			},
		},
		{
			name:  "empty parts skipped",
			input: "userId,,createdAt",
			want: []query.SortField{
				{Field: "userId", Descending: false},
				{Field: "createdAt", Descending: false},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := query.ParseSortFields(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseSortFields(%q) length = %d, want %d", tt.input, len(got), len(tt.want))
			}
			for i, field := range got {
				if field != tt.want[i] {
					t.Errorf("ParseSortFields(%q)[%d] = %+v, want %+v", tt.input, i, field, tt.want[i])
				}
			}
		})
	}
}

func TestBuilderBuild(t *testing.T) {
	b := query.NewBuilder(testProjection())
	sql, args := b.Build()

	want := "SELECT r.id, r.user_id, r.created_at FROM public.runs r"
	if sql != want {
		t.Errorf("Build() = %q, want %q", sql, want)
	}
	if len(args) != 0 {
		t.Errorf("Build() args = %v, want none", args)
	}
}

func TestBuilderBuildWithDefaultSort(t *testing.T) {
	b := query.NewBuilder(testProjection(), query.SortField{Field: "createdAt", Descending: true})
	sql, _ := b.Build()

	want := "SELECT r.id, r.user_id, r.created_at FROM public.runs r ORDER BY r.created_at DESC"
	if sql != want {
		t.Errorf("Build() = %q, want %q", sql, want)
	}
}

func TestBuilderOrderByOverridesDefault(t *testing.T) {
	b := query.NewBuilder(testProjection(), query.SortField{Field: "createdAt", Descending: true})
	b.OrderByFields([]query.SortField{{Field: "userId"}})
	sql, _ := b.Build()

	want := "SELECT r.id, r.user_id, r.created_at FROM public.runs r ORDER BY r.user_id ASC"
	if sql != want {
		t.Errorf("Build() = %q, want %q", sql, want)
	}
}

func TestBuilderBuildCount(t *testing.T) {
	b := query.NewBuilder(testProjection())
	b.WhereEquals("userId", "analyst-1")
	sql, args := b.BuildCount()

	want := "SELECT COUNT(*) FROM public.runs r WHERE r.user_id = $1"
	if sql != want {
		t.Errorf("BuildCount() = %q, want %q", sql, want)
	}
	if len(args) != 1 || args[0] != "analyst-1" {
		t.Errorf("BuildCount() args = %v, want [analyst-1]", args)
	}
}

func TestBuilderBuildPage(t *testing.T) {
	b := query.NewBuilder(testProjection(), query.SortField{Field: "createdAt", Descending: true})
	sql, _ := b.BuildPage(3, 25)

	want := "SELECT r.id, r.user_id, r.created_at FROM public.runs r ORDER BY r.created_at DESC LIMIT 25 OFFSET 50"
	if sql != want {
		t.Errorf("BuildPage() = %q, want %q", sql, want)
	}
}

func TestBuilderBuildSingle(t *testing.T) {
	b := query.NewBuilder(testProjection())
	sql, args := b.BuildSingle("id", "abc")

	want := "SELECT r.id, r.user_id, r.created_at FROM public.runs r WHERE r.id = $1"
	if sql != want {
		t.Errorf("BuildSingle() = %q, want %q", sql, want)
	}
	if len(args) != 1 || args[0] != "abc" {
		t.Errorf("BuildSingle() args = %v, want [abc]", args)
	}
}

func TestBuilderParameterNumbering(t *testing.T) {
	b := query.NewBuilder(testProjection())
	b.WhereEquals("userId", "analyst-1")
	b.WhereContains("id", ptr("bulk"))
	sql, args := b.Build()

	want := "SELECT r.id, r.user_id, r.created_at FROM public.runs r WHERE r.user_id = $1 AND r.id ILIKE $2"
	if sql != want {
		t.Errorf("Build() = %q, want %q", sql, want)
	}
	if len(args) != 2 {
		t.Fatalf("args length = %d, want 2", len(args))
	}
	if args[1] != "%bulk%" {
		t.Errorf("args[1] = %v, want %%bulk%%", args[1])
	}
}

func TestBuilderWhereIn(t *testing.T) {
	b := query.NewBuilder(testProjection())
	b.WhereIn("userId", []any{"a", "b", "c"})
	sql, args := b.Build()

	want := "SELECT r.id, r.user_id, r.created_at FROM public.runs r WHERE r.user_id IN ($1, $2, $3)"
	if sql != want {
		t.Errorf("Build() = %q, want %q", sql, want)
	}
	if len(args) != 3 {
		t.Errorf("args length = %d, want 3", len(args))
	}
}

func TestBuilderWhereSearch(t *testing.T) {
	b := query.NewBuilder(testProjection())
	b.WhereSearch(ptr("watch"), "userId", "id")
	sql, args := b.Build()

	want := "SELECT r.id, r.user_id, r.created_at FROM public.runs r WHERE (r.user_id ILIKE $1 OR r.id ILIKE $2)"
	if sql != want {
		t.Errorf("Build() = %q, want %q", sql, want)
	}
	if len(args) != 2 || args[0] != "%watch%" {
		t.Errorf("args = %v", args)
	}
}

func TestBuilderNoOpConditions(t *testing.T) {
	b := query.NewBuilder(testProjection())
	b.WhereEquals("userId", nil)
	b.WhereContains("id", nil)
	b.WhereContains("id", ptr(""))
	b.WhereIn("userId", nil)
	b.WhereSearch(nil, "userId")
	sql, args := b.Build()

	want := "SELECT r.id, r.user_id, r.created_at FROM public.runs r"
	if sql != want {
		t.Errorf("Build() = %q, want %q", sql, want)
	}
	if len(args) != 0 {
		t.Errorf("args = %v, want none", args)
	}
}
