package query_test

import (
	"strings"
	"testing"
	"time"

	"github.com/rhinocodelab/idms-v3/pkg/query"
)

func testProjection() *query.ProjectionMap {
	return query.NewProjectionMap("public", "queue_items", "q").
		Project("id", "ID").
		Project("workflow_id", "WorkflowID").
		Project("file_name", "FileName").
		Project("status", "Status").
		Project("discovered_at", "DiscoveredAt")
}

func ptr[T any](v T) *T { return &v }

func TestProjectionMapTable(t *testing.T) {
	p := testProjection()
	if got, want := p.Table(), "public.queue_items q"; got != want {
		t.Errorf("Table() = %q, want %q", got, want)
	}
	if got := p.Alias(); got != "q" {
		t.Errorf("Alias() = %q, want q", got)
	}
}

func TestProjectionMapColumns(t *testing.T) {
	p := testProjection()
	want := "q.id, q.workflow_id, q.file_name, q.status, q.discovered_at"
	if got := p.Columns(); got != want {
		t.Errorf("Columns() = %q, want %q", got, want)
	}
	if got, ok := p.Column("Status"); !ok || got != "q.status" {
		t.Errorf("Column(Status) = %q, %v, want q.status", got, ok)
	}
	if got, ok := p.Column("q.status"); ok {
		t.Errorf("Column(q.status) = %q, want unresolved", got)
	}
}

func TestProjectionMapHidden(t *testing.T) {
	p := testProjection().Hidden("deleted", "Deleted")
	if got, ok := p.Column("Deleted"); !ok || got != "q.deleted" {
		t.Errorf("Column(Deleted) = %q, %v, want q.deleted", got, ok)
	}
	if strings.Contains(p.Columns(), "deleted") {
		t.Errorf("hidden column selected: %s", p.Columns())
	}
}

func TestBuilderDropsUnknownSortFields(t *testing.T) {
	tests := []struct {
		name string
		sort string
		want string
	}{
		{"subquery", "(SELECT pg_sleep(10))", " ORDER BY q.discovered_at ASC LIMIT 20 OFFSET 0"},
		{"raw column", "-q.status", " ORDER BY q.discovered_at ASC LIMIT 20 OFFSET 0"},
		{"mixed", "FileName,1;DROP TABLE queue_items", " ORDER BY q.file_name ASC LIMIT 20 OFFSET 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, _ := query.NewBuilder(testProjection(), query.SortField{Field: "DiscoveredAt"}).
				OrderByFields(query.ParseSortFields(tt.sort)).
				BuildPage(1, 20)
			if !strings.HasSuffix(sql, tt.want) {
				t.Errorf("sql = %q, want suffix %q", sql, tt.want)
			}
		})
	}
}

func TestBuilderPanicsOnUnmappedFilter(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unmapped filter field")
		}
	}()
	query.NewBuilder(testProjection()).WhereEquals("q.status; --", "x")
}

func TestProjectionMapJoin(t *testing.T) {
	p := query.NewProjectionMap("public", "queue_items", "q").
		Project("id", "ID").
		Join("public", "workflows", "w", "INNER JOIN", "w.id = q.workflow_id").
		Project("name", "WorkflowName")

	if got, want := p.Columns(), "q.id, w.name"; got != want {
		t.Errorf("Columns() = %q, want %q", got, want)
	}

	want := "public.queue_items q INNER JOIN public.workflows w ON w.id = q.workflow_id"
	if got := p.From(); got != want {
		t.Errorf("From() = %q, want %q", got, want)
	}
}

func TestBuilderBuild(t *testing.T) {
	tests := []struct {
		name     string
		build    func(b *query.Builder) *query.Builder
		wantSQL  string
		wantArgs int
	}{
		{
			name:    "no conditions",
			build:   func(b *query.Builder) *query.Builder { return b },
			wantSQL: "SELECT q.id, q.workflow_id, q.file_name, q.status, q.discovered_at FROM public.queue_items q ORDER BY q.discovered_at ASC",
		},
		{
			name: "equals and contains",
			build: func(b *query.Builder) *query.Builder {
				return b.WhereEquals("Status", ptr("pending")).WhereContains("FileName", ptr("scan"))
			},
			wantSQL:  "SELECT q.id, q.workflow_id, q.file_name, q.status, q.discovered_at FROM public.queue_items q WHERE q.status = $1 AND q.file_name ILIKE $2 ORDER BY q.discovered_at ASC",
			wantArgs: 2,
		},
		{
			name: "nil filters are skipped",
			build: func(b *query.Builder) *query.Builder {
				var status *string
				return b.WhereEquals("Status", status).WhereSince("DiscoveredAt", (*time.Time)(nil))
			},
			wantSQL: "SELECT q.id, q.workflow_id, q.file_name, q.status, q.discovered_at FROM public.queue_items q ORDER BY q.discovered_at ASC",
		},
		{
			name: "since",
			build: func(b *query.Builder) *query.Builder {
				return b.WhereSince("DiscoveredAt", ptr(time.Unix(0, 0)))
			},
			wantSQL:  "SELECT q.id, q.workflow_id, q.file_name, q.status, q.discovered_at FROM public.queue_items q WHERE q.discovered_at >= $1 ORDER BY q.discovered_at ASC",
			wantArgs: 1,
		},
		{
			name: "search after equals",
			build: func(b *query.Builder) *query.Builder {
				return b.WhereEquals("Status", "pending").WhereSearch(ptr("inv"), "FileName", "Status")
			},
			wantSQL:  "SELECT q.id, q.workflow_id, q.file_name, q.status, q.discovered_at FROM public.queue_items q WHERE q.status = $1 AND (q.file_name ILIKE $2 OR q.status ILIKE $3) ORDER BY q.discovered_at ASC",
			wantArgs: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := query.NewBuilder(testProjection(), query.SortField{Field: "DiscoveredAt"})
			sql, args := tt.build(b).Build()
			if sql != tt.wantSQL {
				t.Errorf("sql =\n%s\nwant\n%s", sql, tt.wantSQL)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("args = %d, want %d", len(args), tt.wantArgs)
			}
		})
	}
}

func TestBuilderBuildPage(t *testing.T) {
	b := query.NewBuilder(testProjection(), query.SortField{Field: "DiscoveredAt", Descending: true}).
		WhereEquals("WorkflowID", "wf")

	sql, args := b.BuildPage(3, 20)
	want := "SELECT q.id, q.workflow_id, q.file_name, q.status, q.discovered_at FROM public.queue_items q WHERE q.workflow_id = $1 ORDER BY q.discovered_at DESC LIMIT 20 OFFSET 40"
	if sql != want {
		t.Errorf("sql =\n%s\nwant\n%s", sql, want)
	}
	if len(args) != 1 {
		t.Errorf("args = %d, want 1", len(args))
	}

	count, countArgs := b.BuildCount()
	wantCount := "SELECT COUNT(*) FROM public.queue_items q WHERE q.workflow_id = $1"
	if count != wantCount {
		t.Errorf("count sql = %q, want %q", count, wantCount)
	}
	if len(countArgs) != 1 {
		t.Errorf("count args = %d, want 1", len(countArgs))
	}
}

func TestBuilderBuildSingle(t *testing.T) {
	t.Run("by id", func(t *testing.T) {
		sql, args := query.NewBuilder(testProjection()).BuildSingle("ID", "abc")
		want := "SELECT q.id, q.workflow_id, q.file_name, q.status, q.discovered_at FROM public.queue_items q WHERE q.id = $1"
		if sql != want {
			t.Errorf("sql = %q, want %q", sql, want)
		}
		if len(args) != 1 || args[0] != "abc" {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("with conditions", func(t *testing.T) {
		sql, args := query.NewBuilder(testProjection()).
			WhereEquals("Status", "pending").
			BuildSingle("ID", "abc")
		want := "SELECT q.id, q.workflow_id, q.file_name, q.status, q.discovered_at FROM public.queue_items q WHERE q.id = $1 AND q.status = $2"
		if sql != want {
			t.Errorf("sql = %q, want %q", sql, want)
		}
		if len(args) != 2 || args[1] != "pending" {
			t.Errorf("args = %v", args)
		}
	})
}

func TestBuilderBuildSingleOrNull(t *testing.T) {
	sql, args := query.NewBuilder(testProjection(), query.SortField{Field: "DiscoveredAt"}).
		WhereEquals("Status", "pending").
		WhereAfter("DiscoveredAt", time.Unix(0, 0)).
		BuildSingleOrNull()

	want := "SELECT q.id, q.workflow_id, q.file_name, q.status, q.discovered_at FROM public.queue_items q WHERE q.status = $1 AND q.discovered_at > $2 ORDER BY q.discovered_at ASC LIMIT 1"
	if sql != want {
		t.Errorf("sql =\n%s\nwant\n%s", sql, want)
	}
	if len(args) != 2 {
		t.Errorf("args = %d, want 2", len(args))
	}
}

func TestParseSortFields(t *testing.T) {
	fields := query.ParseSortFields("FileName, -DiscoveredAt,")
	if len(fields) != 2 {
		t.Fatalf("len = %d, want 2", len(fields))
	}
	if fields[0].Field != "FileName" || fields[0].Descending {
		t.Errorf("fields[0] = %+v", fields[0])
	}
	if fields[1].Field != "DiscoveredAt" || !fields[1].Descending {
		t.Errorf("fields[1] = %+v", fields[1])
	}
	if query.ParseSortFields("") != nil {
		t.Error("empty input should return nil")
	}
}
