package services

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/TFMV/fedquery/pkg/errors"
	"github.com/TFMV/fedquery/pkg/generative"
	"github.com/TFMV/fedquery/pkg/models"
	"github.com/TFMV/fedquery/pkg/repositories"
	"github.com/TFMV/fedquery/pkg/repositories/local"
	"github.com/TFMV/fedquery/pkg/repositories/local/localtest"
	"github.com/TFMV/fedquery/pkg/repositories/remote"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

type coordinatorFixture struct {
	primary   *mockSource
	secondary *mockSource
	gen       *mockGenerative
	cache     *mockCache
	metrics   *recordingMetrics
	coord     *Coordinator
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()
	f := &coordinatorFixture{
		primary: &mockSource{backend: models.BackendPrimary, executeFunc: returning(rows(
			[]string{"student_id", "name", "course_id"},
			models.Row{"student_id": "S001", "name": "Alice", "course_id": "C1"},
		))},
		secondary: &mockSource{backend: models.BackendSecondary, executeFunc: returning(rows(
			[]string{"course_id", "course_name", "faculty_name"},
			models.Row{"course_id": "C1", "course_name": "Databases", "faculty_name": "Dr. Smith"},
		))},
		gen:     replying("Attendance builds study habits."),
		cache:   newMockCache(),
		metrics: &recordingMetrics{},
	}
	f.coord = f.build(f.cache)
	return f
}

func (f *coordinatorFixture) build(cache ResultCache) *Coordinator {
	sources := repositories.Registry{
		models.BackendPrimary:   f.primary,
		models.BackendSecondary: f.secondary,
	}
	synth := NewSQLSynthesizer(f.gen, SynthesizerConfig{}, nil, f.metrics)
	return NewCoordinator(CoordinatorDeps{
		Cache:      cache,
		Synth:      synth,
		Federator:  NewFederationEngine(synth, sources, nil, f.metrics),
		Generative: f.gen,
		Sources:    sources,
		Metrics:    f.metrics,
	}, CoordinatorConfig{})
}

func TestCoordinator_Answer(t *testing.T) {
	tests := []struct {
		name          string
		question      models.Question
		wantKind      models.PlanKind
		wantBackends  []models.BackendID
		wantAnswer    string
		wantFederated bool
		wantRows      int
	}{
		{
			name:         "single primary",
			question:     "Show all students",
			wantKind:     models.PlanSQLSingle,
			wantBackends: []models.BackendID{models.BackendPrimary},
			wantRows:     1,
		},
		{
			name:         "single secondary",
			question:     "show all faculty",
			wantKind:     models.PlanSQLSingle,
			wantBackends: []models.BackendID{models.BackendSecondary},
			wantRows:     1,
		},
		{
			name:          "federated",
			question:      "List students in courses taught by Dr. Smith",
			wantKind:      models.PlanFederated,
			wantBackends:  []models.BackendID{models.BackendPrimary, models.BackendSecondary},
			wantFederated: true,
			wantRows:      1,
		},
		{
			name:       "generative",
			question:   "Explain the importance of attendance",
			wantKind:   models.PlanGenerative,
			wantAnswer: "Attendance builds study habits.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCoordinatorFixture(t)

			out, cached := f.coord.Answer(context.Background(), tt.question)
			require.NotNil(t, out)
			assert.False(t, cached)
			assert.True(t, out.Success)
			assert.Equal(t, tt.wantKind, out.Kind)
			assert.Equal(t, tt.wantBackends, out.Backends)
			assert.Equal(t, tt.wantAnswer, out.Answer)
			assert.Equal(t, tt.wantFederated, out.Federated)
			assert.Len(t, out.Rows, tt.wantRows)
			assert.NotEmpty(t, out.RequestID)
			assert.Equal(t, 1, f.cache.puts)
		})
	}
}

func TestCoordinator_CacheHitSkipsBackends(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()

	first, cached := f.coord.Answer(ctx, "Show all students")
	require.False(t, cached)

	second, cached := f.coord.Answer(ctx, "Show all students")
	assert.True(t, cached)
	assert.Equal(t, first, second)
	assert.Len(t, f.primary.Calls(), 1)

	// Fingerprints are exact: a trailing space is a different question.
	_, cached = f.coord.Answer(ctx, "Show all students ")
	assert.False(t, cached)
	assert.Len(t, f.primary.Calls(), 2)

	assert.Contains(t, f.metrics.Counters(), "cache_hits_total")
	assert.Contains(t, f.metrics.Counters(), "questions_total plan=sql")
}

func TestCoordinator_FailuresAreCached(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.primary.executeFunc = func(context.Context, models.SQLStatement) (*models.ResultSet, error) {
		return nil, errors.New(errors.CodeQueryFailed, "no such table: Students")
	}
	ctx := context.Background()

	out, _ := f.coord.Answer(ctx, "Show all students")
	require.False(t, out.Success)
	require.NotNil(t, out.Error)
	assert.Equal(t, errors.CodeQueryFailed, out.Error.Code)
	assert.Equal(t, "SELECT * FROM Students;", out.SQL)

	again, cached := f.coord.Answer(ctx, "Show all students")
	assert.True(t, cached)
	assert.False(t, again.Success)
	assert.Len(t, f.primary.Calls(), 1)
}

func TestCoordinator_CacheWriteErrorIsSwallowed(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.cache.putErr = stderrors.New("disk full")

	out, cached := f.coord.Answer(context.Background(), "Show all students")
	assert.False(t, cached)
	assert.True(t, out.Success)
	assert.Equal(t, 1, f.cache.puts)
}

func TestCoordinator_NoCache(t *testing.T) {
	f := newCoordinatorFixture(t)
	coord := f.build(nil)

	for i := 0; i < 2; i++ {
		_, cached := coord.Answer(context.Background(), "Show all students")
		assert.False(t, cached)
	}
	assert.Len(t, f.primary.Calls(), 2)
}

func TestCoordinator_GenerativeFailureIsDescribed(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unconfigured", generative.ErrUnavailable, "LLM not available (generative client not configured)."},
		{"quota", stderrors.New("googleapi: Error 429: quota exceeded"), "API quota exceeded. Please wait and retry."},
		{"other", stderrors.New("boom"), "LLM Error: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCoordinatorFixture(t)
			f.gen.generateFunc = func(context.Context, string, int) (string, error) {
				return "", tt.err
			}

			out, _ := f.coord.Answer(context.Background(), "Explain the grading policy")
			assert.True(t, out.Success)
			assert.Equal(t, models.PlanGenerative, out.Kind)
			assert.Equal(t, tt.want, out.Answer)
		})
	}
}

func TestCoordinator_FederatedNoMatches(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.secondary.executeFunc = returning(rows([]string{"course_id"}))

	out, _ := f.coord.Answer(context.Background(), "List students in courses taught by Dr. Nobody")
	assert.True(t, out.Success)
	assert.True(t, out.Federated)
	assert.Equal(t, NoMatchingCoursesMessage, out.Message)
	assert.Empty(t, out.Rows)
	assert.Empty(t, f.primary.Calls())
}

func TestCoordinator_UnreachableRemoteBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	f := newCoordinatorFixture(t)
	client := remote.NewClient(remote.Config{BaseURL: baseURL}, models.BackendSecondary, zerolog.Nop())
	coord := NewCoordinator(CoordinatorDeps{
		Synth:   NewSQLSynthesizer(nil, SynthesizerConfig{}, nil, nil),
		Sources: repositories.Registry{models.BackendPrimary: f.primary, models.BackendSecondary: client},
	}, CoordinatorConfig{})

	out, cached := coord.Answer(context.Background(), "show all faculty")
	require.NotNil(t, out)
	assert.False(t, cached)
	assert.False(t, out.Success)
	require.NotNil(t, out.Error)
	assert.Equal(t, errors.CodeConnectionFailed, out.Error.Code)
	assert.Contains(t, out.Error.Message, "Cannot connect to remote backend")
	assert.Equal(t, "SELECT * FROM Faculty;", out.SQL)
}

func TestCoordinator_LocalBackends(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	sources := repositories.Registry{
		models.BackendPrimary:   local.NewSource(localtest.Open(t, localtest.StudentSchema), models.BackendPrimary, logger),
		models.BackendSecondary: local.NewSource(localtest.Open(t, localtest.CourseSchema), models.BackendSecondary, logger),
	}
	synth := NewSQLSynthesizer(nil, SynthesizerConfig{}, nil, nil)
	coord := NewCoordinator(CoordinatorDeps{
		Synth:     synth,
		Federator: NewFederationEngine(synth, sources, nil, nil),
		Sources:   sources,
	}, CoordinatorConfig{})
	ctx := context.Background()

	out, _ := coord.Answer(ctx, "Show all students")
	require.True(t, out.Success, "%+v", out.Error)
	assert.Len(t, out.Rows, 3)

	out, _ = coord.Answer(ctx, "List students in courses taught by Dr. Smith")
	require.True(t, out.Success, "%+v", out.Error)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, "S001", out.Rows[0]["student_id"])
	assert.Equal(t, "S003", out.Rows[1]["student_id"])
	assert.Equal(t, "Databases", out.Rows[0]["course_name"])
	assert.Equal(t, "Dr. Smith", out.Rows[0]["faculty_name"])

	out, _ = coord.Answer(ctx, "Students with more than 60% attendance")
	require.True(t, out.Success, "%+v", out.Error)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, "S001", out.Rows[0]["student_id"])

	out, _ = coord.Answer(ctx, "Count enrollments per semester")
	require.True(t, out.Success, "%+v", out.Error)
	assert.Equal(t, []string{"error_message"}, out.Columns)
}

func TestCoordinator_ConcurrentAnswers(t *testing.T) {
	f := newCoordinatorFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, _ := f.coord.Answer(context.Background(), "Show all students")
			assert.True(t, out.Success)
		}()
	}
	wg.Wait()
}
