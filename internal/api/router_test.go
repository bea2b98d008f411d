package api_test

import (
	"database/sql/driver"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CytrexSGR/newsbrief/internal/api"
	"github.com/CytrexSGR/newsbrief/internal/config"
	"github.com/CytrexSGR/newsbrief/internal/database"
	"github.com/CytrexSGR/newsbrief/internal/dispatch"
	"github.com/CytrexSGR/newsbrief/internal/logger"
	"github.com/CytrexSGR/newsbrief/internal/metrics"
)

func newTestRouter(t *testing.T) (*api.Router, sqlmock.Sqlmock) {
	t.Helper()
	rawDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { rawDB.Close() })

	db := sqlx.NewDb(rawDB, "postgres")
	m := metrics.NewMetrics(prometheus.NewRegistry())

	content := database.NewContentRepository(db)
	channels := database.NewChannelRepository(db)
	deliveries := database.NewDeliveryRepository(db)

	cfg := &config.Config{}
	cfg.Generation.MaxRetries = 3
	cfg.Generation.RecentContentWindow = 12 * time.Hour

	router := api.NewRouter(api.Deps{
		DB:         db,
		Templates:  database.NewTemplateRepository(db),
		Channels:   channels,
		Content:    content,
		Jobs:       database.NewJobRepository(db),
		Deliveries: deliveries,
		Engine: dispatch.NewEngine(content, channels, deliveries, 3,
			m, logger.NewNopLogger()),
		Tracker: dispatch.NewTracker(deliveries, m),
		Metrics: m,
		Config:  cfg,
		Logger:  logger.NewNopLogger(),
	})
	return router, mock
}

func doRequest(router *api.Router, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.Engine().ServeHTTP(rec, req)
	return rec
}

func templateColumns() []string {
	return []string{"id", "name", "description", "target_audience", "selection_criteria",
		"content_structure", "llm_model", "llm_temperature", "llm_prompt",
		"generation_schedule", "is_active", "version", "tags", "created_at", "updated_at"}
}

func templateRow(id uuid.UUID) []driver.Value {
	now := time.Now().UTC()
	return []driver.Value{id.String(), "daily briefing", "", "", []byte(`{"keywords":["ai"]}`),
		[]byte(`{}`), "gpt-4o-mini", 0.7, "summarize", nil, true, 1, []byte(`{}`), now, now}
}

func TestGetTemplate(t *testing.T) {
	router, mock := newTestRouter(t)

	id := uuid.New()
	mock.ExpectQuery(`FROM templates WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(templateColumns()).AddRow(templateRow(id)...))

	rec := doRequest(router, http.MethodGet, "/api/v1/templates/"+id.String(), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "daily briefing")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTemplateNotFound(t *testing.T) {
	router, mock := newTestRouter(t)

	id := uuid.New()
	mock.ExpectQuery(`FROM templates WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(templateColumns()))

	rec := doRequest(router, http.MethodGet, "/api/v1/templates/"+id.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTemplateInvalidID(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/v1/templates/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid template ID format")
}

func TestCreateTemplateRejectsInvalidCriteria(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{
		"name": "bad",
		"llm_prompt": "summarize",
		"selection_criteria": {"keywords": ["ai"], "min_impact_score": 1.5, "category_names": ["tech"]}
	}`
	rec := doRequest(router, http.MethodPost, "/api/v1/templates", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "min_impact_score must be between 0.0 and 1.0")
	assert.Contains(t, rec.Body.String(), "category_names filter is not supported")
}

func TestTriggerGenerationQueued(t *testing.T) {
	router, mock := newTestRouter(t)

	id := uuid.New()
	jobID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM templates WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(templateColumns()).AddRow(templateRow(id)...))
	mock.ExpectQuery("INSERT INTO generation_jobs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "template_id", "status", "worker_id",
			"content_id", "error_message", "retry_count", "max_retries", "cancel_requested",
			"triggered_by", "created_at", "started_at", "completed_at"}).
			AddRow(jobID.String(), id.String(), "pending", nil, nil, nil, 0, 3, false,
				"api", now, nil, nil))

	rec := doRequest(router, http.MethodPost,
		"/api/v1/templates/"+id.String()+"/generate", `{"force_regenerate": false}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "queued")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchContentNoActiveChannels(t *testing.T) {
	router, mock := newTestRouter(t)

	contentID := uuid.New()
	templateID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM generated_content WHERE id = \$1`).
		WithArgs(contentID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "template_id", "title", "body",
			"output_format", "source_article_ids", "article_count", "word_count", "cost_usd",
			"generation_seconds", "model_used", "status", "error_message", "generated_at",
			"published_at"}).
			AddRow(contentID.String(), templateID.String(), "Briefing", "body", "markdown",
				[]byte("{101}"), 1, 20, 0.001, 1.0, "gpt-4o-mini", "generated", nil, now, nil))
	mock.ExpectQuery(`FROM channels WHERE template_id = \$1`).
		WithArgs(templateID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "template_id", "channel_type", "name",
			"config", "is_active", "created_at", "last_used_at"}))

	rec := doRequest(router, http.MethodPost,
		"/api/v1/content/"+contentID.String()+"/dispatch", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no active channels")
}

func TestUpdateContentStatusIllegalTransition(t *testing.T) {
	router, mock := newTestRouter(t)

	contentID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM generated_content WHERE id = \$1`).
		WithArgs(contentID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "template_id", "title", "body",
			"output_format", "source_article_ids", "article_count", "word_count", "cost_usd",
			"generation_seconds", "model_used", "status", "error_message", "generated_at",
			"published_at"}).
			AddRow(contentID.String(), uuid.NewString(), "Briefing", "body", "markdown",
				[]byte("{101}"), 1, 20, 0.001, 1.0, "gpt-4o-mini", "archived", nil, now, nil))

	rec := doRequest(router, http.MethodPut,
		"/api/v1/content/"+contentID.String()+"/status", `{"status": "published"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordOpen(t *testing.T) {
	router, mock := newTestRouter(t)

	id := uuid.New()
	mock.ExpectExec("UPDATE delivery_logs").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := doRequest(router, http.MethodPost,
		"/api/v1/deliveries/"+id.String()+"/opens", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListChannelsRequiresTemplateID(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/v1/channels", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "template_id query parameter is required")
}

func TestListJobsRejectsUnknownTrigger(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/v1/jobs?triggered_by=webhook", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unrecognized trigger source")
}

func TestCancelFinishedJobConflict(t *testing.T) {
	router, mock := newTestRouter(t)

	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE generation_jobs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM generation_jobs").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "template_id", "status", "worker_id",
			"content_id", "error_message", "retry_count", "max_retries", "cancel_requested",
			"triggered_by", "created_at", "started_at", "completed_at"}).
			AddRow(id.String(), uuid.NewString(), "completed", nil, nil, nil, 0, 3, false,
				"api", now, nil, now))

	rec := doRequest(router, http.MethodPost, "/api/v1/jobs/"+id.String()+"/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}
