package dispatch_test

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CytrexSGR/newsbrief/internal/database"
	"github.com/CytrexSGR/newsbrief/internal/dispatch"
	"github.com/CytrexSGR/newsbrief/internal/domain"
	"github.com/CytrexSGR/newsbrief/internal/logger"
	"github.com/CytrexSGR/newsbrief/internal/metrics"
)

func newEngine(t *testing.T) (*dispatch.Engine, sqlmock.Sqlmock) {
	t.Helper()
	rawDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { rawDB.Close() })

	db := sqlx.NewDb(rawDB, "postgres")
	engine := dispatch.NewEngine(
		database.NewContentRepository(db),
		database.NewChannelRepository(db),
		database.NewDeliveryRepository(db),
		3,
		metrics.NewMetrics(prometheus.NewRegistry()),
		logger.NewNopLogger(),
	)
	return engine, mock
}

type driverValue = driver.Value

func contentColumns() []string {
	return []string{"id", "template_id", "title", "body", "output_format", "source_article_ids",
		"article_count", "word_count", "cost_usd", "generation_seconds", "model_used",
		"status", "error_message", "generated_at", "published_at"}
}

func contentRow(id, templateID uuid.UUID, status string) []driverValue {
	now := time.Now().UTC()
	return []driverValue{id.String(), templateID.String(), "Briefing", "body", "markdown",
		[]byte("{101,102}"), 2, 40, 0.001, 1.5, "gpt-4o-mini", status, nil, now, nil}
}

func channelColumns() []string {
	return []string{"id", "template_id", "channel_type", "name", "config", "is_active",
		"created_at", "last_used_at"}
}

func channelRow(id, templateID uuid.UUID, channelType, name string) []driverValue {
	return []driverValue{id.String(), templateID.String(), channelType, name,
		[]byte(`{}`), true, time.Now().UTC(), nil}
}

func deliveryColumns() []string {
	return []string{"id", "content_id", "channel_id", "status", "retry_count", "max_retries",
		"recipient_count", "error_message", "tracking_enabled", "open_count",
		"click_count", "created_at", "sent_at", "next_retry_at", "updated_at"}
}

func deliveryRow(id, contentID, channelID uuid.UUID, status string) []driverValue {
	now := time.Now().UTC()
	return []driverValue{id.String(), contentID.String(), channelID.String(), status, 0, 3,
		nil, nil, true, 0, 0, now, nil, nil, now}
}

func TestEngineDispatchToActiveChannels(t *testing.T) {
	engine, mock := newEngine(t)

	contentID := uuid.New()
	templateID := uuid.New()
	webChannel := uuid.New()
	apiChannel := uuid.New()

	mock.ExpectQuery(`FROM generated_content WHERE id = \$1`).
		WithArgs(contentID).
		WillReturnRows(sqlmock.NewRows(contentColumns()).
			AddRow(contentRow(contentID, templateID, "generated")...))

	mock.ExpectQuery(`FROM channels WHERE template_id = \$1`).
		WithArgs(templateID).
		WillReturnRows(sqlmock.NewRows(channelColumns()).
			AddRow(channelRow(webChannel, templateID, "web", "site")...).
			AddRow(channelRow(apiChannel, templateID, "api", "partner")...))

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO delivery_logs`).
		WillReturnRows(sqlmock.NewRows(deliveryColumns()).
			AddRow(deliveryRow(uuid.New(), contentID, webChannel, "pending")...))
	mock.ExpectExec(`UPDATE channels SET last_used_at`).
		WithArgs(webChannel).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO delivery_logs`).
		WillReturnRows(sqlmock.NewRows(deliveryColumns()).
			AddRow(deliveryRow(uuid.New(), contentID, apiChannel, "pending")...))
	mock.ExpectExec(`UPDATE channels SET last_used_at`).
		WithArgs(apiChannel).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	summaries, err := engine.Dispatch(context.Background(), contentID, nil)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, domain.ChannelTypeWeb, summaries[0].ChannelType)
	assert.Equal(t, "partner", summaries[1].ChannelName)
	assert.Equal(t, domain.DeliveryStatusPending, summaries[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngineDispatchFailedContentRejected(t *testing.T) {
	engine, mock := newEngine(t)

	contentID := uuid.New()
	mock.ExpectQuery(`FROM generated_content WHERE id = \$1`).
		WithArgs(contentID).
		WillReturnRows(sqlmock.NewRows(contentColumns()).
			AddRow(contentRow(contentID, uuid.New(), "failed")...))

	_, err := engine.Dispatch(context.Background(), contentID, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngineDispatchNoActiveChannels(t *testing.T) {
	engine, mock := newEngine(t)

	contentID := uuid.New()
	templateID := uuid.New()

	mock.ExpectQuery(`FROM generated_content WHERE id = \$1`).
		WithArgs(contentID).
		WillReturnRows(sqlmock.NewRows(contentColumns()).
			AddRow(contentRow(contentID, templateID, "generated")...))
	mock.ExpectQuery(`FROM channels WHERE template_id = \$1`).
		WithArgs(templateID).
		WillReturnRows(sqlmock.NewRows(channelColumns()))

	_, err := engine.Dispatch(context.Background(), contentID, nil)
	assert.ErrorIs(t, err, domain.ErrNoActiveChannels)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngineDispatchExplicitSubsetKeepsActiveChannels(t *testing.T) {
	engine, mock := newEngine(t)

	contentID := uuid.New()
	templateID := uuid.New()
	activeChannel := uuid.New()
	inactiveChannel := uuid.New()

	mock.ExpectQuery(`FROM generated_content WHERE id = \$1`).
		WithArgs(contentID).
		WillReturnRows(sqlmock.NewRows(contentColumns()).
			AddRow(contentRow(contentID, templateID, "generated")...))
	// The inactive channel never comes back from the active-only lookup.
	mock.ExpectQuery(`FROM channels WHERE id IN`).
		WillReturnRows(sqlmock.NewRows(channelColumns()).
			AddRow(channelRow(activeChannel, templateID, "web", "site")...))

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO delivery_logs`).
		WillReturnRows(sqlmock.NewRows(deliveryColumns()).
			AddRow(deliveryRow(uuid.New(), contentID, activeChannel, "pending")...))
	mock.ExpectExec(`UPDATE channels SET last_used_at`).
		WithArgs(activeChannel).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	summaries, err := engine.Dispatch(context.Background(), contentID,
		[]uuid.UUID{activeChannel, inactiveChannel})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, activeChannel, summaries[0].ChannelID)
	assert.Equal(t, domain.DeliveryStatusPending, summaries[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngineDispatchExplicitChannelWrongTemplateDropped(t *testing.T) {
	engine, mock := newEngine(t)

	contentID := uuid.New()
	templateID := uuid.New()
	otherTemplate := uuid.New()
	channelID := uuid.New()

	mock.ExpectQuery(`FROM generated_content WHERE id = \$1`).
		WithArgs(contentID).
		WillReturnRows(sqlmock.NewRows(contentColumns()).
			AddRow(contentRow(contentID, templateID, "generated")...))
	mock.ExpectQuery(`FROM channels WHERE id IN`).
		WillReturnRows(sqlmock.NewRows(channelColumns()).
			AddRow(channelRow(channelID, otherTemplate, "web", "site")...))

	_, err := engine.Dispatch(context.Background(), contentID, []uuid.UUID{channelID})
	assert.ErrorIs(t, err, domain.ErrNoActiveChannels)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngineDispatchExplicitChannelsAllInactive(t *testing.T) {
	engine, mock := newEngine(t)

	contentID := uuid.New()
	templateID := uuid.New()
	channelID := uuid.New()

	mock.ExpectQuery(`FROM generated_content WHERE id = \$1`).
		WithArgs(contentID).
		WillReturnRows(sqlmock.NewRows(contentColumns()).
			AddRow(contentRow(contentID, templateID, "generated")...))
	mock.ExpectQuery(`FROM channels WHERE id IN`).
		WillReturnRows(sqlmock.NewRows(channelColumns()))

	_, err := engine.Dispatch(context.Background(), contentID, []uuid.UUID{channelID})
	assert.ErrorIs(t, err, domain.ErrNoActiveChannels)
	assert.NoError(t, mock.ExpectationsWereMet())
}
