package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/ignite/loyalty-core/internal/domain"
)

func testConversion(saleID, interactionID uuid.UUID) domain.CampaignConversion {
	return domain.CampaignConversion{
		ID:            uuid.New(),
		SaleID:        saleID,
		InteractionID: interactionID,
		CampaignID:    uuid.New(),
		ClientID:      uuid.New(),
		TimeToConvert: 36 * time.Hour,
		Revenue:       12500,
		Class:         domain.ClassRegular,
		CreatedAt:     time.Now(),
	}
}

func TestConversionRepo_CommitConsumesAndInserts(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	saleID, interactionID := uuid.New(), uuid.New()
	cv := testConversion(saleID, interactionID)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE loyalty_interactions").
		WithArgs(saleID, interactionID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO loyalty_conversions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewConversionRepo(db)
	err := repo.Commit(context.Background(), []domain.CampaignConversion{cv}, []uuid.UUID{interactionID}, saleID)
	if err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestConversionRepo_CommitRollsBackOnLostRace(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	saleID, interactionID := uuid.New(), uuid.New()
	cv := testConversion(saleID, interactionID)

	mock.ExpectBegin()
	// Another sale consumed the interaction first: zero rows affected.
	mock.ExpectExec("UPDATE loyalty_interactions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	repo := NewConversionRepo(db)
	err := repo.Commit(context.Background(), []domain.CampaignConversion{cv}, []uuid.UUID{interactionID}, saleID)
	if err == nil {
		t.Fatal("Commit() should fail when the interaction was already consumed")
	}
	if !strings.Contains(err.Error(), "already consumed") {
		t.Errorf("Commit() error = %v, want already-consumed", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestConversionRepo_Candidates(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	clientID := uuid.New()
	campaignID := uuid.New()
	interactionID := uuid.New()

	cols := []string{
		"i_id", "i_client_id", "i_campaign_id", "i_scheduled_date", "i_time_block",
		"i_executed_at", "i_delivery_status", "i_consumed_by_sale_id", "i_trigger_amount",
		"i_provider_message_id", "i_created_at",
		"c_id", "c_organization_id", "c_attribution_model",
		"c_attribution_window_days", "c_attribution_eligible",
	}

	rows := sqlmock.NewRows(cols).AddRow(
		interactionID, clientID, campaignID, time.Now().Add(-24*time.Hour), "morning",
		time.Now().Add(-24*time.Hour), "sent", nil, int64(1500), "msg-1", time.Now().Add(-25*time.Hour),
		campaignID, uuid.New(), "LAST_TOUCH", 7, true,
	)

	mock.ExpectQuery("FROM loyalty_interactions i").
		WillReturnRows(rows)

	repo := NewConversionRepo(db)
	cands, err := repo.Candidates(context.Background(), clientID, time.Now())
	if err != nil {
		t.Fatalf("Candidates() error: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("Candidates() returned %d, want 1", len(cands))
	}
	if cands[0].Interaction.ID != interactionID {
		t.Errorf("candidate interaction = %s, want %s", cands[0].Interaction.ID, interactionID)
	}
	if cands[0].Campaign.AttributionWindow != 7 {
		t.Errorf("candidate window = %d, want 7", cands[0].Campaign.AttributionWindow)
	}
}
