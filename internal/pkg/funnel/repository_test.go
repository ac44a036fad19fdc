package funnel

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/steeplelabs/steeple/app/models"
)

func newMockRepository(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("gorm.Open error: %v", err)
	}

	return NewRepository(gdb), mock
}

func TestGetOrCreateClientNormalizesEmail(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec("INSERT INTO `clients`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT \\* FROM `clients` WHERE email = \\?").
		WithArgs("pastor@stmarks.org", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "church_name"}).
			AddRow(1, "pastor@stmarks.org", "St. Marks"))

	client, err := repo.GetOrCreateClient(&models.Client{Email: "Pastor@StMarks.ORG", ChurchName: "St. Marks"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Email != "pastor@stmarks.org" {
		t.Fatalf("expected normalized email, got %q", client.Email)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetOrCreateClientLosingRaceReturnsWinner(t *testing.T) {
	repo, mock := newMockRepository(t)

	// The upsert is absorbed (0 rows affected) because a concurrent insert
	// won; the re-read must return the winner's row.
	mock.ExpectExec("INSERT INTO `clients`").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT \\* FROM `clients` WHERE email = \\?").
		WithArgs("pastor@stmarks.org", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).
			AddRow(7, "pastor@stmarks.org"))

	client, err := repo.GetOrCreateClient(&models.Client{Email: "pastor@stmarks.org"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.ID != 7 {
		t.Fatalf("expected the winning row, got id %d", client.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateClientFieldsMissingClient(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec("UPDATE `clients` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `clients` WHERE email = \\?").
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(0))

	_, err := repo.UpdateClientFields("nobody@example.com", map[string]any{"account_created": true})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGrantPublishAccessUnpaidTrial(t *testing.T) {
	repo, mock := newMockRepository(t)

	// The conditional UPDATE re-checks has_paid at write time; an unpaid
	// trial matches no rows.
	mock.ExpectExec("UPDATE `trials` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT \\* FROM `trials` WHERE email = \\? AND site_name = \\?").
		WithArgs("pastor@stmarks.org", "stmarks", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "site_name", "has_paid", "has_publish_access"}).
			AddRow(3, "pastor@stmarks.org", "stmarks", false, false))

	_, err := repo.GrantPublishAccess("pastor@stmarks.org", "stmarks")
	if !errors.Is(err, ErrNotPaid) {
		t.Fatalf("expected ErrNotPaid, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGrantPublishAccessRepeatGrantIsIdempotent(t *testing.T) {
	repo, mock := newMockRepository(t)

	// Re-granting changes nothing (0 rows) but must succeed for a trial that
	// is already paid and granted.
	mock.ExpectExec("UPDATE `trials` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT \\* FROM `trials` WHERE email = \\? AND site_name = \\?").
		WithArgs("pastor@stmarks.org", "stmarks", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "site_name", "has_paid", "has_publish_access"}).
			AddRow(3, "pastor@stmarks.org", "stmarks", true, true))

	trial, err := repo.GrantPublishAccess("pastor@stmarks.org", "stmarks")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !trial.HasPublishAccess {
		t.Fatalf("expected publish access on re-grant")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreatePaymentEventIfNotExistsDuplicate(t *testing.T) {
	repo, mock := newMockRepository(t)

	// The unique (provider, provider_event_id) index absorbs the insert.
	mock.ExpectExec("INSERT INTO `payment_events`").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT \\* FROM `payment_events` WHERE provider = \\? AND provider_event_id = \\?").
		WithArgs("billing", "evt_1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "provider", "provider_event_id", "signature_valid"}).
			AddRow(11, "billing", "evt_1", true))

	created, event, err := repo.CreatePaymentEventIfNotExists(&models.PaymentEvent{
		Provider:        "billing",
		ProviderEventID: "evt_1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatalf("expected created=false for a duplicate event")
	}
	if event.ID != 11 {
		t.Fatalf("expected the stored row, got id %d", event.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
