package bundles

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var bundleColumns = []string{"file_id", "user_id", "encrypted_name", "disguised_name", "disguise_type",
	"file_size_bytes", "file_count", "device_fingerprint", "blob_ref", "kdf_salt", "created_at"}

func sampleBundle() *models.HiddenFileBundle {
	return &models.HiddenFileBundle{
		ID:                "b-1",
		UserID:            "u-1",
		EncryptedName:     []byte("enc"),
		DisguisedName:     "com.apple.managed.certificate.ABC.cer",
		DisguiseType:      models.DisguiseAppleCert,
		TotalSizeBytes:    10,
		FileCount:         2,
		DeviceFingerprint: "dev",
		BlobRef:           "com.apple.managed.certificate.ABC.cer",
		KDFSalt:           []byte("salt"),
		CreatedAt:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

const insertQ = `(?s)^INSERT\s+INTO\s+hidden_bundles\s*\(file_id,.*created_at\)\s*VALUES\s*\(\$1,.*\$11\)\s*$`

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	b := sampleBundle()
	mock.ExpectExec(insertQ).
		WithArgs(b.ID, b.UserID, b.EncryptedName, b.DisguisedName, "apple-cert", b.TotalSizeBytes,
			b.FileCount, b.DeviceFingerprint, b.BlobRef, b.KDFSalt, b.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), b); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreate_UniqueViolation(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), sampleBundle())
	var ce *common.CollisionError
	if !errors.As(err, &ce) {
		t.Fatalf("want CollisionError, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), sampleBundle())
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

const selectByIDQ = `(?s)^SELECT\s+file_id,.*FROM\s+hidden_bundles\s+WHERE\s+file_id\s*=\s*\$1\s*$`

func TestGetByID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	b := sampleBundle()
	rows := sqlmock.NewRows(bundleColumns).AddRow(b.ID, b.UserID, b.EncryptedName, b.DisguisedName,
		"apple-cert", b.TotalSizeBytes, b.FileCount, b.DeviceFingerprint, b.BlobRef, b.KDFSalt, b.CreatedAt)
	mock.ExpectQuery(selectByIDQ).WithArgs("b-1").WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), "b-1")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.ID != "b-1" || got.DisguiseType != models.DisguiseAppleCert || got.TotalSizeBytes != 10 {
		t.Fatalf("unexpected bundle: %+v", got)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectByIDQ).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^DELETE\s+FROM\s+hidden_bundles\s+WHERE\s+file_id\s*=\s*\$1$`
	mock.ExpectExec(q).WithArgs("b-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("b-2").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), "b-1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := repo.Delete(context.Background(), "b-2"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestListByUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	b := sampleBundle()
	rows := sqlmock.NewRows(bundleColumns).
		AddRow("b-1", "u-1", b.EncryptedName, "n1", "apple-cert", int64(1), 1, "dev", "n1", b.KDFSalt, b.CreatedAt).
		AddRow("b-2", "u-1", b.EncryptedName, "n2", "android-credential", int64(2), 1, "dev", "n2", b.KDFSalt, b.CreatedAt)
	mock.ExpectQuery(`(?s)^SELECT\s+file_id,.*WHERE\s+user_id\s*=\s*\$1\s+ORDER\s+BY`).WithArgs("u-1").WillReturnRows(rows)

	got, err := repo.ListByUser(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("ListByUser error: %v", err)
	}
	if len(got) != 2 || got[1].DisguiseType != models.DisguiseAndroidCredential {
		t.Fatalf("unexpected list: %+v", got)
	}
}

func TestDisguisedNameExists(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+EXISTS`).WithArgs("dev", "n1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.DisguisedNameExists(context.Background(), "dev", "n1")
	if err != nil || !ok {
		t.Fatalf("want true, got %v %v", ok, err)
	}
}

func TestTotalSizeByUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+COALESCE\(SUM\(file_size_bytes\),\s*0\)`).WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(42)))

	total, err := repo.TotalSizeByUser(context.Background(), "u-1")
	if err != nil || total != 42 {
		t.Fatalf("want 42, got %d %v", total, err)
	}
}
