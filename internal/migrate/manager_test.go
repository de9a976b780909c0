package migrate

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMigrationFilesArePaired(t *testing.T) {
	files, err := MigrationFiles()
	if err != nil {
		t.Fatalf("MigrationFiles: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no embedded migrations")
	}
	seen := map[string]int{}
	for _, f := range files {
		switch {
		case strings.HasSuffix(f, ".up.sql"):
			seen[strings.TrimSuffix(f, ".up.sql")]++
		case strings.HasSuffix(f, ".down.sql"):
			seen[strings.TrimSuffix(f, ".down.sql")]--
		default:
			t.Fatalf("unexpected migration file %s", f)
		}
	}
	for base, n := range seen {
		if n != 0 {
			t.Fatalf("migration %s lacks an up/down pair", base)
		}
	}
}

func TestSeedAppliesPendingFilesOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	seeds := fstest.MapFS{
		"001_company.sql": {Data: []byte("insert into companies (id, name) values ('a', 'A')")},
		"002_more.sql":    {Data: []byte("insert into companies (id, name) values ('b', 'B')")},
		"README.md":       {Data: []byte("ignored")},
	}
	m := NewManager(db, WithSeeds(seeds))

	mock.ExpectExec(regexp.QuoteMeta("create table if not exists schema_seeds")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("select name from schema_seeds")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("001_company.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("values ('b', 'B')")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("insert into schema_seeds(name, applied_at)")).
		WithArgs("002_more.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := m.Seed(context.Background()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEmbeddedSeedsListed(t *testing.T) {
	m := NewManager(nil)
	files, err := ListSQL(m.seeds)
	if err != nil {
		t.Fatalf("ListSQL: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("expected embedded seed files")
	}
}
