package sourcedb

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gowvp/tams/internal/core/source"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func generateMockDB() (*gorm.DB, sqlmock.Sqlmock, error) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		return nil, nil, err
	}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{})
	if err != nil {
		return nil, nil, err
	}
	return db, mock, nil
}

func TestSourceGet(t *testing.T) {
	db, mock, err := generateMockDB()
	if err != nil {
		t.Fatal(err)
	}
	sourceDB := NewDB(db)

	mock.ExpectQuery(`SELECT \* FROM "sources" WHERE id=\$1 (.+) LIMIT \$2`).
		WithArgs("s1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "format", "label"}).
			AddRow("s1", source.FormatVideo, "cam-1"))

	var out source.Source
	if err := sourceDB.Source().Get(context.Background(), &out, orm.Where("id=?", "s1")); err != nil {
		t.Fatal(err)
	}
	if out.Label != "cam-1" {
		t.Fatalf("unexpected label %q", out.Label)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal("ExpectationsWereMet err:", err)
	}
}

func TestSourceFind(t *testing.T) {
	db, mock, err := generateMockDB()
	if err != nil {
		t.Fatal(err)
	}
	sourceDB := NewDB(db)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "sources" WHERE format=\$1`).
		WithArgs(source.FormatAudio).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM "sources" WHERE format=\$1 (.+) LIMIT \$2`).
		WithArgs(source.FormatAudio, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "format"}).
			AddRow("s2", source.FormatAudio))

	var out []*source.Source
	total, err := sourceDB.Source().Find(context.Background(), &out,
		web.PagerFilter{Page: 1, Size: 10},
		orm.Where("format=?", source.FormatAudio),
		orm.OrderBy("created_at DESC"),
	)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(out) != 1 {
		t.Fatalf("unexpected result total=%d len=%d", total, len(out))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal("ExpectationsWereMet err:", err)
	}
}
