package notifications

import (
	"context"
	"regexp"
	"testing"

	"prepxiq_go/utils"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestLogListSearchMatchesWildcardsLiterally(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer sqlDB.Close()
	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}

	like := "%50!%%"
	mock.ExpectQuery(regexp.QuoteMeta("(message_content LIKE ? ESCAPE '!' OR recipient_phone LIKE ? ESCAPE '!')")).
		WithArgs(like, like).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `communication_logs`")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rows, total, err := NewGormLogStore(db).List(context.Background(), LogFilter{Search: "50%"}, utils.PageParams{Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 0 || len(rows) != 0 {
		t.Fatalf("rows = %d, total = %d", len(rows), total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
