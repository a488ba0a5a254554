package handlers

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"carpool-backend/internal/models"
)

// Заглушка database/sql: в режиме DryRun запросы не исполняются,
// нужен лишь формально рабочий пул соединений
type stubConnector struct{}

func (stubConnector) Connect(context.Context) (driver.Conn, error) { return stubConn{}, nil }
func (stubConnector) Driver() driver.Driver                        { return stubDriver{} }

type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return stubConn{}, nil }

type stubConn struct{}

func (stubConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (stubConn) Close() error                        { return nil }
func (stubConn) Begin() (driver.Tx, error)           { return nil, driver.ErrSkip }

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn: sql.OpenDB(stubConnector{}),
	}), &gorm.Config{DryRun: true})
	if err != nil {
		t.Fatalf("не удалось открыть DryRun-подключение: %v", err)
	}
	return db
}

// Проверки мест при подтверждении идут под блокировкой строки поездки:
// без FOR UPDATE два конкурентных подтверждения переполняют поездку
func TestLockForUpdateLocksSelectedRows(t *testing.T) {
	db := dryRunDB(t)

	tests := []struct {
		name  string
		query func() string
	}{
		{
			"чтение поездки",
			func() string {
				var ride models.Ride
				return lockForUpdate(db).First(&ride, 1).Statement.SQL.String()
			},
		},
		{
			"чтение бронирования",
			func() string {
				var booking models.Booking
				return lockForUpdate(db).First(&booking, 1).Statement.SQL.String()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := tt.query()
			if !strings.Contains(query, "FOR UPDATE") {
				t.Errorf("запрос не блокирует строку: %s", query)
			}
		})
	}
}
