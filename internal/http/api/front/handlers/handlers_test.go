package handlers

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/stampdesk/stampdesk/internal/cards"
	"github.com/stampdesk/stampdesk/internal/db"
	"github.com/stampdesk/stampdesk/internal/ledger"
	"github.com/stampdesk/stampdesk/internal/models"
	"github.com/stampdesk/stampdesk/internal/notify"
	"github.com/stampdesk/stampdesk/internal/resilience"
)

func openHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	sqlDB.SetMaxOpenConns(1)
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func newTestExecutor(t *testing.T) *resilience.Executor {
	t.Helper()
	return resilience.New(resilience.Config{
		MaxRetries:     3,
		InitialDelay:   time.Millisecond,
		MaxDelay:       20 * time.Millisecond,
		BackoffFactor:  2,
		PerCallTimeout: time.Second,
	}, resilience.NewBreaker(resilience.DefaultBreakerThreshold, time.Second))
}

// seedProgram creates a business with one active program.
func seedProgram(t *testing.T, conn *gorm.DB) models.Program {
	t.Helper()
	business := models.Business{Name: "Corner Cafe", Slug: fmt.Sprintf("corner-cafe-%d", time.Now().UnixNano()), IsActive: true}
	if errCreate := conn.Create(&business).Error; errCreate != nil {
		t.Fatalf("create business: %v", errCreate)
	}
	program := models.Program{BusinessID: business.ID, Name: "Coffee Stamps", PointsName: "stamps", IsActive: true}
	if errCreate := conn.Create(&program).Error; errCreate != nil {
		t.Fatalf("create program: %v", errCreate)
	}
	return program
}

// seedCustomer creates an active customer.
func seedCustomer(t *testing.T, conn *gorm.DB, username string) models.Customer {
	t.Helper()
	customer := models.Customer{Username: username, Email: username + "@example.com", Password: "x", Active: true}
	if errCreate := conn.Create(&customer).Error; errCreate != nil {
		t.Fatalf("create customer: %v", errCreate)
	}
	return customer
}

// seedEnrollment enrolls a customer in a program with the given status.
func seedEnrollment(t *testing.T, conn *gorm.DB, customerID, programID uint64, status string) {
	t.Helper()
	enrollment := models.ProgramEnrollment{CustomerID: customerID, ProgramID: programID, Status: status}
	if errCreate := conn.Create(&enrollment).Error; errCreate != nil {
		t.Fatalf("create enrollment: %v", errCreate)
	}
}

func newTestAwardHandler(t *testing.T, conn *gorm.DB) *AwardHandler {
	t.Helper()
	exec := newTestExecutor(t)
	return NewAwardHandler(
		conn,
		nil,
		cards.NewResolver(conn, exec),
		ledger.New(conn, exec),
		notify.NewFanout(conn, nil, ""),
	)
}
