package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"cadenceflow/models"
	"cadenceflow/notify"

	sqlite "github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(year int, month time.Month, day int) *testClock {
	return &testClock{now: time.Date(year, month, day, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(year int, month time.Month, day int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Date(year, month, day, 10, 0, 0, 0, time.UTC)
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:engine_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err, "failed to open sqlite")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Contact{},
		&models.Tag{},
		&models.Template{},
		&models.Cadence{},
		&models.CadenceStep{},
		&models.Enrollment{},
		&models.StepState{},
		&models.HistoryEntry{},
	), "failed to migrate")
	return db
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	actions := make([]string, 0, len(p.events))
	for _, event := range p.events {
		actions = append(actions, event.Action)
	}
	return actions
}

func newTestEngine(t *testing.T, clock *testClock) (*Engine, *gorm.DB) {
	t.Helper()
	return newTestEngineWithPublisher(t, clock, nil)
}

func newTestEngineWithPublisher(t *testing.T, clock *testClock, publisher notify.Publisher) (*Engine, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	eng, err := New(Config{
		DB:       db,
		Clock:    clock.Now,
		Notifier: publisher,
		Logger:   logrus.NewEntry(log),
	})
	require.NoError(t, err)
	return eng, db
}

func seedContact(t *testing.T, db *gorm.DB, first, last, company string) models.Contact {
	t.Helper()
	contact := models.Contact{
		UserID:    1,
		Email:     fmt.Sprintf("%s.%s@example.com", first, last),
		FirstName: first,
		LastName:  last,
		Company:   company,
	}
	require.NoError(t, db.Create(&contact).Error)
	return contact
}

// seedCadence creates a cadence whose steps sit on the given day offsets, in order.
func seedCadence(t *testing.T, eng *Engine, offsets ...int) *models.Cadence {
	t.Helper()
	input := CadenceInput{Name: "Outbound"}
	for i, offset := range offsets {
		action := models.ActionEmail
		if i%2 == 1 {
			action = models.ActionPhone
		}
		input.Steps = append(input.Steps, StepInput{
			DayOffset:  offset,
			Label:      fmt.Sprintf("step %d (day %d)", i+1, offset),
			ActionType: action,
		})
	}
	cadence, err := eng.CreateCadence(context.Background(), 1, input)
	require.NoError(t, err)
	require.Len(t, cadence.Steps, len(offsets))
	return cadence
}

func loadStates(t *testing.T, db *gorm.DB, enrollmentID uint) map[uint]models.StepState {
	t.Helper()
	var states []models.StepState
	require.NoError(t, db.Where("enrollment_id = ?", enrollmentID).Find(&states).Error)
	byStep := make(map[uint]models.StepState, len(states))
	for _, state := range states {
		byStep[state.StepID] = state
	}
	return byStep
}

func loadHistory(t *testing.T, db *gorm.DB, enrollmentID uint) []models.HistoryEntry {
	t.Helper()
	var entries []models.HistoryEntry
	require.NoError(t, db.Where("enrollment_id = ?", enrollmentID).Order("occurred_at ASC, id ASC").Find(&entries).Error)
	return entries
}

func loadEnrollment(t *testing.T, db *gorm.DB, id uint) models.Enrollment {
	t.Helper()
	var enrollment models.Enrollment
	require.NoError(t, db.First(&enrollment, id).Error)
	return enrollment
}

func date(year int, month time.Month, day int) models.Date {
	return models.NewDate(year, month, day)
}
