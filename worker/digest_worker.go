package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cadenceflow/engine"
	"cadenceflow/models"
	"cadenceflow/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type DigestMailer interface {
	SendDigest(digest utils.Digest) error
}

// DigestWorker emails each rep the contacts that are due or overdue today.
// A rep gets at most one digest per calendar day, however short Interval is.
type DigestWorker struct {
	DB         *gorm.DB
	Engine     *engine.Engine
	Mailer     DigestMailer
	Interval   time.Duration
	StartDelay time.Duration
	Logger     *logrus.Entry

	mu       sync.Mutex
	lastSent map[uint]models.Date
}

func NewDigestWorker(db *gorm.DB, eng *engine.Engine, mailer DigestMailer, interval time.Duration, logger *logrus.Entry) *DigestWorker {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &DigestWorker{
		DB:         db,
		Engine:     eng,
		Mailer:     mailer,
		Interval:   interval,
		StartDelay: 10 * time.Second,
		Logger:     logger,
		lastSent:   make(map[uint]models.Date),
	}
}

func (dw *DigestWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	select {
	case <-ctx.Done():
		return
	case <-time.After(dw.StartDelay):
	}

	dw.Logger.WithField("interval", dw.Interval.String()).Info("Digest worker started")

	ticker := time.NewTicker(dw.Interval)
	defer ticker.Stop()

	for {
		if _, err := dw.RunOnce(ctx); err != nil {
			dw.Logger.WithError(err).Error("Digest run failed")
		}

		select {
		case <-ctx.Done():
			dw.Logger.Info("Digest worker shutting down...")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce sends today's digests and returns how many went out. A failure
// for one rep is logged and does not stop the others.
func (dw *DigestWorker) RunOnce(ctx context.Context) (int, error) {
	var users []models.User
	if err := dw.DB.WithContext(ctx).
		Where("is_active = ? AND id IN (?)", true, dw.DB.Model(&models.Cadence{}).Select("user_id")).
		Order("id ASC").
		Find(&users).Error; err != nil {
		return 0, fmt.Errorf("failed to load digest recipients: %w", err)
	}

	today := dw.Engine.Today()
	sent := 0
	for _, user := range users {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if dw.sentOn(user.ID, today) {
			continue
		}

		digest, err := dw.buildDigest(ctx, user, today)
		if err != nil {
			dw.Logger.WithError(err).WithField("user_id", user.ID).Warn("Failed to build digest")
			continue
		}
		if len(digest.Items) == 0 {
			continue
		}

		if err := dw.Mailer.SendDigest(digest); err != nil {
			utils.LogError("digest_send_failed", err, map[string]interface{}{
				"user_id": user.ID,
				"items":   len(digest.Items),
			})
			continue
		}
		dw.markSent(user.ID, today)
		sent++
	}

	if sent > 0 {
		dw.Logger.WithFields(logrus.Fields{"sent": sent, "date": today.String()}).Info("Digests sent")
	}
	return sent, nil
}

func (dw *DigestWorker) buildDigest(ctx context.Context, user models.User, today models.Date) (utils.Digest, error) {
	items, err := dw.Engine.ListDue(ctx, user.ID)
	if err != nil {
		return utils.Digest{}, err
	}

	digest := utils.Digest{
		RecipientName:  user.DisplayName(),
		RecipientEmail: user.Email,
		Date:           today.String(),
		Year:           today.Time().Year(),
	}
	if len(items) == 0 {
		return digest, nil
	}

	var cadences []models.Cadence
	if err := dw.DB.WithContext(ctx).
		Select("id", "name").
		Where("user_id = ?", user.ID).
		Find(&cadences).Error; err != nil {
		return digest, err
	}
	names := make(map[uint]string, len(cadences))
	for _, cadence := range cadences {
		names[cadence.ID] = cadence.Name
	}

	for _, item := range items {
		steps := make([]string, 0, len(item.PendingSteps))
		for _, step := range item.PendingSteps {
			steps = append(steps, fmt.Sprintf("%s (%s)", step.Label, step.ActionType))
		}
		digest.Items = append(digest.Items, utils.DigestItem{
			ContactName: item.ContactName,
			Company:     item.Company,
			CadenceName: names[item.CadenceID],
			CurrentDay:  item.CurrentDay,
			DueOn:       item.DueOn.String(),
			Overdue:     item.IsOverdue,
			Steps:       steps,
		})
	}
	return digest, nil
}

func (dw *DigestWorker) sentOn(userID uint, day models.Date) bool {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	last, ok := dw.lastSent[userID]
	return ok && last.Equal(day)
}

func (dw *DigestWorker) markSent(userID uint, day models.Date) {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	dw.lastSent[userID] = day
}
