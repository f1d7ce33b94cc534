package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/sahilchouksey/learnbridge/model"
	"github.com/sahilchouksey/learnbridge/services"
)

const (
	// staleOrderAge is how long an order may sit in PENDING before the
	// checkout is considered abandoned
	staleOrderAge = 24 * time.Hour

	// notificationRetention is how long read notifications are kept
	notificationRetention = 30 * 24 * time.Hour

	// cronLogRetention is how long job execution logs are kept
	cronLogRetention = 30 * 24 * time.Hour

	staleOrderBatchSize = 500
)

// ExpireStaleOrders cancels orders stuck in PENDING for more than 24
// hours. The gateway never confirmed these payments; a webhook arriving
// later for a cancelled order is rejected by the terminal-state guard.
func (m *CronManager) ExpireStaleOrders() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	jobName := "expire_stale_orders"
	cutoff := time.Now().Add(-staleOrderAge)

	expired, err := services.ExpireStaleCheckouts(ctx, m.stores, cutoff, staleOrderBatchSize)
	if err != nil {
		m.logJobError(jobName, err)
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("Expired %d stale orders", expired))
}

// DeactivateExpiredCoupons flips active coupons past their expiry
func (m *CronManager) DeactivateExpiredCoupons() {
	jobName := "deactivate_expired_coupons"

	result := m.db.Model(&model.Coupon{}).
		Where("active = ? AND expires_at IS NOT NULL AND expires_at < ?", true, time.Now()).
		Update("active", false)
	if result.Error != nil {
		m.logJobError(jobName, fmt.Errorf("failed to deactivate coupons: %w", result.Error))
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("Deactivated %d expired coupons", result.RowsAffected))
}

// CleanupNotifications removes read notifications older than the
// retention window
func (m *CronManager) CleanupNotifications() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	jobName := "cleanup_notifications"

	removed, err := m.notifications.CleanupOldNotifications(ctx, notificationRetention)
	if err != nil {
		m.logJobError(jobName, err)
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("Removed %d old notifications", removed))
}

// CleanupCronLogs removes job execution logs older than the retention window
func (m *CronManager) CleanupCronLogs() {
	jobName := "cleanup_cron_logs"
	cutoff := time.Now().Add(-cronLogRetention)

	result := m.db.Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&model.CronJobLog{})
	if result.Error != nil {
		m.logJobError(jobName, fmt.Errorf("failed to delete old cron logs: %w", result.Error))
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("Removed %d old cron logs", result.RowsAffected))
}
