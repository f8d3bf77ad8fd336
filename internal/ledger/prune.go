package ledger

import (
	logx "dailyrun/pkg/logx"
)

// Prune deletes rows older than the given number of days, keeping the ledger
// file bounded. It runs synchronously; the app schedules it off-peak.
// days <= 0 disables pruning.
func (l *Ledger) Prune(days int) int64 {
	if days <= 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureConnLocked(); err != nil {
		l.log.Error("ledger prune unavailable", logx.Err(err))
		return 0
	}

	cutoff := l.now().AddDate(0, 0, -days).Format(dayFormat)
	res, err := l.db.Exec(`DELETE FROM executed_tasks WHERE execution_date < ?`, cutoff)
	if err != nil {
		l.log.Error("ledger prune failed", logx.Err(err))
		return 0
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		l.log.Info("pruned old execution records", logx.Int64("rows", n), logx.String("cutoff", cutoff))
	}
	return n
}
