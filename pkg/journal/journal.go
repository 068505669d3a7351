// Package journal keeps a best-effort sqlite record of cycle summaries and
// switch events for post-mortem debugging. It never fails a cycle: every
// error is logged and swallowed, and a nil *Journal is a valid no-op.
package journal

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"wanwatch/pkg/model"
)

const opTimeout = 2 * time.Second

type Journal struct {
	db  *sql.DB
	log *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS cycles(
	ts INTEGER NOT NULL,
	iface TEXT NOT NULL,
	reachable INTEGER NOT NULL,
	targets INTEGER NOT NULL,
	latency_ms REAL NOT NULL,
	speed_kbs REAL NOT NULL,
	score REAL NOT NULL,
	active INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cycles_ts ON cycles(ts);
CREATE TABLE IF NOT EXISTS switches(
	ts INTEGER NOT NULL,
	from_iface TEXT NOT NULL,
	to_iface TEXT NOT NULL,
	forced INTEGER NOT NULL,
	reason TEXT NOT NULL
);`

func Open(path string, log *zap.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db, log: log}, nil
}

// RecordCycle writes one row per interface for the finished cycle.
func (j *Journal) RecordCycle(scores []model.InterfaceScore, active string) {
	if j == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	now := time.Now().Unix()
	for _, s := range scores {
		isActive := 0
		if s.Interface == active {
			isActive = 1
		}
		if _, err := j.db.ExecContext(ctx,
			`INSERT INTO cycles(ts, iface, reachable, targets, latency_ms, speed_kbs, score, active) VALUES(?,?,?,?,?,?,?,?)`,
			now, s.Interface, s.ReachableCount, s.TargetCount, s.AvgLatencyMs, s.AvgSpeedKBs, s.Score, isActive,
		); err != nil {
			j.log.Warn("journal cycle insert failed", zap.Error(err))
			return
		}
	}
}

// RecordSwitch appends one switch event row.
func (j *Journal) RecordSwitch(ev model.SwitchEvent) {
	if j == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	forced := 0
	if ev.Forced {
		forced = 1
	}
	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO switches(ts, from_iface, to_iface, forced, reason) VALUES(?,?,?,?,?)`,
		ev.At.Unix(), ev.From, ev.To, forced, ev.Reason,
	); err != nil {
		j.log.Warn("journal switch insert failed", zap.Error(err))
	}
}

func (j *Journal) Close() {
	if j == nil {
		return
	}
	_ = j.db.Close()
}
