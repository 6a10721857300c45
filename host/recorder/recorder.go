// Package recorder stores snapshots in a SQLite database, one session row
// per recording run.
package recorder

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"wavedma/core"
)

const schema = `
create table if not exists session (
	id integer primary key autoincrement,
	source text not null,
	started integer not null
);
create table if not exists snapshot (
	session integer not null references session(id),
	received integer not null,
	tick integer not null,
	psc integer not null,
	arr integer not null,
	rcr integer not null,
	ccr1 integer not null,
	ccr2 integer not null,
	ccr3 integer not null,
	ccr4 integer not null,
	remaining integer not null,
	channel_state integer not null,
	timer_state integer not null,
	transfer_errors integer not null,
	adc_raw integer not null,
	adc_mv integer not null
);
create index if not exists snapshot_session on snapshot(session);
`

// Recorder writes snapshots for one session.
type Recorder struct {
	db      *sql.DB
	insert  *sql.Stmt
	session int64
	now     func() time.Time
}

// Open opens (or creates) the database at path and starts a session for
// source, e.g. the serial device or "sim".
func Open(path, source string) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema in %s: %w", path, err)
	}
	r := &Recorder{db: db, now: time.Now}
	res, err := db.Exec(`insert into session(source, started) values(?, ?)`, source, r.now().UnixNano())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("start session: %w", err)
	}
	if r.session, err = res.LastInsertId(); err != nil {
		db.Close()
		return nil, err
	}
	r.insert, err = db.Prepare(`insert into snapshot(
			session, received, tick, psc, arr, rcr, ccr1, ccr2, ccr3, ccr4,
			remaining, channel_state, timer_state, transfer_errors, adc_raw, adc_mv
		) values(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Session returns the id of this recording run.
func (r *Recorder) Session() int64 { return r.session }

// Record stores one snapshot.
func (r *Recorder) Record(s core.Snapshot) error {
	_, err := r.insert.Exec(r.session, r.now().UnixNano(),
		s.Tick, s.PSC, s.ARR, s.RCR, s.CCR[0], s.CCR[1], s.CCR[2], s.CCR[3],
		s.Remaining, uint8(s.Channel), uint8(s.Timer), s.TransferErrors, s.ADCRaw, s.ADCMilliVolts)
	return err
}

// Count returns how many snapshots this session holds.
func (r *Recorder) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`select count(*) from snapshot where session = ?`, r.session).Scan(&n)
	return n, err
}

// Recent returns up to n snapshots of this session, newest first.
func (r *Recorder) Recent(n int) ([]core.Snapshot, error) {
	rows, err := r.db.Query(`select tick, psc, arr, rcr, ccr1, ccr2, ccr3, ccr4,
			remaining, channel_state, timer_state, transfer_errors, adc_raw, adc_mv
		from snapshot where session = ? order by rowid desc limit ?`, r.session, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Snapshot
	for rows.Next() {
		var (
			s            core.Snapshot
			channel, tim uint8
		)
		err := rows.Scan(&s.Tick, &s.PSC, &s.ARR, &s.RCR, &s.CCR[0], &s.CCR[1], &s.CCR[2], &s.CCR[3],
			&s.Remaining, &channel, &tim, &s.TransferErrors, &s.ADCRaw, &s.ADCMilliVolts)
		if err != nil {
			return nil, err
		}
		s.Channel = core.ChannelState(channel)
		s.Timer = core.TimerState(tim)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close finishes the session.
func (r *Recorder) Close() error {
	r.insert.Close()
	return r.db.Close()
}
