package blrouter

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// Monitor reports the primary's current binlog file and position over
// an ordinary database/sql connection, independent of the replication
// protocol connection that drives the core. Operators poll it for
// visibility; it plays no part in the router's own position tracking.
type Monitor struct {
	db *sql.DB
}

// NewMonitor opens a monitoring connection using the go-sql-driver/mysql
// driver against dsn (see github.com/go-sql-driver/mysql for the DSN
// format).
func NewMonitor(dsn string) (*Monitor, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "blrouter: open monitor connection")
	}
	return &Monitor{db: db}, nil
}

// Close releases the monitoring connection.
func (m *Monitor) Close() error {
	return m.db.Close()
}

// MasterStatus is the decoded result of SHOW MASTER STATUS.
type MasterStatus struct {
	File     string
	Position uint64
}

// MasterStatus runs SHOW MASTER STATUS against the primary.
func (m *Monitor) MasterStatus(ctx context.Context) (MasterStatus, error) {
	row := m.db.QueryRowContext(ctx, "SHOW MASTER STATUS")
	var ms MasterStatus
	var binlogDoDB, binlogIgnoreDB, executedGtidSet sql.NullString
	if err := row.Scan(&ms.File, &ms.Position, &binlogDoDB, &binlogIgnoreDB, &executedGtidSet); err != nil {
		return MasterStatus{}, errors.Wrap(err, "blrouter: SHOW MASTER STATUS")
	}
	return ms, nil
}

// BinaryLog is one row of SHOW BINARY LOGS.
type BinaryLog struct {
	Name string
	Size uint64
}

// BinaryLogs runs SHOW BINARY LOGS against the primary, returning every
// binlog file it currently retains.
func (m *Monitor) BinaryLogs(ctx context.Context) ([]BinaryLog, error) {
	rows, err := m.db.QueryContext(ctx, "SHOW BINARY LOGS")
	if err != nil {
		return nil, errors.Wrap(err, "blrouter: SHOW BINARY LOGS")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "blrouter: SHOW BINARY LOGS columns")
	}

	var logs []BinaryLog
	for rows.Next() {
		var bl BinaryLog
		if len(cols) > 2 {
			var encrypted sql.NullString
			if err := rows.Scan(&bl.Name, &bl.Size, &encrypted); err != nil {
				return nil, errors.Wrap(err, "blrouter: scan SHOW BINARY LOGS row")
			}
		} else {
			if err := rows.Scan(&bl.Name, &bl.Size); err != nil {
				return nil, errors.Wrap(err, "blrouter: scan SHOW BINARY LOGS row")
			}
		}
		logs = append(logs, bl)
	}
	return logs, errors.Wrap(rows.Err(), "blrouter: SHOW BINARY LOGS rows")
}
