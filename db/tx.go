package db

import (
	"context"
	"fmt"
	"log/slog"
)

// InTx runs fn as a single write transaction on a dedicated connection and
// returns its result. The profile stores use it for read-modify-write
// updates such as toggling a like or replacing preferences. Nothing fn wrote
// survives unless it returns nil; a panic in fn also rolls back.
func InTx[T any](ctx context.Context, d *CompatDB, fn func(conn *CompatConn) (T, error)) (T, error) {
	var zero T
	conn, err := d.Conn(ctx)
	if err != nil {
		return zero, fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, d.BeginTxSQL()); err != nil {
		return zero, fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		// The caller's context may already be done; the rollback must still run.
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK"); err != nil {
			slog.Warn("rollback failed", "err", err)
		}
	}()

	out, err := fn(conn)
	if err != nil {
		return zero, err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return zero, fmt.Errorf("commit: %w", err)
	}
	committed = true
	return out, nil
}
