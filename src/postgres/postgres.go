package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a single row lookup matches nothing
var ErrNotFound = errors.New("row not found")

var connectionString string

func ConfigurePostgres(connString string) {
	connectionString = connString
}

func GetConnection(ctx context.Context) (*pgx.Conn, error) {
	pg, err := pgx.Connect(ctx, connectionString)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create connection to pg")
	}
	return pg, nil
}

func DoQuery(ctx context.Context, handler func(conn *pgx.Conn) error) error {
	conn, err := GetConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	return handler(conn)
}

func DoExec(ctx context.Context, command string, args ...any) error {
	conn, err := GetConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, command, args...)
	return err
}

func DoExecOrDie(ctx context.Context, command string, args ...any) {
	if err := DoExec(ctx, command, args...); err != nil {
		panic(err)
	}
}

// Ping backs the readyz handlers
func Ping(ctx context.Context) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		return errors.Wrap(conn.Ping(ctx), "failed pinging postgres")
	})
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrapf(ErrNotFound, format, args...)
	}
	return errors.Wrapf(err, format, args...)
}
