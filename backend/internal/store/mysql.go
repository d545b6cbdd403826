package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"syncServer/backend/internal/engine"
)

// MySQLStore 持久化实现。不持应用层锁：
//   - 乐观并发由 (space, record_key, based_on) 主键保证，
//     撞到 1062 重复键说明有并发写入者抢先提交 → ErrHeadChanged
//   - 提交序号由 sync_sequences 单行原子自增（LAST_INSERT_ID 技巧），
//     与 Record 级并发无关，天然全序
//
// 输掉竞争会留下序号空洞，游标只要求保序，不要求连续。
type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

const mysqlErrDupEntry = 1062

// mapMySQLError 区分瞬时/致命：
// 服务端返回的 MySQLError（约束、语法等）原样上抛；
// 其余（断连、超时）按 ErrUnavailable 处理，调用方可整体重试。
func mapMySQLError(op string, err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return fmt.Errorf("mysql %s: %w", op, err)
	}
	return fmt.Errorf("mysql %s: %v: %w", op, err, engine.ErrUnavailable)
}

func (s *MySQLStore) nextSeq(ctx context.Context, space string) (int64, error) {
	// 单行计数器：首次插入得 1，之后每次原子 +1，
	// LAST_INSERT_ID(expr) 让 LastInsertId 直接带回新值
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_sequences (space, n) VALUES (?, LAST_INSERT_ID(1))
		 ON DUPLICATE KEY UPDATE n = LAST_INSERT_ID(n + 1)`,
		space,
	)
	if err != nil {
		return 0, mapMySQLError("nextSeq", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, mapMySQLError("nextSeq", err)
	}
	return seq, nil
}

func (s *MySQLStore) Append(ctx context.Context, op engine.Operation, jrec engine.Jrec) (int64, error) {
	seq, err := s.nextSeq(ctx, op.Space)
	if err != nil {
		return 0, err
	}

	payload, err := json.Marshal(op.Payload)
	if err != nil {
		return 0, fmt.Errorf("mysql append: marshal payload: %w", err)
	}
	jrecJSON, err := json.Marshal(jrec)
	if err != nil {
		return 0, fmt.Errorf("mysql append: marshal jrec: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sync_operations
		 (space, record_key, based_on, seq, actor, kind, payload, occurred_at, jrec)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.Space, op.Key, op.BasedOnVersion, seq,
		op.Actor, string(op.Kind), string(payload), op.OccurredAt, string(jrecJSON),
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDupEntry {
			// 重复键 == 别人先写进了同一个基准版本
			return 0, engine.ErrHeadChanged
		}
		return 0, mapMySQLError("append", err)
	}
	return seq, nil
}

const opColumns = `space, record_key, based_on, seq, actor, kind, payload, occurred_at, jrec`

func scanCommitted(row interface {
	Scan(dest ...interface{}) error
}) (engine.Committed, error) {
	var c engine.Committed
	var kind, payload, jrecJSON string
	err := row.Scan(
		&c.Op.Space, &c.Op.Key, &c.Op.BasedOnVersion, &c.Seq,
		&c.Op.Actor, &kind, &payload, &c.Op.OccurredAt, &jrecJSON,
	)
	if err != nil {
		return engine.Committed{}, err
	}
	c.Op.Kind = engine.Kind(kind)
	if err := json.Unmarshal([]byte(payload), &c.Op.Payload); err != nil {
		return engine.Committed{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := json.Unmarshal([]byte(jrecJSON), &c.Jrec); err != nil {
		return engine.Committed{}, fmt.Errorf("unmarshal jrec: %w", err)
	}
	return c, nil
}

func (s *MySQLStore) GetLastOperation(ctx context.Context, space, key string) (*engine.Committed, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+opColumns+` FROM sync_operations
		 WHERE space = ? AND record_key = ?
		 ORDER BY based_on DESC LIMIT 1`,
		space, key,
	)
	c, err := scanCommitted(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapMySQLError("getLast", err)
	}
	return &c, nil
}

func (s *MySQLStore) GetOperationsSince(ctx context.Context, space string, cursor int64) ([]engine.Committed, int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+opColumns+` FROM sync_operations
		 WHERE space = ? AND seq > ?
		 ORDER BY seq ASC`,
		space, cursor,
	)
	if err != nil {
		return nil, 0, mapMySQLError("getQueueitems", err)
	}
	defer rows.Close()

	out := []engine.Committed{}
	next := cursor
	for rows.Next() {
		c, err := scanCommitted(rows)
		if err != nil {
			return nil, 0, mapMySQLError("getQueueitems", err)
		}
		out = append(out, c)
		next = c.Seq
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapMySQLError("getQueueitems", err)
	}
	return out, next, nil
}

func (s *MySQLStore) GetOperationAtVersion(ctx context.Context, space, key string, version int64) (engine.Committed, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+opColumns+` FROM sync_operations
		 WHERE space = ? AND record_key = ? AND based_on = ?`,
		space, key, version-1,
	)
	c, err := scanCommitted(row)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Committed{}, engine.ErrNotFound
	}
	if err != nil {
		return engine.Committed{}, mapMySQLError("getVersion", err)
	}
	return c, nil
}

func (s *MySQLStore) GetValue(ctx context.Context, space, key string) (engine.Jrec, error) {
	last, err := s.GetLastOperation(ctx, space, key)
	if err != nil {
		return engine.Jrec{}, err
	}
	if last == nil {
		return engine.Jrec{}, engine.ErrNotFound
	}
	return last.Jrec, nil
}

func (s *MySQLStore) ListSpaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT space FROM sync_sequences ORDER BY space`,
	)
	if err != nil {
		return nil, mapMySQLError("listSpaces", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapMySQLError("listSpaces", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, mapMySQLError("listSpaces", err)
	}
	return names, nil
}
