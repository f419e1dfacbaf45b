package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-sql-driver/mysql"

	"momento/entity"
	"momento/internal/config"
)

const errDuplicateEntry = 1062

const codeColumns = `id, kind, code, name, description, is_active, max_uses, current_uses, expires_at,
	created_at, created_by, last_used_at, max_files, max_file_size, allowed_types, table_count, current_files`

const usageColumns = `id, kind, code_id, code, user_id, user_agent, ip_address, action, used_at,
	file_count, table_number, file_id, overshoot`

// MySql keeps codes, usage and users in MySQL tables named like the mongo
// collections, optionally prefixed. Counter updates and the read back of the
// row share one transaction.
type MySql struct {
	db         *sql.DB
	prefix     string
	statements map[string]*sql.Stmt
	mu         sync.Mutex
}

func NewSQLClient(ctx context.Context, conf *config.Config) (*MySql, error) {
	if !conf.MySQL.Enabled {
		return nil, nil
	}
	db, err := sql.Open("mysql", mysqlDSN(conf.MySQL))
	if err != nil {
		return nil, fmt.Errorf("sql connect: %w", err)
	}

	// the database may still be starting
	for i := 0; ; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		if i == 2 {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	s := &MySql{
		db:         db,
		prefix:     conf.MySQL.Prefix,
		statements: make(map[string]*sql.Stmt),
	}
	if err = s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func mysqlDSN(conf config.MySQLConfig) string {
	c := mysql.NewConfig()
	c.User = conf.User
	c.Passwd = conf.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(conf.Host, conf.Port)
	c.DBName = conf.Database
	c.ParseTime = true
	c.Loc = time.UTC
	// RowsAffected counts matched rows, so a no-op update is not "not found"
	c.ClientFoundRows = true
	return c.FormatDSN()
}

func (s *MySql) Close() {
	s.closeStmt()
	_ = s.db.Close()
}

func (s *MySql) table(name string) string {
	return s.prefix + name
}

func (s *MySql) createTables(ctx context.Context) error {
	for _, name := range []string{collectionBetaCodes, collectionEventCodes} {
		query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) NOT NULL,
			kind VARCHAR(8) NOT NULL,
			code VARCHAR(32) NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			description TEXT NOT NULL,
			is_active TINYINT(1) NOT NULL DEFAULT 1,
			max_uses INT NULL,
			current_uses INT NOT NULL DEFAULT 0,
			expires_at DATETIME(6) NULL,
			created_at DATETIME(6) NOT NULL,
			created_by VARCHAR(64) NOT NULL DEFAULT '',
			last_used_at DATETIME(6) NULL,
			max_files INT NULL,
			max_file_size INT NULL,
			allowed_types TEXT NOT NULL,
			table_count INT NOT NULL DEFAULT 0,
			current_files INT NOT NULL DEFAULT 0,
			PRIMARY KEY (id),
			UNIQUE KEY uq_code (code)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, s.table(name))
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create table %s: %w", name, err)
		}
	}
	for _, name := range []string{collectionBetaUsage, collectionEventUsage} {
		query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(26) NOT NULL,
			kind VARCHAR(8) NOT NULL,
			code_id VARCHAR(36) NOT NULL DEFAULT '',
			code VARCHAR(32) NOT NULL,
			user_id VARCHAR(128) NOT NULL DEFAULT '',
			user_agent VARCHAR(512) NOT NULL DEFAULT '',
			ip_address VARCHAR(64) NOT NULL DEFAULT '',
			action VARCHAR(16) NOT NULL,
			used_at DATETIME(6) NOT NULL,
			file_count INT NOT NULL DEFAULT 0,
			table_number INT NOT NULL DEFAULT 0,
			file_id VARCHAR(255) NOT NULL DEFAULT '',
			overshoot TINYINT(1) NOT NULL DEFAULT 0,
			PRIMARY KEY (id),
			KEY ix_code_used (code, used_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, s.table(name))
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create table %s: %w", name, err)
		}
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		token VARCHAR(128) NOT NULL,
		username VARCHAR(64) NOT NULL,
		name VARCHAR(120) NOT NULL DEFAULT '',
		email VARCHAR(255) NOT NULL DEFAULT '',
		is_admin TINYINT(1) NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		PRIMARY KEY (token)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, s.table(collectionUsers))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", collectionUsers, err)
	}
	return nil
}

func (s *MySql) prepareStmt(ctx context.Context, name, query string) (*sql.Stmt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stmt, ok := s.statements[name]; ok {
		return stmt, nil
	}
	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare statement [%s]: %w", name, err)
	}
	s.statements[name] = stmt
	return stmt, nil
}

func (s *MySql) closeStmt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, stmt := range s.statements {
		_ = stmt.Close()
		delete(s.statements, name)
	}
}

func (s *MySql) GetUser(ctx context.Context, token string) (*entity.User, error) {
	stmt, err := s.prepareStmt(ctx, "getUser", fmt.Sprintf(
		`SELECT username, name, email, token, is_admin, created_at FROM %s WHERE token = ?`,
		s.table(collectionUsers)))
	if err != nil {
		return nil, err
	}
	var user entity.User
	err = stmt.QueryRowContext(ctx, token).Scan(
		&user.Username, &user.Name, &user.Email, &user.Token, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		return nil, rowError(err)
	}
	return &user, nil
}

func (s *MySql) SaveUser(ctx context.Context, user *entity.User) error {
	query := fmt.Sprintf(`INSERT INTO %s (token, username, name, email, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE username = VALUES(username), name = VALUES(name),
			email = VALUES(email), is_admin = VALUES(is_admin)`, s.table(collectionUsers))
	_, err := s.db.ExecContext(ctx, query,
		user.Token, user.Username, user.Name, user.Email, user.IsAdmin, user.CreatedAt)
	return err
}

func (s *MySql) GetCode(ctx context.Context, kind entity.Kind, code string) (*entity.AccessCode, error) {
	table := s.table(codesCollection(kind))
	stmt, err := s.prepareStmt(ctx, "getCode:"+table, fmt.Sprintf(
		`SELECT %s FROM %s WHERE code = ?`, codeColumns, table))
	if err != nil {
		return nil, err
	}
	record, err := scanCode(stmt.QueryRowContext(ctx, code))
	if err != nil {
		return nil, rowError(err)
	}
	return record, nil
}

func (s *MySql) ListCodes(ctx context.Context, kind entity.Kind) ([]*entity.AccessCode, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at DESC`, codeColumns, s.table(codesCollection(kind)))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	records := make([]*entity.AccessCode, 0)
	for rows.Next() {
		record, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *MySql) CreateCode(ctx context.Context, record *entity.AccessCode) error {
	allowed, err := json.Marshal(record.AllowedTypes)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.table(codesCollection(record.Kind)), codeColumns)
	_, err = s.db.ExecContext(ctx, query,
		record.Id, string(record.Kind), record.Code, record.Name, record.Description, record.IsActive,
		record.MaxUses, record.CurrentUses, record.ExpiresAt, record.CreatedAt, record.CreatedBy,
		record.LastUsedAt, record.MaxFiles, record.MaxFileSize, string(allowed), record.TableCount,
		record.CurrentFiles,
	)
	if isDuplicateKey(err) {
		return ErrDuplicate
	}
	return err
}

func (s *MySql) DeleteCode(ctx context.Context, kind entity.Kind, code string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE code = ?`, s.table(codesCollection(kind)))
	res, err := s.db.ExecContext(ctx, query, code)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MySql) SetCodeActive(ctx context.Context, kind entity.Kind, code string, active bool) (*entity.AccessCode, error) {
	return s.updateCode(ctx, kind, code, "is_active = ?", "", active)
}

func (s *MySql) ResetUsage(ctx context.Context, kind entity.Kind, code string) (*entity.AccessCode, error) {
	return s.updateCode(ctx, kind, code, "current_uses = 0, current_files = 0", "")
}

func (s *MySql) IncrementUsage(ctx context.Context, kind entity.Kind, code string, uses, files int, at time.Time) (*entity.AccessCode, error) {
	return s.updateCode(ctx, kind, code,
		"current_uses = current_uses + ?, current_files = current_files + ?, last_used_at = ?", "",
		uses, files, at)
}

// IncrementUsageBelow adds one use only while the code is active and below
// max_uses; the bound is part of the UPDATE so concurrent callers serialize
// on the row lock.
func (s *MySql) IncrementUsageBelow(ctx context.Context, kind entity.Kind, code string, at time.Time) (*entity.AccessCode, error) {
	return s.updateCode(ctx, kind, code,
		"current_uses = current_uses + 1, last_used_at = ?",
		" AND is_active = 1 AND (max_uses IS NULL OR current_uses < max_uses)",
		at)
}

// updateCode applies set to one row and reads it back in the same
// transaction. No matching row gives ErrNotFound, or ErrConditionFailed when
// a condition was given.
func (s *MySql) updateCode(ctx context.Context, kind entity.Kind, code, set, cond string, args ...any) (*entity.AccessCode, error) {
	table := s.table(codesCollection(kind))
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE code = ?%s`, table, set, cond)
	res, err := tx.ExecContext(ctx, query, append(args, code)...)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if cond != "" {
			return nil, ErrConditionFailed
		}
		return nil, ErrNotFound
	}

	record, err := scanCode(tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE code = ?`, codeColumns, table), code))
	if err != nil {
		return nil, rowError(err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return record, nil
}

func (s *MySql) AddUsage(ctx context.Context, record *entity.UsageRecord) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.table(usageCollection(record.Kind)), usageColumns)
	_, err := s.db.ExecContext(ctx, query,
		record.Id, string(record.Kind), record.CodeId, record.Code, record.UserId,
		truncate(record.UserAgent, 512), record.IpAddress, string(record.Action), record.UsedAt,
		record.FileCount, record.TableNumber, record.FileId, record.Overshoot,
	)
	return err
}

// ListUsage returns usage records for a code, newest first. limit <= 0 means all.
func (s *MySql) ListUsage(ctx context.Context, kind entity.Kind, code string, limit int) ([]*entity.UsageRecord, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	table := s.table(usageCollection(kind))
	stmt, err := s.prepareStmt(ctx, "listUsage:"+table, fmt.Sprintf(
		`SELECT %s FROM %s WHERE code = ? ORDER BY used_at DESC, id DESC LIMIT ?`, usageColumns, table))
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, code, limit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	records := make([]*entity.UsageRecord, 0)
	for rows.Next() {
		var r entity.UsageRecord
		var kindValue, action string
		if err = rows.Scan(
			&r.Id, &kindValue, &r.CodeId, &r.Code, &r.UserId, &r.UserAgent, &r.IpAddress, &action,
			&r.UsedAt, &r.FileCount, &r.TableNumber, &r.FileId, &r.Overshoot,
		); err != nil {
			return nil, err
		}
		r.Kind = entity.Kind(kindValue)
		r.Action = entity.Action(action)
		records = append(records, &r)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCode(row rowScanner) (*entity.AccessCode, error) {
	var (
		r                              entity.AccessCode
		kind, allowed                  string
		maxUses, maxFiles, maxFileSize sql.NullInt64
		expiresAt, lastUsedAt          sql.NullTime
	)
	err := row.Scan(
		&r.Id, &kind, &r.Code, &r.Name, &r.Description, &r.IsActive, &maxUses, &r.CurrentUses,
		&expiresAt, &r.CreatedAt, &r.CreatedBy, &lastUsedAt, &maxFiles, &maxFileSize, &allowed,
		&r.TableCount, &r.CurrentFiles,
	)
	if err != nil {
		return nil, err
	}
	r.Kind = entity.Kind(kind)
	r.MaxUses = nullInt(maxUses)
	r.MaxFiles = nullInt(maxFiles)
	r.MaxFileSize = nullInt(maxFileSize)
	r.ExpiresAt = nullTime(expiresAt)
	r.LastUsedAt = nullTime(lastUsedAt)
	if allowed != "" && allowed != "null" {
		if err = json.Unmarshal([]byte(allowed), &r.AllowedTypes); err != nil {
			return nil, fmt.Errorf("allowed_types: %w", err)
		}
	}
	return &r, nil
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func rowError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("mysql: %w", err)
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateEntry
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
