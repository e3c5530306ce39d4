package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"mailgate/entity"
	"mailgate/internal/config"
)

const duplicateEntryCode = 1062

// MySql is the durable store, the system of record for tokens, users and the
// audit trail. Every invariant-bearing decision traces back to it: email
// uniqueness rides on the unique key of users.email, the token-use bound on
// a conditional update checked by affected-row count.
type MySql struct {
	db *sql.DB
}

func NewStore(conf *config.Config) (*MySql, error) {
	connectionURI := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		conf.MySql.UserName, conf.MySql.Password, conf.MySql.HostName, conf.MySql.Port, conf.MySql.Database)
	db, err := sql.Open("mysql", connectionURI)
	if err != nil {
		return nil, fmt.Errorf("sql connect: %w", err)
	}

	// try to ping three times with a 10-second interval; wait for a database to start
	for i := 0; i < 3; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		if i == 2 {
			return nil, fmt.Errorf("ping database: %w", err)
		}
		time.Sleep(10 * time.Second)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	s := &MySql{db: db}
	if err = s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MySql) Close() {
	_ = s.db.Close()
}

func (s *MySql) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tokens (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			max_uses INT NOT NULL,
			used INT NOT NULL DEFAULT 0,
			status VARCHAR(16) NOT NULL DEFAULT 'active',
			created_by VARCHAR(64) NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			last_use DATETIME NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			email VARCHAR(255) NOT NULL,
			local_part VARCHAR(64) NOT NULL,
			domain VARCHAR(255) NOT NULL,
			token_id VARCHAR(64) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'active',
			storage_prefix VARCHAR(128) NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			UNIQUE KEY uq_users_email (email)
		)`,
		`CREATE TABLE IF NOT EXISTS audit (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			actor VARCHAR(255) NOT NULL,
			action VARCHAR(32) NOT NULL,
			target VARCHAR(64) NOT NULL,
			result VARCHAR(32) NOT NULL,
			ip VARCHAR(64) NOT NULL DEFAULT '',
			ts VARCHAR(32) NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == duplicateEntryCode
}

func (s *MySql) CreateToken(ctx context.Context, token *entity.Token) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tokens (id, max_uses, used, status, created_by, created_at) VALUES (?,?,?,?,?,?)`,
		token.ID, token.MaxUses, token.Used, string(token.Status), token.CreatedBy, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// GetToken returns nil,nil when the token does not exist.
func (s *MySql) GetToken(ctx context.Context, id string) (*entity.Token, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, max_uses, used, status, created_by, created_at, last_use FROM tokens WHERE id=?`, id)
	return scanToken(row)
}

func scanToken(row *sql.Row) (*entity.Token, error) {
	var token entity.Token
	var status string
	var lastUse sql.NullTime
	err := row.Scan(&token.ID, &token.MaxUses, &token.Used, &status,
		&token.CreatedBy, &token.CreatedAt, &lastUse)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select token: %w", err)
	}
	token.Status = entity.TokenStatus(status)
	if lastUse.Valid {
		token.LastUse = &lastUse.Time
	}
	return &token, nil
}

// DisableToken is the administrative active→disabled transition. There is no
// way back; re-enabling a token is not part of this design.
func (s *MySql) DisableToken(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tokens SET status='disabled' WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("disable token: %w", err)
	}
	return nil
}

// GetUserByEmail returns nil,nil when no user holds the address.
func (s *MySql) GetUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, local_part, domain, token_id, status, storage_prefix, created_at
		 FROM users WHERE email=?`, email)
	var user entity.User
	err := row.Scan(&user.ID, &user.Email, &user.LocalPart, &user.Domain,
		&user.TokenID, &user.Status, &user.StoragePrefix, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &user, nil
}

// RegisterUser inserts the user and consumes one token use in a single
// transaction. The unique key on email signals entity.ErrUserExists; the
// conditional update affecting zero rows means the last use was taken (or
// the token disabled) between validation and commit, and the whole
// registration rolls back.
func (s *MySql) RegisterUser(ctx context.Context, user *entity.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, local_part, domain, token_id, status, storage_prefix, created_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		user.ID, user.Email, user.LocalPart, user.Domain, user.TokenID,
		user.Status, user.StoragePrefix, user.CreatedAt)
	if isDuplicateEntry(err) {
		return entity.ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE tokens SET used=used+1, last_use=? WHERE id=? AND status='active' AND used<max_uses`,
		user.CreatedAt, user.TokenID)
	if err != nil {
		return fmt.Errorf("consume token use: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume token use: %w", err)
	}
	if affected == 0 {
		// distinguish a concurrent disable from a drained token
		var status string
		err = tx.QueryRowContext(ctx, `SELECT status FROM tokens WHERE id=?`, user.TokenID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return entity.ErrTokenUnknown
		}
		if err == nil && status != string(entity.TokenActive) {
			return entity.ErrTokenDisabled
		}
		return entity.ErrTokenExhausted
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AppendAudit writes one audit row. Callers treat failures as non-fatal.
func (s *MySql) AppendAudit(ctx context.Context, e *entity.AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit (id, actor, action, target, result, ip, ts) VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.Actor, e.Action, e.Target, e.Result, e.IP, e.TS)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}
