package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"registration-gateway/internal/config"
	"registration-gateway/internal/logger"
	"registration-gateway/internal/models"

	_ "github.com/go-sql-driver/mysql"
)

type MySQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

type txKey struct{}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func NewMySQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*MySQLStore, error) {
	log.LogDatabase("CONNECT", "mysql", fmt.Sprintf("Connecting to MySQL at %s:%s", cfg.Host, cfg.Port))

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Error("DATABASE", "Failed to open MySQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping MySQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &MySQLStore{db: db, log: log}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.LogDatabase("SUCCESS", "mysql", "MySQL connection established and tables initialized")
	return store, nil
}

func (s *MySQLStore) initTables() error {
	s.log.LogDatabase("MIGRATE", "mysql", "Creating tables if not exist")

	statements := []string{
		`CREATE TABLE IF NOT EXISTS registration_groups (
			group_id VARCHAR(36) PRIMARY KEY,
			code VARCHAR(16) NOT NULL UNIQUE,
			contact_name VARCHAR(120) NOT NULL,
			contact_email VARCHAR(120) NOT NULL,
			contact_phone VARCHAR(20) NOT NULL,
			national_id VARCHAR(12) NOT NULL,
			item_count INT NOT NULL,
			payment_method VARCHAR(20) NOT NULL,
			payment_status VARCHAR(20) NOT NULL,
			bank_code VARCHAR(4),
			amount DECIMAL(10,2) NOT NULL,
			reserved_until TIMESTAMP NOT NULL,
			confirmed_by VARCHAR(120),
			confirmed_at TIMESTAMP NULL,
			reject_reason VARCHAR(255),
			deferred_items TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_status (payment_status),
			INDEX idx_reserved_until (reserved_until)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS registration_items (
			item_id VARCHAR(36) PRIMARY KEY,
			group_id VARCHAR(36) NOT NULL,
			participant_name VARCHAR(120) NOT NULL,
			size VARCHAR(8) NOT NULL,
			gender VARCHAR(8) NOT NULL,
			payment_status VARCHAR(20) NOT NULL,
			number VARCHAR(8) UNIQUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_group (group_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS inventory_units (
			size VARCHAR(8) NOT NULL,
			gender VARCHAR(8) NOT NULL,
			capacity INT NOT NULL,
			reserved INT NOT NULL DEFAULT 0,
			sold INT NOT NULL DEFAULT 0,
			PRIMARY KEY (size, gender)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS reservations (
			reservation_id VARCHAR(36) PRIMARY KEY,
			group_id VARCHAR(36) NOT NULL,
			item_id VARCHAR(36) NOT NULL,
			size VARCHAR(8) NOT NULL,
			gender VARCHAR(8) NOT NULL,
			status VARCHAR(16) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_group_status (group_id, status)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS payment_transactions (
			transaction_id VARCHAR(36) PRIMARY KEY,
			group_id VARCHAR(36) NOT NULL,
			method VARCHAR(20) NOT NULL,
			reference VARCHAR(64),
			control VARCHAR(32),
			auth_id VARCHAR(32),
			result_code VARCHAR(4),
			amount DECIMAL(10,2) NOT NULL,
			status VARCHAR(16) NOT NULL,
			voucher TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_group (group_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS sequence_counter (
			id INT PRIMARY KEY,
			value BIGINT NOT NULL
		) ENGINE=InnoDB`,
		`INSERT IGNORE INTO sequence_counter (id, value) VALUES (1, 0)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	s.log.LogDatabase("SUCCESS", "mysql", "Tables ready")
	return nil
}

// conn returns the transaction carried by ctx, or the pooled connection.
func (s *MySQLStore) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithTx runs fn inside a transaction carried through the context. Nested
// calls join the outer transaction.
func (s *MySQLStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error("DATABASE", "Rollback failed: "+rbErr.Error())
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *MySQLStore) SaveGroup(ctx context.Context, group *models.Group) error {
	s.log.LogDatabase("INSERT", "registration_groups", fmt.Sprintf("Saving group %s", group.GroupID))

	deferred, err := marshalDeferred(group.Deferred)
	if err != nil {
		return err
	}

	query := `
    INSERT INTO registration_groups (
        group_id, code, contact_name, contact_email, contact_phone, national_id,
        item_count, payment_method, payment_status, bank_code, amount,
        reserved_until, deferred_items, created_at, updated_at
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	_, err = s.conn(ctx).ExecContext(ctx, query,
		group.GroupID, group.Code, group.ContactName, group.ContactEmail,
		group.ContactPhone, group.NationalID, group.ItemCount,
		group.PaymentMethod, group.PaymentStatus, group.BankCode, group.Amount,
		group.ReservedUntil, deferred, group.CreatedAt, group.UpdatedAt,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save group %s: %s", group.GroupID, err.Error()))
		return fmt.Errorf("failed to save group: %w", err)
	}
	return nil
}

const groupColumns = `group_id, code, contact_name, contact_email, contact_phone, national_id,
        item_count, payment_method, payment_status, bank_code, amount,
        reserved_until, confirmed_by, confirmed_at, reject_reason, deferred_items, created_at, updated_at`

func (s *MySQLStore) scanGroup(row *sql.Row) (*models.Group, error) {
	group := &models.Group{}
	var bankCode, confirmedBy, rejectReason, deferred sql.NullString
	var confirmedAt sql.NullTime

	err := row.Scan(
		&group.GroupID, &group.Code, &group.ContactName, &group.ContactEmail,
		&group.ContactPhone, &group.NationalID, &group.ItemCount,
		&group.PaymentMethod, &group.PaymentStatus, &bankCode, &group.Amount,
		&group.ReservedUntil, &confirmedBy, &confirmedAt, &rejectReason,
		&deferred, &group.CreatedAt, &group.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	group.BankCode = bankCode.String
	group.ConfirmedBy = confirmedBy.String
	group.RejectReason = rejectReason.String
	if confirmedAt.Valid {
		t := confirmedAt.Time
		group.ConfirmedAt = &t
	}
	if deferred.Valid && deferred.String != "" {
		if err := json.Unmarshal([]byte(deferred.String), &group.Deferred); err != nil {
			return nil, fmt.Errorf("failed to decode deferred items: %w", err)
		}
	}
	return group, nil
}

func (s *MySQLStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM registration_groups WHERE group_id = ?`
	return s.scanGroup(s.conn(ctx).QueryRowContext(ctx, query, groupID))
}

func (s *MySQLStore) GetGroupByCode(ctx context.Context, code string) (*models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM registration_groups WHERE code = ?`
	return s.scanGroup(s.conn(ctx).QueryRowContext(ctx, query, code))
}

func (s *MySQLStore) UpdateGroupStatus(ctx context.Context, groupID string, from []models.PaymentStatus, to models.PaymentStatus, by, reason string, at time.Time) (bool, error) {
	s.log.LogDatabase("UPDATE", "registration_groups", fmt.Sprintf("Transitioning group %s to %s", groupID, to))

	placeholders := make([]string, len(from))
	args := []interface{}{to, at}

	set := "payment_status = ?, updated_at = ?"
	switch to {
	case models.StatusConfirmed:
		set += ", confirmed_by = ?, confirmed_at = ?"
		args = append(args, by, at)
	case models.StatusRejected:
		set += ", reject_reason = ?"
		args = append(args, reason)
	}

	args = append(args, groupID)
	for i, st := range from {
		placeholders[i] = "?"
		args = append(args, st)
	}

	query := fmt.Sprintf(
		"UPDATE registration_groups SET %s WHERE group_id = ? AND payment_status IN (%s)",
		set, strings.Join(placeholders, ", "),
	)

	res, err := s.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to transition group %s: %s", groupID, err.Error()))
		return false, fmt.Errorf("failed to update group status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

func (s *MySQLStore) ClearDeferred(ctx context.Context, groupID string) error {
	query := `UPDATE registration_groups SET deferred_items = NULL WHERE group_id = ?`
	if _, err := s.conn(ctx).ExecContext(ctx, query, groupID); err != nil {
		return fmt.Errorf("failed to clear deferred items: %w", err)
	}
	return nil
}

func (s *MySQLStore) DeleteGroup(ctx context.Context, groupID string) error {
	s.log.LogDatabase("DELETE", "registration_groups", fmt.Sprintf("Deleting group %s", groupID))

	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM registration_groups WHERE group_id = ?`, groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (s *MySQLStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.Group, error) {
	query := `SELECT ` + groupColumns + `
    FROM registration_groups
    WHERE payment_status = ? AND reserved_until < ?
    ORDER BY reserved_until ASC
    LIMIT ?`

	rows, err := s.conn(ctx).QueryContext(ctx, query, models.StatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		group := &models.Group{}
		var bankCode, confirmedBy, rejectReason, deferred sql.NullString
		var confirmedAt sql.NullTime

		err := rows.Scan(
			&group.GroupID, &group.Code, &group.ContactName, &group.ContactEmail,
			&group.ContactPhone, &group.NationalID, &group.ItemCount,
			&group.PaymentMethod, &group.PaymentStatus, &bankCode, &group.Amount,
			&group.ReservedUntil, &confirmedBy, &confirmedAt, &rejectReason,
			&deferred, &group.CreatedAt, &group.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		group.BankCode = bankCode.String
		if deferred.Valid && deferred.String != "" {
			if err := json.Unmarshal([]byte(deferred.String), &group.Deferred); err != nil {
				return nil, fmt.Errorf("failed to decode deferred items: %w", err)
			}
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

func (s *MySQLStore) SaveItems(ctx context.Context, items []*models.Item) error {
	query := `
    INSERT INTO registration_items (item_id, group_id, participant_name, size, gender, payment_status, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?)
    `
	for _, item := range items {
		_, err := s.conn(ctx).ExecContext(ctx, query,
			item.ItemID, item.GroupID, item.ParticipantName, item.Size,
			item.Gender, item.PaymentStatus, item.CreatedAt,
		)
		if err != nil {
			s.log.Error("DATABASE", fmt.Sprintf("Failed to save item %s: %s", item.ItemID, err.Error()))
			return fmt.Errorf("failed to save item: %w", err)
		}
	}
	return nil
}

func (s *MySQLStore) GetItems(ctx context.Context, groupID string) ([]*models.Item, error) {
	query := `
    SELECT item_id, group_id, participant_name, size, gender, payment_status, number, created_at
    FROM registration_items WHERE group_id = ? ORDER BY created_at, item_id
    `
	rows, err := s.conn(ctx).QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item := &models.Item{}
		var number sql.NullString
		if err := rows.Scan(&item.ItemID, &item.GroupID, &item.ParticipantName,
			&item.Size, &item.Gender, &item.PaymentStatus, &number, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		item.Number = number.String
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *MySQLStore) UpdateItemsStatus(ctx context.Context, groupID string, status models.PaymentStatus) error {
	query := `UPDATE registration_items SET payment_status = ? WHERE group_id = ?`
	if _, err := s.conn(ctx).ExecContext(ctx, query, status, groupID); err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}
	return nil
}

func (s *MySQLStore) AssignNumber(ctx context.Context, itemID, number string) error {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE registration_items SET number = ? WHERE item_id = ? AND number IS NULL`, number, itemID)
	if err != nil {
		return fmt.Errorf("failed to assign number: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (s *MySQLStore) DeleteItems(ctx context.Context, groupID string) error {
	if _, err := s.conn(ctx).ExecContext(ctx,
		`DELETE FROM registration_items WHERE group_id = ?`, groupID); err != nil {
		return fmt.Errorf("failed to delete items: %w", err)
	}
	return nil
}

func (s *MySQLStore) SaveInventoryUnit(ctx context.Context, unit *models.InventoryUnit) error {
	query := `
    INSERT INTO inventory_units (size, gender, capacity, reserved, sold)
    VALUES (?, ?, ?, ?, ?)
    ON DUPLICATE KEY UPDATE capacity = VALUES(capacity)
    `
	if _, err := s.conn(ctx).ExecContext(ctx, query,
		unit.Size, unit.Gender, unit.Capacity, unit.Reserved, unit.Sold); err != nil {
		return fmt.Errorf("failed to save inventory unit: %w", err)
	}
	return nil
}

func (s *MySQLStore) getInventory(ctx context.Context, cat models.Category, forUpdate bool) (*models.InventoryUnit, error) {
	query := `SELECT size, gender, capacity, reserved, sold FROM inventory_units WHERE size = ? AND gender = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	unit := &models.InventoryUnit{}
	err := s.conn(ctx).QueryRowContext(ctx, query, cat.Size, cat.Gender).Scan(
		&unit.Size, &unit.Gender, &unit.Capacity, &unit.Reserved, &unit.Sold)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInventoryNotFound
		}
		return nil, fmt.Errorf("failed to get inventory unit: %w", err)
	}
	return unit, nil
}

func (s *MySQLStore) GetInventory(ctx context.Context, cat models.Category) (*models.InventoryUnit, error) {
	return s.getInventory(ctx, cat, false)
}

func (s *MySQLStore) GetInventoryForUpdate(ctx context.Context, cat models.Category) (*models.InventoryUnit, error) {
	return s.getInventory(ctx, cat, true)
}

func (s *MySQLStore) UpdateInventoryCounts(ctx context.Context, unit *models.InventoryUnit) error {
	query := `UPDATE inventory_units SET reserved = ?, sold = ? WHERE size = ? AND gender = ?`
	if _, err := s.conn(ctx).ExecContext(ctx, query,
		unit.Reserved, unit.Sold, unit.Size, unit.Gender); err != nil {
		return fmt.Errorf("failed to update inventory counts: %w", err)
	}
	return nil
}

func (s *MySQLStore) SaveReservations(ctx context.Context, reservations []*models.Reservation) error {
	query := `
    INSERT INTO reservations (reservation_id, group_id, item_id, size, gender, status, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?)
    `
	for _, r := range reservations {
		if _, err := s.conn(ctx).ExecContext(ctx, query,
			r.ReservationID, r.GroupID, r.ItemID, r.Size, r.Gender, r.Status, r.CreatedAt); err != nil {
			return fmt.Errorf("failed to save reservation: %w", err)
		}
	}
	return nil
}

func (s *MySQLStore) GetReservations(ctx context.Context, groupID string, status models.ReservationStatus) ([]*models.Reservation, error) {
	query := `
    SELECT reservation_id, group_id, item_id, size, gender, status, created_at
    FROM reservations WHERE group_id = ? AND status = ?
    `
	rows, err := s.conn(ctx).QueryContext(ctx, query, groupID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	var reservations []*models.Reservation
	for rows.Next() {
		r := &models.Reservation{}
		if err := rows.Scan(&r.ReservationID, &r.GroupID, &r.ItemID,
			&r.Size, &r.Gender, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

func (s *MySQLStore) UpdateReservationsStatus(ctx context.Context, ids []string, from, to models.ReservationStatus) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := []interface{}{to}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	args = append(args, from)

	query := fmt.Sprintf(
		"UPDATE reservations SET status = ? WHERE reservation_id IN (%s) AND status = ?",
		strings.Join(placeholders, ", "),
	)

	res, err := s.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update reservations: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(affected), nil
}

func (s *MySQLStore) NextSequence(ctx context.Context, count int) (int64, error) {
	var current int64
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT value FROM sequence_counter WHERE id = 1 FOR UPDATE`).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence counter: %w", err)
	}

	if _, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE sequence_counter SET value = ? WHERE id = 1`, current+int64(count)); err != nil {
		return 0, fmt.Errorf("failed to advance sequence counter: %w", err)
	}

	return current + 1, nil
}

func (s *MySQLStore) SaveTransaction(ctx context.Context, tx *models.PaymentTransaction) error {
	s.log.LogDatabase("INSERT", "payment_transactions", fmt.Sprintf("Saving transaction %s for group %s", tx.TransactionID, tx.GroupID))

	query := `
    INSERT INTO payment_transactions (
        transaction_id, group_id, method, reference, control, auth_id,
        result_code, amount, status, voucher, created_at
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := s.conn(ctx).ExecContext(ctx, query,
		tx.TransactionID, tx.GroupID, tx.Method, tx.Reference, tx.Control,
		tx.AuthID, tx.ResultCode, tx.Amount, tx.Status, tx.Voucher, tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

func (s *MySQLStore) UpdateTransaction(ctx context.Context, tx *models.PaymentTransaction) error {
	query := `
    UPDATE payment_transactions
    SET control = ?, auth_id = ?, result_code = ?, status = ?, voucher = ?
    WHERE transaction_id = ?
    `
	_, err := s.conn(ctx).ExecContext(ctx, query,
		tx.Control, tx.AuthID, tx.ResultCode, tx.Status, tx.Voucher, tx.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}

func (s *MySQLStore) ListTransactions(ctx context.Context, groupID string) ([]*models.PaymentTransaction, error) {
	query := `
    SELECT transaction_id, group_id, method, reference, control, auth_id,
           result_code, amount, status, voucher, created_at
    FROM payment_transactions WHERE group_id = ? ORDER BY created_at DESC
    `
	rows, err := s.conn(ctx).QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*models.PaymentTransaction
	for rows.Next() {
		tx := &models.PaymentTransaction{}
		var reference, control, authID, resultCode, voucher sql.NullString
		if err := rows.Scan(&tx.TransactionID, &tx.GroupID, &tx.Method,
			&reference, &control, &authID, &resultCode,
			&tx.Amount, &tx.Status, &voucher, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Reference = reference.String
		tx.Control = control.String
		tx.AuthID = authID.String
		tx.ResultCode = resultCode.String
		tx.Voucher = voucher.String
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *MySQLStore) Close() error {
	s.log.LogDatabase("CLOSE", "mysql", "Closing MySQL connection")
	return s.db.Close()
}

func (s *MySQLStore) HealthCheck() error {
	return s.db.Ping()
}

func marshalDeferred(items []models.PendingItem) (interface{}, error) {
	if len(items) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode deferred items: %w", err)
	}
	return string(data), nil
}
