package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"kasirledger/internal/domain"
	"kasirledger/internal/store"
	"kasirledger/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse DATABASE_URL: %w", err)
	}
	cfg.MaxConns = 30
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// UpsertProduct loads a catalogue entry; the catalogue itself is owned elsewhere.
func (s *Store) UpsertProduct(ctx context.Context, p domain.Product) error {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.SKU) == "" {
		return store.ErrInvalidTransaction
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (id, sku, name, price, min_stock, taxable, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id)
		DO UPDATE SET sku = EXCLUDED.sku, name = EXCLUDED.name, price = EXCLUDED.price,
			min_stock = EXCLUDED.min_stock, taxable = EXCLUDED.taxable, active = EXCLUDED.active
	`, p.ID, p.SKU, p.Name, p.Price, p.MinStock, p.Taxable, p.Active)
	return err
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = pgTx.Rollback(ctx) }()

	if err := fn(&txHandle{tx: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, sku, name, price, min_stock, taxable, active
		FROM products
		WHERE id = ANY($1) AND active = true
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.MinStock, &p.Taxable, &p.Active); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (s *Store) GetActiveShift(ctx context.Context, outletID string) (*domain.Shift, error) {
	var shift domain.Shift
	err := s.pool.QueryRow(ctx, `
		SELECT id, outlet_id, cashier_id, status, opened_at, closed_at
		FROM shifts
		WHERE outlet_id = $1 AND status = $2
	`, outletID, domain.ShiftStatusOpen).Scan(
		&shift.ID, &shift.OutletID, &shift.CashierID, &shift.Status, &shift.OpenedAt, &shift.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &shift, nil
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := loadSale(ctx, s.pool, id, false)
	if err != nil {
		return nil, err
	}
	sales := []domain.Sale{*sale}
	if err := attachLines(ctx, s.pool, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	var where whereBuilder
	if filter.OutletID != "" {
		where.add("outlet_id = $%d", filter.OutletID)
	}
	if filter.Status != "" {
		where.add("status = $%d", filter.Status)
	}
	if !filter.From.IsZero() {
		where.add("sold_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		where.add("sold_at < $%d", filter.To)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		`+where.String()+`
		ORDER BY sold_at
	`, where.args...)
	if err != nil {
		return nil, err
	}
	sales, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Sale, error) {
		var sale domain.Sale
		err := scanSale(row, &sale)
		return sale, err
	})
	if err != nil {
		return nil, err
	}
	if err := attachLines(ctx, s.pool, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetInventory(ctx context.Context, productID string, outletID string) (*domain.InventoryRecord, error) {
	return getInventory(ctx, s.pool, productID, outletID)
}

func getInventory(ctx context.Context, q querier, productID string, outletID string) (*domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	err := q.QueryRow(ctx, `
		SELECT id, product_id, outlet_id, quantity, cost_price, updated_at
		FROM inventory_records
		WHERE product_id = $1 AND outlet_id = $2
	`, productID, outletID).Scan(&rec.ID, &rec.ProductID, &rec.OutletID, &rec.Quantity, &rec.CostPrice, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListStockMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error) {
	var where whereBuilder
	if filter.ProductID != "" {
		where.add("product_id = $%d", filter.ProductID)
	}
	if filter.OutletID != "" {
		where.add("outlet_id = $%d", filter.OutletID)
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 500
	}
	where.args = append(where.args, limit)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, inventory_id, product_id, outlet_id, delta, type, note, actor_id,
			related_sale_id, related_refund_id, created_at
		FROM stock_movements
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d
	`, where.String(), len(where.args)), where.args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StockMovement, error) {
		var m domain.StockMovement
		var saleID, refundID *string
		err := row.Scan(&m.ID, &m.InventoryID, &m.ProductID, &m.OutletID, &m.Delta, &m.Type, &m.Note, &m.ActorID,
			&saleID, &refundID, &m.CreatedAt)
		m.RelatedSaleID = derefString(saleID)
		m.RelatedRefundID = derefString(refundID)
		return m, err
	})
}

func (s *Store) ListLowStockAlerts(ctx context.Context, filter domain.AlertFilter) ([]domain.LowStockAlert, error) {
	var where whereBuilder
	if filter.OutletID != "" {
		where.add("outlet_id = $%d", filter.OutletID)
	}
	if filter.OpenOnly {
		where.clauses = append(where.clauses, "cleared_at IS NULL")
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}
	where.args = append(where.args, limit)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT `+alertColumns+`
		FROM low_stock_alerts
		%s
		ORDER BY triggered_at DESC
		LIMIT $%d
	`, where.String(), len(where.args)), where.args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.LowStockAlert, error) {
		var a domain.LowStockAlert
		err := scanAlert(row, &a)
		return a, err
	})
}

func (s *Store) ListAuditLogs(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLog, error) {
	var where whereBuilder
	if filter.OutletID != "" {
		where.add("outlet_id = $%d", filter.OutletID)
	}
	if filter.Action != "" {
		where.add("action = $%d", filter.Action)
	}
	if !filter.From.IsZero() {
		where.add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		where.add("created_at < $%d", filter.To)
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}
	where.args = append(where.args, limit)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, action, actor_id, outlet_id, entity_type, entity_id, details, created_at
		FROM audit_logs
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d
	`, where.String(), len(where.args)), where.args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AuditLog, error) {
		var entry domain.AuditLog
		err := row.Scan(&entry.ID, &entry.Action, &entry.ActorID, &entry.OutletID, &entry.EntityType, &entry.EntityID,
			&entry.Details, &entry.CreatedAt)
		return entry, err
	})
}

// txHandle implements store.Tx on top of a pgx transaction.
type txHandle struct {
	tx pgx.Tx
}

func (t *txHandle) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := t.tx.QueryRow(ctx, `
		SELECT id, sku, name, price, min_stock, taxable, active
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.MinStock, &p.Taxable, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (t *txHandle) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.OutletID) == "" || strings.TrimSpace(shift.CashierID) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.ClosedAt = nil

	_, err := t.tx.Exec(ctx, `
		INSERT INTO shifts (id, outlet_id, cashier_id, status, opened_at)
		VALUES ($1,$2,$3,$4,$5)
	`, shift.ID, shift.OutletID, shift.CashierID, shift.Status, shift.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: shift already open for outlet %s", store.ErrInvalidTransaction, shift.OutletID)
		}
		return nil, err
	}
	return &shift, nil
}

func (t *txHandle) CloseActiveShift(ctx context.Context, outletID string, closedAt time.Time) (*domain.Shift, error) {
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	var shift domain.Shift
	err := t.tx.QueryRow(ctx, `
		UPDATE shifts
		SET status = $2, closed_at = $3
		WHERE outlet_id = $1 AND status = $4
		RETURNING id, outlet_id, cashier_id, status, opened_at, closed_at
	`, outletID, domain.ShiftStatusClosed, closedAt, domain.ShiftStatusOpen).Scan(
		&shift.ID, &shift.OutletID, &shift.CashierID, &shift.Status, &shift.OpenedAt, &shift.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &shift, nil
}

func (t *txHandle) CreateSale(ctx context.Context, sale domain.Sale) error {
	if sale.ID == "" || sale.ReceiptNumber == "" || len(sale.Items) == 0 {
		return store.ErrInvalidTransaction
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO sales (
			id, receipt_number, outlet_id, cashier_id, shift_id,
			total_gross, total_discount, manual_discount, tax_rate_percent, tax_amount, total_net,
			status, sold_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sale.ID, sale.ReceiptNumber, sale.OutletID, sale.CashierID, sale.ShiftID,
		sale.TotalGross, sale.TotalDiscount, sale.ManualDiscount, sale.TaxRatePercent, sale.TaxAmount, sale.TotalNet,
		sale.Status, sale.SoldAt, sale.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", store.ErrDuplicateReceipt, sale.ReceiptNumber)
		}
		return err
	}

	batch := &pgx.Batch{}
	for i, item := range sale.Items {
		batch.Queue(`
			INSERT INTO sale_line_items (id, sale_id, position, product_id, quantity, unit_price, line_discount, tax_amount, line_total)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, item.ID, sale.ID, i, item.ProductID, item.Quantity, item.UnitPrice, item.LineDiscount, item.TaxAmount, item.LineTotal)
	}
	for i, payment := range sale.Payments {
		batch.Queue(`
			INSERT INTO payments (id, sale_id, position, method, amount, reference)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, payment.ID, sale.ID, i, payment.Method, payment.Amount, nullIfEmpty(payment.Reference))
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txHandle) LockSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := loadSale(ctx, t.tx, id, true)
	if err != nil {
		return nil, err
	}
	sales := []domain.Sale{*sale}
	if err := attachLines(ctx, t.tx, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func (t *txHandle) UpdateSaleStatus(ctx context.Context, id string, from string, to string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE sales
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`, id, from, to, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrStatusChanged
	}
	return nil
}

func (t *txHandle) HasRefund(ctx context.Context, saleID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM refunds WHERE sale_id = $1)`, saleID).Scan(&exists)
	return exists, err
}

func (t *txHandle) CreateRefund(ctx context.Context, refund domain.Refund) error {
	if refund.ID == "" || refund.SaleID == "" {
		return store.ErrInvalidTransaction
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO refunds (id, sale_id, amount, reason, approved_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, refund.ID, refund.SaleID, refund.Amount, refund.Reason, refund.ApprovedBy, refund.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrRefundExists
		}
		return err
	}

	batch := &pgx.Batch{}
	for _, item := range refund.Items {
		batch.Queue(`
			INSERT INTO refund_line_items (id, refund_id, sale_line_item_id, product_id, quantity)
			VALUES ($1,$2,$3,$4,$5)
		`, item.ID, refund.ID, item.SaleLineItemID, item.ProductID, item.Quantity)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txHandle) AdjustInventory(ctx context.Context, productID string, outletID string, delta int, costPrice decimal.NullDecimal, at time.Time) (*domain.InventoryRecord, error) {
	if productID == "" || outletID == "" || delta == 0 {
		return nil, store.ErrInvalidTransaction
	}

	var rec domain.InventoryRecord
	err := t.tx.QueryRow(ctx, `
		INSERT INTO inventory_records (id, product_id, outlet_id, quantity, cost_price, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (product_id, outlet_id)
		DO UPDATE SET
			quantity = inventory_records.quantity + EXCLUDED.quantity,
			cost_price = COALESCE(EXCLUDED.cost_price, inventory_records.cost_price),
			updated_at = EXCLUDED.updated_at
		RETURNING id, product_id, outlet_id, quantity, cost_price, updated_at
	`, xid.New("inv"), productID, outletID, delta, costPrice, at).Scan(
		&rec.ID, &rec.ProductID, &rec.OutletID, &rec.Quantity, &rec.CostPrice, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (t *txHandle) GetInventory(ctx context.Context, productID string, outletID string) (*domain.InventoryRecord, error) {
	return getInventory(ctx, t.tx, productID, outletID)
}

func (t *txHandle) AppendStockMovement(ctx context.Context, m domain.StockMovement) error {
	if m.ID == "" || m.Delta == 0 {
		return store.ErrInvalidTransaction
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stock_movements (
			id, inventory_id, product_id, outlet_id, delta, type, note, actor_id,
			related_sale_id, related_refund_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, m.ID, m.InventoryID, m.ProductID, m.OutletID, m.Delta, m.Type, m.Note, m.ActorID,
		nullIfEmpty(m.RelatedSaleID), nullIfEmpty(m.RelatedRefundID), m.CreatedAt)
	return err
}

func (t *txHandle) FindAlertForDay(ctx context.Context, productID string, outletID string, dayStart time.Time, dayEnd time.Time) (*domain.LowStockAlert, error) {
	var a domain.LowStockAlert
	err := scanAlert(t.tx.QueryRow(ctx, `
		SELECT `+alertColumns+`
		FROM low_stock_alerts
		WHERE product_id = $1 AND outlet_id = $2 AND triggered_at >= $3 AND triggered_at < $4
		ORDER BY triggered_at DESC
		LIMIT 1
	`, productID, outletID, dayStart, dayEnd), &a)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (t *txHandle) CreateAlert(ctx context.Context, a domain.LowStockAlert) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO low_stock_alerts (id, product_id, outlet_id, alert_day, triggered_at, cleared_at, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, a.ID, a.ProductID, a.OutletID, a.AlertDay, a.TriggeredAt, a.ClearedAt, a.Note)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: alert already exists for day", store.ErrInvalidTransaction)
	}
	return err
}

func (t *txHandle) UpdateAlert(ctx context.Context, a domain.LowStockAlert) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE low_stock_alerts
		SET triggered_at = $2, cleared_at = $3, note = $4
		WHERE id = $1
	`, a.ID, a.TriggeredAt, a.ClearedAt, a.Note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *txHandle) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" || entry.Action == "" {
		return store.ErrInvalidTransaction
	}
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO audit_logs (id, action, actor_id, outlet_id, entity_type, entity_id, details, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.Action, entry.ActorID, entry.OutletID, entry.EntityType, entry.EntityID, details, entry.CreatedAt)
	return err
}

const saleColumns = `id, receipt_number, outlet_id, cashier_id, shift_id,
	total_gross, total_discount, manual_discount, tax_rate_percent, tax_amount, total_net,
	status, sold_at, updated_at`

const alertColumns = `id, product_id, outlet_id, alert_day, triggered_at, cleared_at, note`

func scanSale(row pgx.Row, sale *domain.Sale) error {
	return row.Scan(&sale.ID, &sale.ReceiptNumber, &sale.OutletID, &sale.CashierID, &sale.ShiftID,
		&sale.TotalGross, &sale.TotalDiscount, &sale.ManualDiscount, &sale.TaxRatePercent, &sale.TaxAmount, &sale.TotalNet,
		&sale.Status, &sale.SoldAt, &sale.UpdatedAt)
}

func scanAlert(row pgx.Row, a *domain.LowStockAlert) error {
	return row.Scan(&a.ID, &a.ProductID, &a.OutletID, &a.AlertDay, &a.TriggeredAt, &a.ClearedAt, &a.Note)
}

func loadSale(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var sale domain.Sale
	if err := scanSale(q.QueryRow(ctx, query, id), &sale); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

// attachLines fills Items and Payments for every sale in place.
func attachLines(ctx context.Context, q querier, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sales))
	index := make(map[string]int, len(sales))
	for i := range sales {
		ids = append(ids, sales[i].ID)
		index[sales[i].ID] = i
		sales[i].Items = make([]domain.SaleLineItem, 0, 4)
		sales[i].Payments = make([]domain.Payment, 0, 1)
	}

	itemRows, err := q.Query(ctx, `
		SELECT id, sale_id, product_id, quantity, unit_price, line_discount, tax_amount, line_total
		FROM sale_line_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, position
	`, ids)
	if err != nil {
		return err
	}
	items, err := pgx.CollectRows(itemRows, func(row pgx.CollectableRow) (domain.SaleLineItem, error) {
		var item domain.SaleLineItem
		err := row.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Quantity, &item.UnitPrice,
			&item.LineDiscount, &item.TaxAmount, &item.LineTotal)
		return item, err
	})
	if err != nil {
		return err
	}
	for _, item := range items {
		i := index[item.SaleID]
		sales[i].Items = append(sales[i].Items, item)
	}

	paymentRows, err := q.Query(ctx, `
		SELECT id, sale_id, method, amount, reference
		FROM payments
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, position
	`, ids)
	if err != nil {
		return err
	}
	payments, err := pgx.CollectRows(paymentRows, func(row pgx.CollectableRow) (domain.Payment, error) {
		var p domain.Payment
		var reference *string
		err := row.Scan(&p.ID, &p.SaleID, &p.Method, &p.Amount, &reference)
		p.Reference = derefString(reference)
		return p, err
	})
	if err != nil {
		return err
	}
	for _, p := range payments {
		i := index[p.SaleID]
		sales[i].Payments = append(sales[i].Payments, p)
	}
	return nil
}

type whereBuilder struct {
	clauses []string
	args    []any
}

// add appends a clause whose single %d verb receives the next placeholder index.
func (w *whereBuilder) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.clauses, " AND ")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func derefString(val *string) string {
	if val == nil {
		return ""
	}
	return *val
}
