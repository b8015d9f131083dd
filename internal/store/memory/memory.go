package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"kasirledger/internal/domain"
	"kasirledger/internal/store"
	"kasirledger/internal/xid"
)

const DefaultOutletID = "main-store"

// Store keeps the whole ledger in process memory. WithTx runs the callback
// against a private copy of the state and swaps it in only on success, so a
// failed callback leaves nothing behind.
type Store struct {
	mu    sync.RWMutex
	state *state
}

type state struct {
	products      map[string]domain.Product
	shiftsByID    map[string]domain.Shift
	activeShift   map[string]string
	salesByID     map[string]domain.Sale
	saleByReceipt map[string]string
	refundsBySale map[string]domain.Refund
	inventory     map[string]domain.InventoryRecord
	movements     []domain.StockMovement
	alerts        []domain.LowStockAlert
	auditLogs     []domain.AuditLog
}

func newState() *state {
	return &state{
		products:      make(map[string]domain.Product),
		shiftsByID:    make(map[string]domain.Shift),
		activeShift:   make(map[string]string),
		salesByID:     make(map[string]domain.Sale),
		saleByReceipt: make(map[string]string),
		refundsBySale: make(map[string]domain.Refund),
		inventory:     make(map[string]domain.InventoryRecord),
		movements:     make([]domain.StockMovement, 0, 128),
		alerts:        make([]domain.LowStockAlert, 0, 16),
		auditLogs:     make([]domain.AuditLog, 0, 128),
	}
}

// clone copies the containers. Sales, movements and audit rows are immutable
// once written, so their nested slices and maps are shared.
func (st *state) clone() *state {
	return &state{
		products:      maps.Clone(st.products),
		shiftsByID:    maps.Clone(st.shiftsByID),
		activeShift:   maps.Clone(st.activeShift),
		salesByID:     maps.Clone(st.salesByID),
		saleByReceipt: maps.Clone(st.saleByReceipt),
		refundsBySale: maps.Clone(st.refundsBySale),
		inventory:     maps.Clone(st.inventory),
		movements:     slices.Clone(st.movements),
		alerts:        slices.Clone(st.alerts),
		auditLogs:     slices.Clone(st.auditLogs),
	}
}

func New() *Store {
	return &Store{state: newState()}
}

// NewSeeded returns a store with a small grocery catalogue and opening stock
// of 120 units per product at DefaultOutletID, recorded as INITIAL movements.
func NewSeeded() *Store {
	products := []domain.Product{
		{ID: "SKU-MIE-01", SKU: "SKU-MIE-01", Name: "Mie Goreng Instan", Price: decimal.NewFromInt(3500), MinStock: 24, Taxable: true, Active: true},
		{ID: "SKU-TELUR-01", SKU: "SKU-TELUR-01", Name: "Telur 10 Butir", Price: decimal.NewFromInt(26500), MinStock: 10, Taxable: false, Active: true},
		{ID: "SKU-SUSU-01", SKU: "SKU-SUSU-01", Name: "Susu UHT 1L", Price: decimal.NewFromInt(18900), MinStock: 12, Taxable: true, Active: true},
		{ID: "SKU-ROTI-01", SKU: "SKU-ROTI-01", Name: "Roti Tawar", Price: decimal.NewFromInt(17800), MinStock: 8, Taxable: true, Active: true},
		{ID: "SKU-KOPI-01", SKU: "SKU-KOPI-01", Name: "Kopi Sachet", Price: decimal.NewFromInt(2600), MinStock: 30, Taxable: true, Active: true},
		{ID: "SKU-GULA-01", SKU: "SKU-GULA-01", Name: "Gula 1kg", Price: decimal.NewFromInt(17400), MinStock: 10, Taxable: false, Active: true},
		{ID: "SKU-TEH-01", SKU: "SKU-TEH-01", Name: "Teh Celup", Price: decimal.NewFromInt(9800), MinStock: 10, Taxable: true, Active: true},
		{ID: "SKU-AIR-01", SKU: "SKU-AIR-01", Name: "Air Mineral 600ml", Price: decimal.NewFromInt(3900), MinStock: 48, Taxable: true, Active: true},
		{ID: "SKU-KERIPIK-01", SKU: "SKU-KERIPIK-01", Name: "Keripik Singkong", Price: decimal.NewFromInt(12800), MinStock: 6, Taxable: true, Active: true},
		{ID: "SKU-COKLAT-01", SKU: "SKU-COKLAT-01", Name: "Coklat Batang", Price: decimal.NewFromInt(8600), MinStock: 6, Taxable: true, Active: true},
		{ID: "SKU-SABUN-01", SKU: "SKU-SABUN-01", Name: "Sabun Mandi", Price: decimal.NewFromInt(7400), MinStock: 0, Taxable: true, Active: true},
		{ID: "SKU-SHAMPOO-01", SKU: "SKU-SHAMPOO-01", Name: "Shampoo Sachet", Price: decimal.NewFromInt(3200), MinStock: 0, Taxable: true, Active: true},
	}

	s := New()
	now := time.Now().UTC()
	for _, p := range products {
		s.state.products[p.ID] = p
		rec, _ := s.state.adjust(p.ID, DefaultOutletID, 120, decimal.NullDecimal{}, now)
		s.state.movements = append(s.state.movements, domain.StockMovement{
			ID:          xid.New("mov"),
			InventoryID: rec.ID,
			ProductID:   p.ID,
			OutletID:    DefaultOutletID,
			Delta:       120,
			Type:        domain.MovementInitial,
			Note:        "stok awal",
			ActorID:     "system",
			CreatedAt:   now,
		})
	}
	return s
}

// PutProduct loads or replaces a catalogue entry.
func (s *Store) PutProduct(product domain.Product) error {
	if strings.TrimSpace(product.ID) == "" {
		return store.ErrInvalidTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.products[product.ID] = product
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.state.products[id]; ok && p.Active {
			out[id] = p
		}
	}
	return out, nil
}

func (s *Store) GetActiveShift(_ context.Context, outletID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.activeShiftFor(outletID)
}

func (s *Store) FindSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.state.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copySale(sale), nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0, 32)
	for _, sale := range s.state.salesByID {
		if filter.OutletID != "" && sale.OutletID != filter.OutletID {
			continue
		}
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && sale.SoldAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !sale.SoldAt.Before(filter.To) {
			continue
		}
		out = append(out, *copySale(sale))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SoldAt.Before(out[j].SoldAt)
	})
	return out, nil
}

func (s *Store) GetInventory(_ context.Context, productID string, outletID string) (*domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.state.inventory[store.InventoryKey(productID, outletID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (s *Store) ListStockMovements(_ context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StockMovement, 0, 32)
	for i := len(s.state.movements) - 1; i >= 0; i-- {
		m := s.state.movements[i]
		if filter.ProductID != "" && m.ProductID != filter.ProductID {
			continue
		}
		if filter.OutletID != "" && m.OutletID != filter.OutletID {
			continue
		}
		out = append(out, m)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListLowStockAlerts(_ context.Context, filter domain.AlertFilter) ([]domain.LowStockAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LowStockAlert, 0, len(s.state.alerts))
	for i := len(s.state.alerts) - 1; i >= 0; i-- {
		a := s.state.alerts[i]
		if filter.OutletID != "" && a.OutletID != filter.OutletID {
			continue
		}
		if filter.OpenOnly && !a.Open() {
			continue
		}
		out = append(out, a)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListAuditLogs(_ context.Context, filter domain.AuditFilter) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLog, 0, 32)
	for i := len(s.state.auditLogs) - 1; i >= 0; i-- {
		entry := s.state.auditLogs[i]
		if filter.OutletID != "" && entry.OutletID != filter.OutletID {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if !filter.From.IsZero() && entry.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !entry.CreatedAt.Before(filter.To) {
			continue
		}
		out = append(out, entry)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// memTx mutates a private state copy; the owning Store lock is held for its
// whole lifetime.
type memTx struct {
	st *state
}

func (t *memTx) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (t *memTx) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.OutletID) == "" || strings.TrimSpace(shift.CashierID) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := t.st.activeShift[shift.OutletID]; exists {
		return nil, fmt.Errorf("%w: shift already open for outlet %s", store.ErrInvalidTransaction, shift.OutletID)
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.ClosedAt = nil

	t.st.shiftsByID[shift.ID] = shift
	t.st.activeShift[shift.OutletID] = shift.ID
	copyShift := shift
	return &copyShift, nil
}

func (t *memTx) CloseActiveShift(_ context.Context, outletID string, closedAt time.Time) (*domain.Shift, error) {
	shift, err := t.st.activeShiftFor(outletID)
	if err != nil {
		return nil, err
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusClosed
	shift.ClosedAt = &closedAt

	delete(t.st.activeShift, outletID)
	t.st.shiftsByID[shift.ID] = *shift
	return shift, nil
}

func (t *memTx) CreateSale(_ context.Context, sale domain.Sale) error {
	if sale.ID == "" || sale.ReceiptNumber == "" || len(sale.Items) == 0 {
		return store.ErrInvalidTransaction
	}
	if _, exists := t.st.saleByReceipt[sale.ReceiptNumber]; exists {
		return fmt.Errorf("%w: %s", store.ErrDuplicateReceipt, sale.ReceiptNumber)
	}
	t.st.salesByID[sale.ID] = *copySale(sale)
	t.st.saleByReceipt[sale.ReceiptNumber] = sale.ID
	return nil
}

func (t *memTx) LockSale(_ context.Context, id string) (*domain.Sale, error) {
	sale, ok := t.st.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copySale(sale), nil
}

func (t *memTx) UpdateSaleStatus(_ context.Context, id string, from string, to string, at time.Time) error {
	sale, ok := t.st.salesByID[id]
	if !ok {
		return store.ErrNotFound
	}
	if sale.Status != from {
		return store.ErrStatusChanged
	}
	sale.Status = to
	sale.UpdatedAt = at
	t.st.salesByID[id] = sale
	return nil
}

func (t *memTx) HasRefund(_ context.Context, saleID string) (bool, error) {
	_, ok := t.st.refundsBySale[saleID]
	return ok, nil
}

func (t *memTx) CreateRefund(_ context.Context, refund domain.Refund) error {
	if refund.ID == "" || refund.SaleID == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := t.st.refundsBySale[refund.SaleID]; exists {
		return store.ErrRefundExists
	}
	refund.Items = slices.Clone(refund.Items)
	t.st.refundsBySale[refund.SaleID] = refund
	return nil
}

func (t *memTx) AdjustInventory(_ context.Context, productID string, outletID string, delta int, costPrice decimal.NullDecimal, at time.Time) (*domain.InventoryRecord, error) {
	return t.st.adjust(productID, outletID, delta, costPrice, at)
}

func (t *memTx) GetInventory(_ context.Context, productID string, outletID string) (*domain.InventoryRecord, error) {
	rec, ok := t.st.inventory[store.InventoryKey(productID, outletID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (t *memTx) AppendStockMovement(_ context.Context, movement domain.StockMovement) error {
	if movement.ID == "" || movement.Delta == 0 {
		return store.ErrInvalidTransaction
	}
	t.st.movements = append(t.st.movements, movement)
	return nil
}

func (t *memTx) FindAlertForDay(_ context.Context, productID string, outletID string, dayStart time.Time, dayEnd time.Time) (*domain.LowStockAlert, error) {
	var found *domain.LowStockAlert
	for i := range t.st.alerts {
		a := t.st.alerts[i]
		if a.ProductID != productID || a.OutletID != outletID {
			continue
		}
		if a.TriggeredAt.Before(dayStart) || !a.TriggeredAt.Before(dayEnd) {
			continue
		}
		if found == nil || a.TriggeredAt.After(found.TriggeredAt) {
			alert := a
			found = &alert
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (t *memTx) CreateAlert(_ context.Context, alert domain.LowStockAlert) error {
	if alert.ID == "" {
		return store.ErrInvalidTransaction
	}
	for _, a := range t.st.alerts {
		if a.ProductID == alert.ProductID && a.OutletID == alert.OutletID && a.AlertDay.Equal(alert.AlertDay) {
			return fmt.Errorf("%w: alert already exists for day", store.ErrInvalidTransaction)
		}
	}
	t.st.alerts = append(t.st.alerts, alert)
	return nil
}

func (t *memTx) UpdateAlert(_ context.Context, alert domain.LowStockAlert) error {
	for i := range t.st.alerts {
		if t.st.alerts[i].ID == alert.ID {
			t.st.alerts[i] = alert
			return nil
		}
	}
	return store.ErrNotFound
}

func (t *memTx) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if entry.ID == "" || entry.Action == "" {
		return store.ErrInvalidTransaction
	}
	t.st.auditLogs = append(t.st.auditLogs, entry)
	return nil
}

func (st *state) activeShiftFor(outletID string) (*domain.Shift, error) {
	shiftID, ok := st.activeShift[outletID]
	if !ok {
		return nil, store.ErrNotFound
	}
	shift, ok := st.shiftsByID[shiftID]
	if !ok || shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrNotFound
	}
	return &shift, nil
}

func (st *state) adjust(productID string, outletID string, delta int, costPrice decimal.NullDecimal, at time.Time) (*domain.InventoryRecord, error) {
	if productID == "" || outletID == "" || delta == 0 {
		return nil, store.ErrInvalidTransaction
	}
	key := store.InventoryKey(productID, outletID)
	rec, ok := st.inventory[key]
	if !ok {
		rec = domain.InventoryRecord{
			ID:        xid.New("inv"),
			ProductID: productID,
			OutletID:  outletID,
		}
	}
	rec.Quantity += delta
	if costPrice.Valid {
		rec.CostPrice = costPrice
	}
	rec.UpdatedAt = at
	st.inventory[key] = rec
	return &rec, nil
}

func copySale(sale domain.Sale) *domain.Sale {
	out := sale
	out.Items = slices.Clone(sale.Items)
	out.Payments = slices.Clone(sale.Payments)
	return &out
}
