package sales

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

const idempotencyModule = "sales"

// Ledger is the in-transaction stock mutation primitive.
type Ledger interface {
	Apply(ctx context.Context, tx inventory.TxRepository, req inventory.UpdateRequest) (inventory.Result, error)
}

// Authorizer is the slice of the access registry used by sales.
type Authorizer interface {
	EnsureAnyWarehousePermission(ctx context.Context, p access.Principal, perm access.Permission) error
	EnsureWarehouseByID(ctx context.Context, p access.Principal, warehouseID int64, perm access.Permission) (*warehouses.Warehouse, error)
	EnsureSaleAccess(ctx context.Context, p access.Principal, sale access.WarehouseBound) error
	DefaultWarehouse(ctx context.Context, p access.Principal) (*warehouses.Warehouse, error)
	AccessibleWarehouses(ctx context.Context, p access.Principal, perm access.Permission) ([]warehouses.Warehouse, error)
	ResolveSelection(ctx context.Context, p access.Principal, param string, includeAll bool, perm access.Permission) (access.Selection, error)
}

// ProductCatalog resolves sale lines to products.
type ProductCatalog interface {
	GetMany(ctx context.Context, ids []int64) (map[int64]products.Product, error)
}

// TransitionRecorder counts sales entering a status.
type TransitionRecorder interface {
	ObserveSaleTransition(status string)
}

// Service provides business logic for the sale lifecycle.
type Service struct {
	repo        Repository
	ledger      Ledger
	access      Authorizer
	catalog     ProductCatalog
	idempotency IdempotencyStore
	recorder    TransitionRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs a sales service. idem may be nil.
func NewService(repo Repository, ledger Ledger, authz Authorizer, catalog ProductCatalog, idem IdempotencyStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		ledger:      ledger,
		access:      authz,
		catalog:     catalog,
		idempotency: idem,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithRecorder reports every committed status change to r.
func (s *Service) WithRecorder(r TransitionRecorder) *Service {
	s.recorder = r
	return s
}

func (s *Service) observe(status Status) {
	if s.recorder != nil {
		s.recorder.ObserveSaleTransition(string(status))
	}
}

// ============================================================================
// CREATE
// ============================================================================

// Create records a sale. A COMPLETED sale debits stock for every line in the
// same transaction; an UNSETTLED sale only records the deposit.
func (s *Service) Create(ctx context.Context, p access.Principal, in CreateInput) (*Sale, error) {
	if p == nil {
		return nil, shared.ErrUnauthorized
	}
	if err := s.access.EnsureAnyWarehousePermission(ctx, p, access.PermSale); err != nil {
		return nil, err
	}
	wh, err := s.chooseWarehouse(ctx, p, in.WarehouseID)
	if err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = StatusCompleted
	}
	if in.Status != StatusCompleted && in.Status != StatusUnsettled {
		return nil, ErrInvalidStatus
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = PaymentCash
	}
	if !in.PaymentMethod.Valid() {
		return nil, ErrInvalidPayment
	}
	if in.DiscountAmount.IsNegative() {
		return nil, ErrInvalidDiscount
	}
	if len(in.Items) == 0 {
		return nil, ErrNoItems
	}

	items, err := s.priceItems(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	total := sumSubtotals(items)
	discount := clampDiscount(in.DiscountAmount, total)
	now := s.now()
	warehouseID := wh.ID
	sale := Sale{
		Status:        in.Status,
		WarehouseID:   &warehouseID,
		TotalAmount:   total,
		PaymentMethod: in.PaymentMethod,
		OperatorID:    p.GetID(),
		Remark:        strings.TrimSpace(in.Remark),
	}
	if in.Status == StatusCompleted {
		sale.DiscountAmount = discount
		sale.FinalAmount = total.Sub(discount)
		sale.CompletedAt = &now
	} else {
		deposit := in.DepositAmount.Round(2)
		if !deposit.IsPositive() || deposit.GreaterThan(total) {
			return nil, ErrInvalidDeposit
		}
		sale.DiscountAmount = discount
		sale.DepositAmount = deposit
		sale.FinalAmount = deposit
	}

	if in.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, in.IdempotencyKey, idempotencyModule); err != nil {
			return nil, err
		}
	}

	var created Sale
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		saved, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		commit := saved.Status == StatusCompleted
		for _, it := range sortedItems(items) {
			it.SaleID = saved.ID
			it.StockCommitted = commit
			line, err := tx.InsertSaleItem(ctx, it)
			if err != nil {
				return fmt.Errorf("insert sale item: %w", err)
			}
			if commit {
				if err := s.post(ctx, tx, p.GetID(), saved, line, inventory.TransactionTypeOut, inventory.SourceSaleCreate, "sale_create_item_out"); err != nil {
					return err
				}
			}
			saved.Items = append(saved.Items, line)
		}
		created = saved
		return nil
	})
	if err != nil {
		if in.IdempotencyKey != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, in.IdempotencyKey, idempotencyModule); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", in.IdempotencyKey), slog.Any("error", delErr))
			}
		}
		return nil, err
	}
	s.logger.Info("sale created",
		slog.Int64("sale_id", created.ID),
		slog.String("status", string(created.Status)),
		slog.Int64("warehouse_id", warehouseID),
		slog.String("final_amount", created.FinalAmount.StringFixed(2)),
	)
	s.observe(created.Status)
	return &created, nil
}

// chooseWarehouse honours an explicit request or refuses it. Without one it
// takes the caller's default, then the first warehouse the caller may sell from.
func (s *Service) chooseWarehouse(ctx context.Context, p access.Principal, requested int64) (*warehouses.Warehouse, error) {
	if requested > 0 {
		return s.access.EnsureWarehouseByID(ctx, p, requested, access.PermSale)
	}
	def, err := s.access.DefaultWarehouse(ctx, p)
	if err != nil {
		return nil, err
	}
	if def != nil {
		if wh, err := s.access.EnsureWarehouseByID(ctx, p, def.ID, access.PermSale); err == nil {
			return wh, nil
		}
	}
	list, err := s.access.AccessibleWarehouses(ctx, p, access.PermSale)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, s.access.EnsureAnyWarehousePermission(ctx, p, access.PermSale)
	}
	return &list[0], nil
}

func (s *Service) priceItems(ctx context.Context, inputs []ItemInput) ([]Item, error) {
	ids := make([]int64, 0, len(inputs))
	for _, in := range inputs {
		if in.ProductID <= 0 || in.Quantity <= 0 || in.Price.IsNegative() || in.ActualPrice.IsNegative() {
			return nil, ErrInvalidItem
		}
		if in.SaleType != "" && !in.SaleType.Valid() {
			return nil, ErrInvalidItem
		}
		ids = append(ids, in.ProductID)
	}
	catalog, err := s.catalog.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	items := make([]Item, 0, len(inputs))
	for _, in := range inputs {
		product, ok := catalog[in.ProductID]
		if !ok || !product.IsActive {
			return nil, fmt.Errorf("%w: product %d", ErrProductInactive, in.ProductID)
		}
		items = append(items, buildItem(in, product))
	}
	return items, nil
}

func buildItem(in ItemInput, product products.Product) Item {
	saleType := in.SaleType
	if saleType == "" {
		saleType = SaleTypeRetail
	}
	price := in.Price
	if price.IsZero() {
		price = product.PriceFor(string(saleType))
	}
	actual := in.ActualPrice
	if actual.IsZero() {
		actual = price
	}
	return Item{
		ProductID:   in.ProductID,
		Quantity:    in.Quantity,
		Price:       price.Round(2),
		ActualPrice: actual.Round(2),
		Subtotal:    actual.Mul(decimal.NewFromInt(in.Quantity)).Round(2),
		SaleType:    saleType,
	}
}

// ============================================================================
// LINE EDITS
// ============================================================================

// AddItem appends a line to an unsettled sale. No stock moves until completion.
func (s *Service) AddItem(ctx context.Context, p access.Principal, saleID int64, in ItemInput) (*Sale, error) {
	items, err := s.priceItems(ctx, []ItemInput{in})
	if err != nil {
		return nil, err
	}
	return s.edit(ctx, p, saleID, func(ctx context.Context, tx TxRepository, sale *Sale) error {
		if sale.Status != StatusUnsettled {
			return ErrInvalidTransition
		}
		item := items[0]
		item.SaleID = sale.ID
		line, err := tx.InsertSaleItem(ctx, item)
		if err != nil {
			return fmt.Errorf("insert sale item: %w", err)
		}
		sale.Items = append(sale.Items, line)
		return nil
	})
}

// RemoveItem drops a line from an unsettled sale, crediting it back first if
// it holds a stock debit.
func (s *Service) RemoveItem(ctx context.Context, p access.Principal, saleID, itemID int64) (*Sale, error) {
	return s.edit(ctx, p, saleID, func(ctx context.Context, tx TxRepository, sale *Sale) error {
		if sale.Status != StatusUnsettled {
			return ErrInvalidTransition
		}
		idx := -1
		for i, it := range sale.Items {
			if it.ID == itemID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrItemNotFound
		}
		line := sale.Items[idx]
		remaining := append(append([]Item{}, sale.Items[:idx]...), sale.Items[idx+1:]...)
		if sale.DepositAmount.GreaterThan(sumSubtotals(remaining)) {
			return ErrInvalidDeposit
		}
		if line.StockCommitted {
			if err := s.post(ctx, tx, p.GetID(), *sale, line, inventory.TransactionTypeIn, inventory.SourceSaleDeleteItem, "sale_delete_item_in"); err != nil {
				return err
			}
		}
		if err := tx.DeleteSaleItem(ctx, line.ID); err != nil {
			return err
		}
		sale.Items = remaining
		return nil
	})
}

func (s *Service) edit(ctx context.Context, p access.Principal, saleID int64, fn func(context.Context, TxRepository, *Sale) error) (*Sale, error) {
	var out Sale
	err := s.withSale(ctx, p, saleID, func(ctx context.Context, tx TxRepository, sale *Sale) error {
		if err := fn(ctx, tx, sale); err != nil {
			return err
		}
		sale.TotalAmount = sumSubtotals(sale.Items)
		sale.DiscountAmount = clampDiscount(sale.DiscountAmount, sale.TotalAmount)
		sale.FinalAmount = sale.DepositAmount
		updated, err := tx.UpdateSale(ctx, *sale)
		if err != nil {
			return err
		}
		updated.Items = sale.Items
		out = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ============================================================================
// TRANSITIONS
// ============================================================================

// Complete settles an unsettled sale and debits every uncommitted line.
func (s *Service) Complete(ctx context.Context, p access.Principal, saleID int64, in CompleteInput) (*Sale, error) {
	if in.DiscountAmount != nil && in.DiscountAmount.IsNegative() {
		return nil, ErrInvalidDiscount
	}
	if in.PaymentMethod != "" && !in.PaymentMethod.Valid() {
		return nil, ErrInvalidPayment
	}
	var out Sale
	err := s.withSale(ctx, p, saleID, func(ctx context.Context, tx TxRepository, sale *Sale) error {
		switch sale.Status {
		case StatusUnsettled:
		case StatusCompleted:
			return ErrAlreadyCompleted
		default:
			return ErrInvalidTransition
		}
		if sale.WarehouseID == nil {
			return ErrNoWarehouse
		}
		if len(sale.Items) == 0 {
			return ErrNoItems
		}
		for _, line := range sortedItems(sale.Items) {
			if line.StockCommitted {
				continue
			}
			if err := s.post(ctx, tx, p.GetID(), *sale, line, inventory.TransactionTypeOut, inventory.SourceSaleComplete, "sale_complete_item_out"); err != nil {
				return err
			}
			if err := tx.SetSaleItemCommitted(ctx, line.ID, true); err != nil {
				return err
			}
		}
		for i := range sale.Items {
			sale.Items[i].StockCommitted = true
		}
		sale.TotalAmount = sumSubtotals(sale.Items)
		if in.DiscountAmount != nil {
			sale.DiscountAmount = *in.DiscountAmount
		}
		sale.DiscountAmount = clampDiscount(sale.DiscountAmount, sale.TotalAmount)
		if in.PaymentMethod != "" {
			sale.PaymentMethod = in.PaymentMethod
		}
		now := s.now()
		sale.Status = StatusCompleted
		sale.FinalAmount = sale.TotalAmount.Sub(sale.DiscountAmount)
		sale.CompletedAt = &now
		updated, err := tx.UpdateSale(ctx, *sale)
		if err != nil {
			return err
		}
		updated.Items = sale.Items
		out = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("sale completed", slog.Int64("sale_id", out.ID), slog.String("final_amount", out.FinalAmount.StringFixed(2)))
	s.observe(StatusCompleted)
	return &out, nil
}

// Abandon gives up on an unsettled sale. The deposit is kept.
func (s *Service) Abandon(ctx context.Context, p access.Principal, saleID int64, reason string) (*Sale, error) {
	var out Sale
	changed := false
	err := s.withSale(ctx, p, saleID, func(ctx context.Context, tx TxRepository, sale *Sale) error {
		switch sale.Status {
		case StatusAbandoned:
			out = *sale
			return nil
		case StatusUnsettled:
		default:
			return ErrInvalidTransition
		}
		sale.Status = StatusAbandoned
		sale.Remark = appendRemark(sale.Remark, "abandoned", reason)
		updated, err := tx.UpdateSale(ctx, *sale)
		if err != nil {
			return err
		}
		updated.Items = sale.Items
		out = updated
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.observe(StatusAbandoned)
	}
	return &out, nil
}

// Delete reverses a completed sale: every committed line is credited back and
// all amounts are zeroed. Deleting twice is a no-op.
func (s *Service) Delete(ctx context.Context, p access.Principal, saleID int64, reason string) (*Result, error) {
	var res Result
	err := s.withSale(ctx, p, saleID, func(ctx context.Context, tx TxRepository, sale *Sale) error {
		switch sale.Status {
		case StatusDeleted:
			res = Result{Sale: *sale, AlreadyDeleted: true}
			return nil
		case StatusCompleted:
		default:
			return ErrInvalidTransition
		}
		if sale.WarehouseID == nil {
			return ErrNoWarehouse
		}
		for _, line := range sortedItems(sale.Items) {
			if !line.StockCommitted {
				continue
			}
			if err := s.post(ctx, tx, p.GetID(), *sale, line, inventory.TransactionTypeIn, inventory.SourceSaleDelete, "sale_delete_item_in"); err != nil {
				return err
			}
			if err := tx.SetSaleItemCommitted(ctx, line.ID, false); err != nil {
				return err
			}
		}
		for i := range sale.Items {
			sale.Items[i].StockCommitted = false
		}
		now := s.now()
		sale.Status = StatusDeleted
		sale.TotalAmount = decimal.Zero
		sale.DiscountAmount = decimal.Zero
		sale.DepositAmount = decimal.Zero
		sale.FinalAmount = decimal.Zero
		sale.DeletedAt = &now
		sale.Remark = appendRemark(sale.Remark, "deleted", reason)
		updated, err := tx.UpdateSale(ctx, *sale)
		if err != nil {
			return err
		}
		updated.Items = sale.Items
		res = Result{Sale: updated}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !res.AlreadyDeleted {
		s.logger.Info("sale deleted", slog.Int64("sale_id", res.Sale.ID), slog.Int64("operator_id", p.GetID()))
		s.observe(StatusDeleted)
	}
	return &res, nil
}

// withSale locks the sale header, checks SALE access and runs fn. The header
// lock is always taken before any stock row.
func (s *Service) withSale(ctx context.Context, p access.Principal, saleID int64, fn func(context.Context, TxRepository, *Sale) error) error {
	if p == nil {
		return shared.ErrUnauthorized
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if err := s.access.EnsureSaleAccess(ctx, p, sale); err != nil {
			return err
		}
		return fn(ctx, tx, &sale)
	})
}

func (s *Service) post(ctx context.Context, tx TxRepository, operatorID int64, sale Sale, line Item, typ inventory.TransactionType, source, intent string) error {
	if sale.WarehouseID == nil {
		return ErrNoWarehouse
	}
	req := inventory.UpdateRequest{
		ProductID:   line.ProductID,
		WarehouseID: *sale.WarehouseID,
		Quantity:    line.Quantity,
		Type:        typ,
		OperatorID:  operatorID,
		Metadata: inventory.Metadata{
			Source:         source,
			Intent:         intent,
			DocumentType:   inventory.DocumentSale,
			DocumentID:     sale.ID,
			DocumentLineID: line.ID,
		},
	}
	res, err := s.ledger.Apply(ctx, tx, req)
	if err != nil {
		return err
	}
	details := shared.Describef("Sale #%d %s: %d x product %d", sale.ID, strings.ToLower(string(typ)), line.Quantity, line.ProductID)
	if _, err := tx.InsertOperationLog(ctx, inventory.OperationLogFor(res, req, shared.OperationSale, source, details)); err != nil {
		return fmt.Errorf("insert operation log: %w", err)
	}
	return nil
}

// ============================================================================
// READS
// ============================================================================

// Get loads one sale with its items.
func (s *Service) Get(ctx context.Context, p access.Principal, id int64) (*Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.EnsureSaleAccess(ctx, p, sale); err != nil {
		return nil, err
	}
	return &sale, nil
}

// Page is a scoped page of sales.
type Page struct {
	Items      []Sale            `json:"items"`
	Selection  access.Selection  `json:"selection"`
	Pagination shared.Pagination `json:"pagination"`
}

// List lists sales visible with SALE. Deleted sales are hidden unless asked for.
func (s *Service) List(ctx context.Context, p access.Principal, filter ListFilter) (Page, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return Page{}, ErrInvalidStatus
	}
	sel, err := s.access.ResolveSelection(ctx, p, filter.Warehouse, true, access.PermSale)
	if err != nil {
		return Page{}, err
	}
	page := filter.Page.Normalize()
	filter.Page = page
	items, total, err := s.repo.ListSales(ctx, sel.Scope, filter)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Selection: sel, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}, nil
}

// Summary reports revenue for completed sales and forfeited deposits for
// abandoned ones. Requires REPORT_VIEW. A failed aggregate marks the report
// degraded and leaves its figures at zero; the other figures are still reported.
func (s *Service) Summary(ctx context.Context, p access.Principal, filter SummaryFilter) (Summary, error) {
	if err := s.access.EnsureAnyWarehousePermission(ctx, p, access.PermReportView); err != nil {
		return Summary{}, err
	}
	sel, err := s.access.ResolveSelection(ctx, p, filter.Warehouse, true, access.PermReportView)
	if err != nil {
		return Summary{}, err
	}
	out := Summary{
		ScopeLabel:    sel.ScopeLabel,
		RevenueByType: map[SaleType]decimal.Decimal{SaleTypeRetail: decimal.Zero, SaleTypeWholesale: decimal.Zero},
		Counts:        map[Status]int{},
	}
	facts, err := s.repo.SummaryFacts(ctx, sel.Scope, filter)
	if err != nil {
		s.logger.Warn("sales summary degraded", slog.Any("error", err))
		out.Degraded = true
	}
	gross := decimal.Zero
	for t, amount := range facts.RevenueByType {
		out.RevenueByType[t] = amount
		gross = gross.Add(amount)
	}
	out.GrossRevenue = gross
	out.Discount = facts.Discount
	out.NetRevenue = gross.Sub(facts.Discount)
	out.ForfeitedDeposits = facts.ForfeitedDeposits
	for st, n := range facts.Counts {
		out.Counts[st] = n
	}
	return out, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func sumSubtotals(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal)
	}
	return total.Round(2)
}

func clampDiscount(discount, total decimal.Decimal) decimal.Decimal {
	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(total) {
		return total
	}
	return discount.Round(2)
}

// sortedItems orders lines by product so stock rows are locked in a stable order.
func sortedItems(items []Item) []Item {
	out := append([]Item(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func appendRemark(remark, label, reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return remark
	}
	note := label + ": " + reason
	if remark == "" {
		return note
	}
	return remark + "\n" + note
}
