package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// OperatorDirectory resolves operator ids to active accounts.
type OperatorDirectory interface {
	IsActiveUser(ctx context.Context, id int64) (bool, error)
}

// Authorizer is the slice of the access registry the ledger consults.
type Authorizer interface {
	EnsureWarehouseByID(ctx context.Context, p access.Principal, warehouseID int64, perm access.Permission) (*warehouses.Warehouse, error)
	ResolveSelection(ctx context.Context, p access.Principal, param string, includeAll bool, perm access.Permission) (access.Selection, error)
}

// MutationRecorder counts mutation outcomes.
type MutationRecorder interface {
	ObserveMutation(txType, outcome string)
}

// Mutation outcomes.
const (
	OutcomeApplied      = "applied"
	OutcomeInsufficient = "insufficient"
	OutcomeRejected     = "rejected"
	OutcomeBusy         = "busy"
	OutcomeError        = "error"
)

// Service is the only writer of stock rows.
type Service struct {
	repo      Repository
	operators OperatorDirectory
	access    Authorizer
	metrics   MutationRecorder
	logger    *slog.Logger
}

// NewService builds Service. metrics may be nil.
func NewService(repo Repository, operators OperatorDirectory, authz Authorizer, metrics MutationRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, operators: operators, access: authz, metrics: metrics, logger: logger}
}

// CheckStock reports whether qty units are available. It is a hint only; the
// authoritative check happens under the row lock in Apply.
func (s *Service) CheckStock(ctx context.Context, productID, warehouseID, qty int64) bool {
	if qty <= 0 {
		return true
	}
	stock, err := s.repo.GetStock(ctx, productID, warehouseID)
	if err != nil {
		if !errors.Is(err, ErrStockNotFound) {
			s.logger.Warn("check stock failed",
				slog.Int64("product_id", productID),
				slog.Int64("warehouse_id", warehouseID),
				slog.Any("error", err),
			)
		}
		return false
	}
	return qty <= stock.Quantity
}

// UpdateStock applies one mutation in its own transaction.
func (s *Service) UpdateStock(ctx context.Context, req UpdateRequest) (Result, error) {
	var res Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		res, err = s.Apply(ctx, tx, req)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// Apply is the in-transaction mutation primitive. The caller owns the
// transaction; any error must roll it back.
func (s *Service) Apply(ctx context.Context, tx TxRepository, req UpdateRequest) (Result, error) {
	delta, err := s.validate(ctx, req)
	if err != nil {
		s.observe(req.Type, OutcomeRejected)
		return Result{}, err
	}

	stock, err := s.lockOrCreate(ctx, tx, req.ProductID, req.WarehouseID)
	if errors.Is(err, ErrStockBusy) {
		s.observe(req.Type, OutcomeBusy)
		return Result{}, err
	}
	if err != nil {
		s.observe(req.Type, OutcomeError)
		return Result{}, err
	}

	if delta > 0 && stock.Quantity > math.MaxInt64-delta {
		s.observe(req.Type, OutcomeRejected)
		return Result{}, ErrInvalidQuantity
	}
	next := stock.Quantity + delta
	if next < 0 {
		s.observe(req.Type, OutcomeInsufficient)
		return Result{}, &InsufficientStockError{
			ProductID:   req.ProductID,
			WarehouseID: req.WarehouseID,
			Current:     stock.Quantity,
			Requested:   abs(delta),
		}
	}

	updated, err := tx.UpdateStockQuantity(ctx, stock.ID, next)
	if err != nil {
		s.observe(req.Type, OutcomeError)
		return Result{}, fmt.Errorf("inventory: update stock: %w", err)
	}
	direction := 1
	if delta < 0 {
		direction = -1
	}
	warehouseID := req.WarehouseID
	entry, err := tx.InsertTransaction(ctx, Transaction{
		ProductID:   req.ProductID,
		WarehouseID: &warehouseID,
		Type:        req.Type,
		Quantity:    abs(delta),
		Direction:   direction,
		OperatorID:  req.OperatorID,
		Metadata:    req.Metadata,
		Notes:       req.Notes,
	})
	if err != nil {
		s.observe(req.Type, OutcomeError)
		return Result{}, fmt.Errorf("inventory: insert transaction: %w", err)
	}
	s.observe(req.Type, OutcomeApplied)
	return Result{Stock: updated, Transaction: entry, Delta: delta}, nil
}

func (s *Service) validate(ctx context.Context, req UpdateRequest) (int64, error) {
	if !req.Type.Valid() {
		return 0, ErrInvalidTransactionType
	}
	if req.WarehouseID <= 0 {
		return 0, ErrMissingWarehouse
	}
	if req.ProductID <= 0 {
		return 0, ErrMissingProduct
	}
	if req.OperatorID <= 0 {
		return 0, ErrInvalidOperator
	}
	if s.operators != nil {
		active, err := s.operators.IsActiveUser(ctx, req.OperatorID)
		if err != nil {
			return 0, fmt.Errorf("inventory: resolve operator: %w", err)
		}
		if !active {
			return 0, ErrInvalidOperator
		}
	}
	if req.Quantity == 0 || req.Quantity == math.MinInt64 {
		return 0, ErrInvalidQuantity
	}
	switch req.Type {
	case TransactionTypeIn:
		return abs(req.Quantity), nil
	case TransactionTypeOut:
		return -abs(req.Quantity), nil
	}
	return req.Quantity, nil
}

func (s *Service) lockOrCreate(ctx context.Context, tx TxRepository, productID, warehouseID int64) (Stock, error) {
	stock, err := tx.GetStockForUpdate(ctx, productID, warehouseID)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, ErrStockNotFound) {
		return Stock{}, fmt.Errorf("inventory: lock stock: %w", err)
	}
	if _, err := tx.CreateStock(ctx, productID, warehouseID, DefaultWarningLevel); err != nil && !errors.Is(err, ErrStockExists) {
		return Stock{}, fmt.Errorf("inventory: create stock: %w", err)
	}
	// Lock whichever row now exists, ours or the concurrent winner's.
	stock, err = tx.GetStockForUpdate(ctx, productID, warehouseID)
	if err != nil {
		return Stock{}, fmt.Errorf("inventory: lock stock: %w", err)
	}
	return stock, nil
}

func (s *Service) observe(txType TransactionType, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveMutation(string(txType), outcome)
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// StockIn receives stock into a warehouse. Requires STOCK_IN.
func (s *Service) StockIn(ctx context.Context, p access.Principal, in MovementInput) (Result, error) {
	if in.Quantity <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	return s.move(ctx, p, in, TransactionTypeIn, access.PermStockIn, SourceManualStockIn, "stock_in")
}

// StockOut issues stock from a warehouse. Requires STOCK_OUT.
func (s *Service) StockOut(ctx context.Context, p access.Principal, in MovementInput) (Result, error) {
	if in.Quantity <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	return s.move(ctx, p, in, TransactionTypeOut, access.PermStockOut, SourceManualStockOut, "stock_out")
}

// Adjust applies a signed correction. Requires STOCK_ADJUST.
func (s *Service) Adjust(ctx context.Context, p access.Principal, in MovementInput) (Result, error) {
	return s.move(ctx, p, in, TransactionTypeAdjust, access.PermStockAdjust, SourceManualAdjust, "adjust")
}

func (s *Service) move(ctx context.Context, p access.Principal, in MovementInput, typ TransactionType, perm access.Permission, source, action string) (Result, error) {
	if p == nil {
		return Result{}, shared.ErrUnauthorized
	}
	if in.WarehouseID <= 0 {
		return Result{}, ErrMissingWarehouse
	}
	wh, err := s.access.EnsureWarehouseByID(ctx, p, in.WarehouseID, perm)
	if err != nil {
		return Result{}, err
	}
	req := UpdateRequest{
		ProductID:   in.ProductID,
		WarehouseID: wh.ID,
		Quantity:    in.Quantity,
		Type:        typ,
		OperatorID:  p.GetID(),
		Metadata:    Metadata{Source: source},
		Notes:       in.Notes,
	}
	var res Result
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		res, err = s.Apply(ctx, tx, req)
		if err != nil {
			return err
		}
		details := shared.Describef("%s %d unit(s) of product %d at %s", action, res.Delta, req.ProductID, wh.Name)
		_, err = tx.InsertOperationLog(ctx, OperationLogFor(res, req, shared.OperationInventory, action, details))
		return err
	})
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("stock movement applied",
		slog.String("type", string(typ)),
		slog.Int64("product_id", req.ProductID),
		slog.Int64("warehouse_id", req.WarehouseID),
		slog.Int64("delta", res.Delta),
		slog.Int64("quantity", res.Stock.Quantity),
		slog.Int64("operator_id", req.OperatorID),
	)
	return res, nil
}

// OperationLogFor builds the operation log row that accompanies res.
func OperationLogFor(res Result, req UpdateRequest, opType shared.OperationType, action, details string) shared.OperationLog {
	relatedType, relatedID := "stock_transaction", res.Transaction.ID
	if req.Metadata.DocumentType != "" && req.Metadata.DocumentID > 0 {
		relatedType, relatedID = req.Metadata.DocumentType, req.Metadata.DocumentID
	}
	meta := map[string]any{
		"transaction_id":     res.Transaction.ID,
		"product_id":         req.ProductID,
		"warehouse_id":       req.WarehouseID,
		"requested_quantity": req.Quantity,
		"delta":              res.Delta,
		"current_quantity":   res.Stock.Quantity,
		"source":             req.Metadata.Source,
	}
	if req.Metadata.DocumentType == DocumentSale {
		meta["sale_id"] = req.Metadata.DocumentID
	}
	return shared.OperationLog{
		OperatorID:    req.OperatorID,
		OperationType: opType,
		Action:        action,
		Details:       details,
		RelatedType:   relatedType,
		RelatedID:     relatedID,
		Meta:          meta,
	}
}

// GetStock returns the row for one pair. Requires VIEW.
func (s *Service) GetStock(ctx context.Context, p access.Principal, productID, warehouseID int64) (Stock, error) {
	if _, err := s.access.EnsureWarehouseByID(ctx, p, warehouseID, access.PermView); err != nil {
		return Stock{}, err
	}
	return s.repo.GetStock(ctx, productID, warehouseID)
}

// StockPage is a scoped page of stock rows.
type StockPage struct {
	Items      []Stock           `json:"items"`
	Selection  access.Selection  `json:"selection"`
	Pagination shared.Pagination `json:"pagination"`
}

// ListStock lists stock rows visible to p with VIEW.
func (s *Service) ListStock(ctx context.Context, p access.Principal, filter StockFilter) (StockPage, error) {
	sel, err := s.access.ResolveSelection(ctx, p, filter.Warehouse, true, access.PermView)
	if err != nil {
		return StockPage{}, err
	}
	page := filter.Page.Normalize()
	filter.Page = page
	items, total, err := s.repo.ListStock(ctx, sel.Scope, filter)
	if err != nil {
		return StockPage{}, err
	}
	return StockPage{Items: items, Selection: sel, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}, nil
}

// TransactionPage is a scoped page of ledger rows.
type TransactionPage struct {
	Items      []Transaction     `json:"items"`
	Selection  access.Selection  `json:"selection"`
	Pagination shared.Pagination `json:"pagination"`
}

// ListTransactions lists ledger rows visible to p with VIEW, newest first.
func (s *Service) ListTransactions(ctx context.Context, p access.Principal, filter TransactionFilter) (TransactionPage, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return TransactionPage{}, ErrInvalidTransactionType
	}
	sel, err := s.access.ResolveSelection(ctx, p, filter.Warehouse, true, access.PermView)
	if err != nil {
		return TransactionPage{}, err
	}
	page := filter.Page.Normalize()
	filter.Page = page
	items, total, err := s.repo.ListTransactions(ctx, sel.Scope, filter)
	if err != nil {
		return TransactionPage{}, err
	}
	return TransactionPage{Items: items, Selection: sel, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}, nil
}

// SetWarningLevel edits the low-stock threshold. Requires PRODUCT_MANAGE.
func (s *Service) SetWarningLevel(ctx context.Context, p access.Principal, productID, warehouseID, level int64) (Stock, error) {
	if level < 0 {
		return Stock{}, ErrInvalidWarningLevel
	}
	if productID <= 0 {
		return Stock{}, ErrMissingProduct
	}
	if _, err := s.access.EnsureWarehouseByID(ctx, p, warehouseID, access.PermProductManage); err != nil {
		return Stock{}, err
	}
	return s.repo.SetWarningLevel(ctx, productID, warehouseID, level)
}
