package stockcheck

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Ledger is the in-transaction stock mutation primitive.
type Ledger interface {
	Apply(ctx context.Context, tx inventory.TxRepository, req inventory.UpdateRequest) (inventory.Result, error)
}

// Authorizer is the slice of the access registry used by stocktakes.
type Authorizer interface {
	EnsureWarehouseByID(ctx context.Context, p access.Principal, warehouseID int64, perm access.Permission) (*warehouses.Warehouse, error)
	EnsureInventoryCheckAccess(ctx context.Context, p access.Principal, check access.WarehouseBound) error
	DefaultWarehouse(ctx context.Context, p access.Principal) (*warehouses.Warehouse, error)
	ResolveSelection(ctx context.Context, p access.Principal, param string, includeAll bool, perm access.Permission) (access.Selection, error)
}

// Catalog lists the products a check counts and values them.
type Catalog interface {
	ListActive(ctx context.Context, category string) ([]products.Product, error)
	GetMany(ctx context.Context, ids []int64) (map[int64]products.Product, error)
}

// Service runs the stocktake lifecycle.
type Service struct {
	repo     Repository
	ledger   Ledger
	access   Authorizer
	catalog  Catalog
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the stocktake service.
func NewService(repo Repository, ledger Ledger, authz Authorizer, catalog Catalog, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		ledger:   ledger,
		access:   authz,
		catalog:  catalog,
		validate: validator.New(),
		logger:   logger.With(slog.String("module", "stockcheck")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create snapshots the current stock of every active product in the
// warehouse. Products without a stock row are counted from zero.
func (s *Service) Create(ctx context.Context, p access.Principal, in CreateInput) (*Check, error) {
	if p == nil {
		return nil, shared.ErrUnauthorized
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	warehouseID := in.WarehouseID
	if warehouseID <= 0 {
		def, err := s.access.DefaultWarehouse(ctx, p)
		if err != nil {
			return nil, err
		}
		if def == nil {
			return nil, ErrNoWarehouse
		}
		warehouseID = def.ID
	}
	wh, err := s.access.EnsureWarehouseByID(ctx, p, warehouseID, access.PermInventoryCheck)
	if err != nil {
		return nil, err
	}
	if !wh.IsActive {
		return nil, ErrNoWarehouse
	}
	list, err := s.catalog.ListActive(ctx, strings.TrimSpace(in.Category))
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if len(list) == 0 {
		return nil, ErrNoProducts
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	var out Check
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		quantities, err := tx.StockQuantities(ctx, wh.ID)
		if err != nil {
			return fmt.Errorf("snapshot stock: %w", err)
		}
		id := wh.ID
		check, err := tx.InsertCheck(ctx, Check{
			Name:        in.Name,
			Description: strings.TrimSpace(in.Description),
			WarehouseID: &id,
			Status:      StatusDraft,
			CreatedBy:   p.GetID(),
		})
		if err != nil {
			return fmt.Errorf("insert check: %w", err)
		}
		items := make([]Item, 0, len(list))
		for _, prod := range list {
			items = append(items, Item{ProductID: prod.ID, SystemQuantity: quantities[prod.ID]})
		}
		check.Items, err = tx.InsertCheckItems(ctx, check.ID, items)
		if err != nil {
			return fmt.Errorf("insert check items: %w", err)
		}
		out = check
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("inventory check created",
		slog.Int64("check_id", out.ID),
		slog.Int64("warehouse_id", wh.ID),
		slog.Int("items", len(out.Items)),
	)
	return &out, nil
}

// Start moves a draft check into counting.
func (s *Service) Start(ctx context.Context, p access.Principal, checkID int64) (*Check, error) {
	return s.transition(ctx, p, checkID, func(c *Check) error {
		if c.Status != StatusDraft {
			return ErrInvalidTransition
		}
		c.Status = StatusInProgress
		return nil
	})
}

// RecordItem stores the counted quantity of one item.
func (s *Service) RecordItem(ctx context.Context, p access.Principal, checkID, itemID int64, in RecordInput) (*Item, error) {
	if in.ActualQuantity < 0 {
		return nil, ErrInvalidQuantity
	}
	var out Item
	err := s.withCheck(ctx, p, checkID, func(ctx context.Context, tx TxRepository, c *Check) error {
		if c.Status != StatusInProgress {
			return ErrInvalidTransition
		}
		var item *Item
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				item = &c.Items[i]
				break
			}
		}
		if item == nil {
			return ErrItemNotFound
		}
		actual := in.ActualQuantity
		diff := actual - item.SystemQuantity
		now := s.now()
		operator := p.GetID()
		item.ActualQuantity = &actual
		item.Difference = &diff
		item.Notes = strings.TrimSpace(in.Notes)
		item.CheckedBy = &operator
		item.CheckedAt = &now
		updated, err := tx.UpdateCheckItem(ctx, *item)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Complete closes counting. From in_progress every item must be counted.
func (s *Service) Complete(ctx context.Context, p access.Principal, checkID int64) (*Check, error) {
	return s.transition(ctx, p, checkID, func(c *Check) error {
		switch c.Status {
		case StatusInProgress:
			for _, it := range c.Items {
				if !it.Recorded() {
					return ErrIncomplete
				}
			}
		case StatusApproved:
		default:
			return ErrInvalidTransition
		}
		now := s.now()
		c.Status = StatusCompleted
		c.CompletedAt = &now
		return nil
	})
}

// Approve accepts a completed check. With adjust set, every counted
// difference is posted to the ledger as an ADJUST, which also needs
// STOCK_ADJUST on the warehouse.
func (s *Service) Approve(ctx context.Context, p access.Principal, checkID int64, adjust bool) (*Check, error) {
	var out Check
	posted := 0
	err := s.withCheck(ctx, p, checkID, func(ctx context.Context, tx TxRepository, c *Check) error {
		if c.Status != StatusCompleted {
			return ErrInvalidTransition
		}
		if adjust {
			if c.WarehouseID == nil {
				return ErrNoWarehouse
			}
			if _, err := s.access.EnsureWarehouseByID(ctx, p, *c.WarehouseID, access.PermStockAdjust); err != nil {
				return err
			}
			for _, it := range Adjustments(c.Items) {
				if err := s.post(ctx, tx, p.GetID(), *c, it); err != nil {
					return err
				}
				posted++
			}
		}
		now := s.now()
		approver := p.GetID()
		c.Status = StatusApproved
		c.ApprovedBy = &approver
		c.ApprovedAt = &now
		updated, err := tx.UpdateCheck(ctx, *c)
		if err != nil {
			return err
		}
		updated.Items = c.Items
		out = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("inventory check approved",
		slog.Int64("check_id", out.ID),
		slog.Bool("adjust", adjust),
		slog.Int("adjustments", posted),
	)
	return &out, nil
}

func (s *Service) post(ctx context.Context, tx TxRepository, operatorID int64, c Check, it Item) error {
	system, actual := it.SystemQuantity, *it.ActualQuantity
	req := inventory.UpdateRequest{
		ProductID:   it.ProductID,
		WarehouseID: *c.WarehouseID,
		Quantity:    *it.Difference,
		Type:        inventory.TransactionTypeAdjust,
		OperatorID:  operatorID,
		Metadata: inventory.Metadata{
			Source:         inventory.SourceCheckApprove,
			Intent:         "inventory_check_adjust",
			DocumentType:   inventory.DocumentInventoryCheck,
			DocumentID:     c.ID,
			DocumentLineID: it.ID,
			SystemQuantity: &system,
			ActualQuantity: &actual,
		},
	}
	res, err := s.ledger.Apply(ctx, tx, req)
	if err != nil {
		return err
	}
	details := shared.Describef("Inventory check #%d adjusted product %d by %d (system %d, actual %d)",
		c.ID, it.ProductID, *it.Difference, system, actual)
	if _, err := tx.InsertOperationLog(ctx, inventory.OperationLogFor(res, req, shared.OperationInventoryCheck, "inventory_check_adjust", details)); err != nil {
		return fmt.Errorf("insert operation log: %w", err)
	}
	return nil
}

// Cancel abandons a check that has not been approved.
func (s *Service) Cancel(ctx context.Context, p access.Principal, checkID int64) (*Check, error) {
	return s.transition(ctx, p, checkID, func(c *Check) error {
		if c.Status == StatusApproved || c.Status == StatusCancelled {
			return ErrInvalidTransition
		}
		c.Status = StatusCancelled
		return nil
	})
}

func (s *Service) transition(ctx context.Context, p access.Principal, checkID int64, fn func(*Check) error) (*Check, error) {
	var out Check
	err := s.withCheck(ctx, p, checkID, func(ctx context.Context, tx TxRepository, c *Check) error {
		from := c.Status
		if err := fn(c); err != nil {
			return err
		}
		updated, err := tx.UpdateCheck(ctx, *c)
		if err != nil {
			return err
		}
		updated.Items = c.Items
		out = updated
		s.logger.Debug("inventory check transition",
			slog.Int64("check_id", c.ID),
			slog.String("from", string(from)),
			slog.String("to", string(c.Status)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// withCheck locks the check header before any stock row is touched.
func (s *Service) withCheck(ctx context.Context, p access.Principal, checkID int64, fn func(context.Context, TxRepository, *Check) error) error {
	if p == nil {
		return shared.ErrUnauthorized
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetCheckForUpdate(ctx, checkID)
		if err != nil {
			return err
		}
		if err := s.access.EnsureInventoryCheckAccess(ctx, p, c); err != nil {
			return err
		}
		return fn(ctx, tx, &c)
	})
}

// Get loads one check with its items.
func (s *Service) Get(ctx context.Context, p access.Principal, id int64) (*Check, error) {
	c, err := s.repo.GetCheck(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.EnsureInventoryCheckAccess(ctx, p, c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Summary values the counts of a check at product cost.
func (s *Service) Summary(ctx context.Context, p access.Principal, id int64) (Summary, error) {
	c, err := s.Get(ctx, p, id)
	if err != nil {
		return Summary{}, err
	}
	ids := make([]int64, 0, len(c.Items))
	for _, it := range c.Items {
		ids = append(ids, it.ProductID)
	}
	costs := map[int64]decimal.Decimal{}
	if len(ids) > 0 {
		catalog, err := s.catalog.GetMany(ctx, ids)
		if err != nil {
			return Summary{}, fmt.Errorf("load products: %w", err)
		}
		for pid, prod := range catalog {
			costs[pid] = prod.Cost
		}
	}
	return Summarize(c.ID, c.Items, costs), nil
}

// Page is a scoped page of checks.
type Page struct {
	Items      []Check           `json:"items"`
	Selection  access.Selection  `json:"selection"`
	Pagination shared.Pagination `json:"pagination"`
}

// List lists checks visible with INVENTORY_CHECK, newest first.
func (s *Service) List(ctx context.Context, p access.Principal, filter ListFilter) (Page, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return Page{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
	}
	sel, err := s.access.ResolveSelection(ctx, p, filter.Warehouse, true, access.PermInventoryCheck)
	if err != nil {
		return Page{}, err
	}
	page := filter.Page.Normalize()
	filter.Page = page
	items, total, err := s.repo.ListChecks(ctx, sel.Scope, filter)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Selection: sel, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}, nil
}
