// Package memory is an in-process backend for every repository port. It
// mirrors the row locking of the postgres repositories closely enough for
// the engines' concurrency guarantees to hold, and backs the service tests
// and STORAGE_DRIVER=memory.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/stockcheck"
	"github.com/odyssey-erp/odyssey-pos/internal/users"
)

type pair struct {
	productID   int64
	warehouseID int64
}

type grantKey struct {
	userID      int64
	warehouseID int64
}

// Store holds every table. mu guards the maps; row locks are separate and
// are held for the lifetime of a transaction.
type Store struct {
	mu  sync.Mutex
	seq map[string]int64
	now func() time.Time

	rowLocks map[string]chan struct{}

	warehouses map[int64]warehouses.Warehouse
	products   map[int64]products.Product
	users      map[int64]users.User
	grants     map[grantKey]access.Grant

	stock        map[pair]inventory.Stock
	stockByID    map[int64]pair
	transactions []inventory.Transaction
	oplogs       []shared.OperationLog

	sales     map[int64]sales.Sale
	saleItems map[int64]sales.Item

	checks     map[int64]stockcheck.Check
	checkItems map[int64]stockcheck.Item

	idempotency map[string]time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		seq:         map[string]int64{},
		now:         func() time.Time { return time.Now().UTC() },
		rowLocks:    map[string]chan struct{}{},
		warehouses:  map[int64]warehouses.Warehouse{},
		products:    map[int64]products.Product{},
		users:       map[int64]users.User{},
		grants:      map[grantKey]access.Grant{},
		stock:       map[pair]inventory.Stock{},
		stockByID:   map[int64]pair{},
		sales:       map[int64]sales.Sale{},
		saleItems:   map[int64]sales.Item{},
		checks:      map[int64]stockcheck.Check{},
		checkItems:  map[int64]stockcheck.Item{},
		idempotency: map[string]time.Time{},
	}
}

// nextID must be called with mu held.
func (s *Store) nextID(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (s *Store) rowLock(key string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.rowLocks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.rowLocks[key] = ch
	}
	return ch
}

func stockKey(productID, warehouseID int64) string {
	return "stock:" + strconv.FormatInt(productID, 10) + ":" + strconv.FormatInt(warehouseID, 10)
}

// memTx is one transaction. Writes land in the tables immediately and are
// reverted from undo on rollback; row locks keep writers to the same row
// serialized until commit.
type memTx struct {
	s    *Store
	held map[string]chan struct{}
	undo []func()
}

func (s *Store) begin() *memTx {
	return &memTx{s: s, held: map[string]chan struct{}{}}
}

// lock acquires a row lock, waiting until it is free or ctx is done.
// Reentrant within the transaction.
func (t *memTx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	ch := t.s.rowLock(key)
	select {
	case ch <- struct{}{}:
		t.held[key] = ch
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// write runs fn under mu and records its inverse.
func (t *memTx) write(fn func() func()) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if revert := fn(); revert != nil {
		t.undo = append(t.undo, revert)
	}
}

func (t *memTx) finish(commit bool) {
	if !commit {
		t.s.mu.Lock()
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		t.s.mu.Unlock()
	}
	t.undo = nil
	for key, ch := range t.held {
		<-ch
		delete(t.held, key)
	}
}

// run executes fn inside a transaction, rolling back on error or panic.
func (s *Store) run(ctx context.Context, fn func(*memTx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := s.begin()
	committed := false
	defer func() {
		t.finish(committed)
	}()
	if err = fn(t); err != nil {
		return err
	}
	committed = true
	return nil
}
