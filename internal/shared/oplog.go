package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// OperationType groups operation log entries by business area.
type OperationType string

const (
	// OperationSale covers sale lifecycle events.
	OperationSale OperationType = "SALE"
	// OperationInventory covers manual stock movements.
	OperationInventory OperationType = "INVENTORY"
	// OperationInventoryCheck covers stocktake events.
	OperationInventoryCheck OperationType = "INVENTORY_CHECK"
)

// OperationLog is the application level audit record that accompanies every
// stock affecting transition. It is written in the same transaction as the
// ledger row it describes.
type OperationLog struct {
	ID            int64
	OperatorID    int64
	OperationType OperationType
	Action        string
	Details       string
	RelatedType   string
	RelatedID     int64
	Meta          map[string]any
	At            time.Time
}

// Validate checks required fields.
func (l OperationLog) Validate() error {
	if l.OperatorID <= 0 {
		return errors.New("operation log requires operator")
	}
	if l.OperationType == "" || l.Action == "" {
		return errors.New("operation log requires type/action")
	}
	return nil
}

// WithRequest copies the request id and remote ip from ctx into Meta.
func (l OperationLog) WithRequest(ctx context.Context) OperationLog {
	meta := RequestMetaFromContext(ctx)
	if meta.RequestID == "" && meta.RemoteIP == "" {
		return l
	}
	merged := make(map[string]any, len(l.Meta)+2)
	for k, v := range l.Meta {
		merged[k] = v
	}
	if meta.RequestID != "" {
		merged["request_id"] = meta.RequestID
	}
	if meta.RemoteIP != "" {
		merged["remote_ip"] = meta.RemoteIP
	}
	l.Meta = merged
	return l
}

// RowQuerier is satisfied by pgx.Tx, *pgx.Conn and *pgxpool.Pool.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InsertOperationLog persists the entry through q and returns its id.
func InsertOperationLog(ctx context.Context, q RowQuerier, log OperationLog) (int64, error) {
	if err := log.Validate(); err != nil {
		return 0, err
	}
	log = log.WithRequest(ctx)
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return 0, err
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	var related any
	if log.RelatedID > 0 {
		related = log.RelatedID
	}
	var id int64
	err = q.QueryRow(ctx, `INSERT INTO operation_logs (operator_id, operation_type, action, details, related_type, related_id, meta, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,COALESCE($8, NOW())) RETURNING id`,
		log.OperatorID, string(log.OperationType), log.Action, log.Details, log.RelatedType, related, metaJSON, at).Scan(&id)
	return id, err
}

var printer = message.NewPrinter(language.English)

// Describef renders a human readable log detail with grouped numbers.
func Describef(format string, args ...any) string {
	return printer.Sprintf(format, args...)
}
