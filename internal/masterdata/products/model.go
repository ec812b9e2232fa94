package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a sellable item.
type Product struct {
	ID             int64           `json:"id"`
	SKU            string          `json:"sku" validate:"required,max=50"`
	Name           string          `json:"name" validate:"required,max=200"`
	Category       string          `json:"category" validate:"max=100"`
	RetailPrice    decimal.Decimal `json:"retail_price"`
	WholesalePrice decimal.Decimal `json:"wholesale_price"`
	Cost           decimal.Decimal `json:"cost"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PriceFor returns the list price for a sale type ("wholesale" or retail).
func (p Product) PriceFor(saleType string) decimal.Decimal {
	if saleType == "wholesale" && p.WholesalePrice.IsPositive() {
		return p.WholesalePrice
	}
	return p.RetailPrice
}
