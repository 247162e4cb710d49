package models

import (
	"github.com/shopspring/decimal"

	"github.com/systemizing-solutions/shuttle-bridge/internal/schema"
)

// Order references Customer, so order batches must apply after customers.
type Order struct {
	Base
	CustomerID int64           `gorm:"not null;index" json:"customer_id"`
	Status     string          `gorm:"type:varchar(32);not null;default:'new'" json:"status"`
	Total      decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"total"`
}

func (Order) TableName() string {
	return "orders"
}

type OrderCodec struct{}

func (OrderCodec) Table() string { return Order{}.TableName() }

func (OrderCodec) Parents() []string { return []string{Customer{}.TableName()} }

func (OrderCodec) New() schema.Row { return &Order{} }
