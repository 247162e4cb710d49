package models

import "github.com/systemizing-solutions/shuttle-bridge/internal/schema"

// Customer is part of the reference dataset served by the bundled node.
type Customer struct {
	Base
	Name   string `gorm:"type:text;not null" json:"name"`
	Email  string `gorm:"type:text" json:"email"`
	Status string `gorm:"type:varchar(32);not null;default:'active'" json:"status"`
}

func (Customer) TableName() string {
	return "customers"
}

type CustomerCodec struct{}

func (CustomerCodec) Table() string { return Customer{}.TableName() }

func (CustomerCodec) Parents() []string { return nil }

func (CustomerCodec) New() schema.Row { return &Customer{} }
