package models

import "github.com/google/uuid"

// Variant is the sellable unit the catalog tracks stock against.
type Variant struct {
	ID         uuid.UUID `json:"id"`
	SKU        string    `json:"sku"`
	PricePaise int       `json:"price"`
	Stock      int       `json:"stock"`
}
