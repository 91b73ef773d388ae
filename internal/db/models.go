package db

import "github.com/clovemart/clovemart/internal/models"

type Order = models.Order
type OrderItem = models.OrderItem
type PaymentLog = models.PaymentLog
type Variant = models.Variant
type WalletTransaction = models.WalletTransaction

const (
	PaymentPending  = models.PaymentPending
	PaymentPaid     = models.PaymentPaid
	PaymentFailed   = models.PaymentFailed
	PaymentRefunded = models.PaymentRefunded
)

const (
	OrderCreated   = models.OrderCreated
	OrderPaid      = models.OrderPaid
	OrderCancelled = models.OrderCancelled
)
