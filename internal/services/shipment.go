package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/clovemart/clovemart/internal/db"
	"github.com/clovemart/clovemart/internal/logging"
	"github.com/clovemart/clovemart/internal/shiprocket"
)

type shipmentAPI interface {
	CreateShipment(ctx context.Context, input shiprocket.CreateShipmentInput) (*shiprocket.CreateShipmentResult, error)
}

type shipmentOrderStore interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*db.Order, error)
	SetShipmentID(ctx context.Context, orderID uuid.UUID, shipmentID string) error
}

// ShipmentService registers paid orders with the shipment collaborator.
type ShipmentService struct {
	api    shipmentAPI
	orders shipmentOrderStore
	logger *slog.Logger
}

func NewShipmentService(api shipmentAPI, orders shipmentOrderStore, logger *slog.Logger) *ShipmentService {
	return &ShipmentService{
		api:    api,
		orders: orders,
		logger: logger,
	}
}

// EnsureShipment creates a shipment for the order unless one is already
// recorded. Safe to call repeatedly from webhook redeliveries and operator
// retriggers.
func (s *ShipmentService) EnsureShipment(ctx context.Context, order *db.Order) (string, error) {
	if order == nil {
		return "", fmt.Errorf("order is required")
	}
	if order.ShiprocketShipmentID != "" {
		return order.ShiprocketShipmentID, nil
	}
	if order.PaymentStatus != db.PaymentPaid {
		return "", fmt.Errorf("order %s is not paid, refusing to create shipment", order.ID)
	}
	if s.api == nil {
		return "", fmt.Errorf("shipment collaborator is not configured")
	}

	logger := logging.FromContext(ctx, s.logger)

	items := make([]shiprocket.ShipmentItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, shiprocket.ShipmentItem{
			Name:         item.SKU,
			SKU:          item.SKU,
			Units:        item.Quantity,
			SellingPrice: float64(item.UnitPricePaise) / 100,
		})
	}

	address := order.Metadata.ShippingAddress
	result, err := s.api.CreateShipment(ctx, shiprocket.CreateShipmentInput{
		OrderNumber:   order.OrderNumber,
		OrderDate:     order.CreatedAt,
		CustomerName:  order.Metadata.CustomerName,
		CustomerEmail: order.Metadata.CustomerEmail,
		CustomerPhone: order.Metadata.CustomerPhone,
		AddressLine1:  address.Line1,
		AddressLine2:  address.Line2,
		City:          address.City,
		State:         address.State,
		Pincode:       address.Pincode,
		Country:       address.Country,
		Items:         items,
		SubTotal:      float64(order.SubtotalPaise) / 100,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create shipment for order %s: %w", order.OrderNumber, err)
	}

	if err := s.orders.SetShipmentID(ctx, order.ID, result.ShipmentID); err != nil {
		// The shipment exists remotely; the next retrigger will find it by
		// order number on the collaborator side.
		return result.ShipmentID, fmt.Errorf("failed to record shipment id for order %s: %w", order.ID, err)
	}
	order.ShiprocketShipmentID = result.ShipmentID

	logger.Info("shipment created", "order_number", order.OrderNumber, "shipment_id", result.ShipmentID)
	return result.ShipmentID, nil
}

// RetriggerShipment reloads the order and runs EnsureShipment, used by the
// operator endpoint.
func (s *ShipmentService) RetriggerShipment(ctx context.Context, orderID uuid.UUID) (string, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("failed to load order: %w", err)
	}
	return s.EnsureShipment(ctx, order)
}
