package valueobject

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderItem is a line item. The subtotal is fixed at construction time as
// unit price times quantity, rounded at scale 2.
type OrderItem struct {
	productID   ProductID
	productName string
	quantity    Quantity
	unitPrice   Money
	subtotal    Money
}

func NewOrderItem(productID ProductID, productName string, quantity Quantity, unitPrice Money) (OrderItem, error) {
	if strings.TrimSpace(productName) == "" {
		return OrderItem{}, fmt.Errorf("%w: product name cannot be blank", ErrValidation)
	}

	return OrderItem{
		productID:   productID,
		productName: productName,
		quantity:    quantity,
		unitPrice:   unitPrice,
		subtotal:    unitPrice.Multiply(quantity.Value()),
	}, nil
}

func CreateOrderItem(productID string, productName string, quantity int, unitPrice decimal.Decimal) (OrderItem, error) {
	pid, err := NewProductID(productID)
	if err != nil {
		return OrderItem{}, err
	}

	qty, err := NewQuantity(quantity)
	if err != nil {
		return OrderItem{}, err
	}

	price, err := MoneyOf(unitPrice)
	if err != nil {
		return OrderItem{}, err
	}

	return NewOrderItem(pid, productName, qty, price)
}

func (i OrderItem) ProductID() ProductID {
	return i.productID
}

func (i OrderItem) ProductName() string {
	return i.productName
}

func (i OrderItem) Quantity() Quantity {
	return i.quantity
}

func (i OrderItem) UnitPrice() Money {
	return i.unitPrice
}

func (i OrderItem) Subtotal() Money {
	return i.subtotal
}
