package valueobject

import (
	"fmt"
	"strings"
)

type CustomerID struct {
	value string
}

func NewCustomerID(value string) (CustomerID, error) {
	if strings.TrimSpace(value) == "" {
		return CustomerID{}, fmt.Errorf("%w: customer id cannot be blank", ErrValidation)
	}

	return CustomerID{value: value}, nil
}

func (c CustomerID) Value() string {
	return c.value
}

type ProductID struct {
	value string
}

func NewProductID(value string) (ProductID, error) {
	if strings.TrimSpace(value) == "" {
		return ProductID{}, fmt.Errorf("%w: product id cannot be blank", ErrValidation)
	}

	return ProductID{value: value}, nil
}

func (p ProductID) Value() string {
	return p.value
}
