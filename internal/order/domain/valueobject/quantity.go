package valueobject

import "fmt"

type Quantity struct {
	value int
}

func NewQuantity(value int) (Quantity, error) {
	if value < 1 {
		return Quantity{}, fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}

	return Quantity{value: value}, nil
}

func (q Quantity) Value() int {
	return q.value
}

func (q Quantity) Add(other Quantity) Quantity {
	return Quantity{value: q.value + other.value}
}

func (q Quantity) Subtract(other Quantity) (Quantity, error) {
	return NewQuantity(q.value - other.value)
}
