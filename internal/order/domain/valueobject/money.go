package valueobject

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "BRL"

// Money is an immutable amount in a single currency, kept at scale 2 with
// half-up rounding.
type Money struct {
	amount   decimal.Decimal
	currency string
}

func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("%w: amount cannot be negative", ErrValidation)
	}
	if strings.TrimSpace(currency) == "" {
		return Money{}, fmt.Errorf("%w: currency cannot be blank", ErrValidation)
	}

	return Money{amount: amount.Round(2), currency: currency}, nil
}

func MoneyOf(amount decimal.Decimal) (Money, error) {
	return NewMoney(amount, DefaultCurrency)
}

func ZeroMoney(currency string) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

func (m Money) Amount() decimal.Decimal {
	return m.amount
}

func (m Money) Currency() string {
	return m.currency
}

func (m Money) Add(other Money) (Money, error) {
	if err := m.validateCurrency(other); err != nil {
		return Money{}, err
	}

	return Money{amount: m.amount.Add(other.amount).Round(2), currency: m.currency}, nil
}

func (m Money) Subtract(other Money) (Money, error) {
	if err := m.validateCurrency(other); err != nil {
		return Money{}, err
	}

	result := m.amount.Sub(other.amount)
	if result.IsNegative() {
		return Money{}, fmt.Errorf("%w: amount cannot be negative", ErrValidation)
	}

	return Money{amount: result.Round(2), currency: m.currency}, nil
}

func (m Money) Multiply(multiplier int) Money {
	return Money{
		amount:   m.amount.Mul(decimal.NewFromInt(int64(multiplier))).Round(2),
		currency: m.currency,
	}
}

func (m Money) GreaterThan(other Money) (bool, error) {
	if err := m.validateCurrency(other); err != nil {
		return false, err
	}

	return m.amount.GreaterThan(other.amount), nil
}

func (m Money) LessThan(other Money) (bool, error) {
	if err := m.validateCurrency(other); err != nil {
		return false, err
	}

	return m.amount.LessThan(other.amount), nil
}

func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(2), m.currency)
}

func (m Money) validateCurrency(other Money) error {
	if m.currency != other.currency {
		return fmt.Errorf("%w: cannot operate on different currencies: %s and %s",
			ErrValidation, m.currency, other.currency)
	}

	return nil
}
