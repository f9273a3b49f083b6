package domain

import "github.com/shopspring/decimal"

// MoneyScale: число знаков после запятой в денежных колонках NUMERIC(12,2).
const MoneyScale = 2

// HasMoneyScale сообщает, сохранится ли сумма без округления.
// Незначащие нули допустимы: 400.000 равно 400.00.
func HasMoneyScale(amount decimal.Decimal) bool {
	return amount.Equal(amount.Round(MoneyScale))
}

// CartLine: строка корзины пользователя.
type CartLine struct {
	UserID     string
	ProductRef string
	Quantity   int32
}

// Product: запись каталога, из которой берётся снимок цены.
type Product struct {
	Ref       string
	Name      string
	UnitPrice decimal.Decimal
}

// Validate проверяет запись каталога перед сохранением.
func (p Product) Validate() []error {
	var errs []error
	if p.Name == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.UnitPrice.IsNegative() {
		errs = append(errs, ErrItemPriceInvalid)
	}
	if !HasMoneyScale(p.UnitPrice) {
		errs = append(errs, ErrAmountPrecision)
	}
	return errs
}
