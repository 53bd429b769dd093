package domain

// MaxTaxRateBP is 100% expressed in basis points.
const MaxTaxRateBP = 10000

// TaxCents rounds half up on the integer product so repeated sums never drift.
func TaxCents(subtotalCents int64, rateBP int64) int64 {
	if subtotalCents <= 0 || rateBP <= 0 {
		return 0
	}
	return (subtotalCents*rateBP + MaxTaxRateBP/2) / MaxTaxRateBP
}

// Totals returns subtotal, tax and total for the given lines at rateBP.
func Totals(lines []OrderLine, rateBP int64) (subtotal int64, tax int64, total int64) {
	for _, line := range lines {
		subtotal += line.LineSubtotalCents
	}
	tax = TaxCents(subtotal, rateBP)
	return subtotal, tax, subtotal + tax
}

func IsPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer:
		return true
	}
	return false
}

func PaymentMethods() []string {
	return []string{PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer}
}
