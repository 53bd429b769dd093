package domain

import "time"

const (
	SessionStatusOpen   = "open"
	SessionStatusClosed = "closed"
)

const (
	OrderStatusPending    = "pending"
	OrderStatusInProgress = "in_progress"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
	OrderStatusVoided     = "voided"
)

const (
	PaymentMethodCash     = "cash"
	PaymentMethodCard     = "card"
	PaymentMethodTransfer = "transfer"
)

type Product struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category,omitempty"`
	PriceCents int64     `json:"price_cents"`
	Stock      int       `json:"stock"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ProductFilter struct {
	Category        string `json:"category,omitempty"`
	Search          string `json:"search,omitempty"`
	IncludeInactive bool   `json:"include_inactive,omitempty"`
}

type ProductCreateRequest struct {
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	Category   *string `json:"category,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	Stock      *int    `json:"stock,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

type StockAdjustRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

type ProductImportRequest struct {
	Products []ProductCreateRequest `json:"products"`
}

type ProductImportResponse struct {
	Imported int `json:"imported"`
}

type CashSession struct {
	ID                  int64           `json:"id"`
	OpenedAt            time.Time       `json:"opened_at"`
	ClosedAt            *time.Time      `json:"closed_at,omitempty"`
	OpeningAmountCents  int64           `json:"opening_amount_cents"`
	CountedAmountCents  *int64          `json:"counted_amount_cents,omitempty"`
	ExpectedAmountCents *int64          `json:"expected_amount_cents,omitempty"`
	DifferenceCents     *int64          `json:"difference_cents,omitempty"`
	Responsible         string          `json:"responsible"`
	Status              string          `json:"status"`
	Notes               string          `json:"notes,omitempty"`
	Summary             *SessionSummary `json:"summary,omitempty"`
}

type SessionOpenRequest struct {
	OpeningAmountCents int64  `json:"opening_amount_cents"`
	Responsible        string `json:"responsible"`
}

type SessionCloseRequest struct {
	CountedAmountCents int64  `json:"counted_amount_cents"`
	Notes              string `json:"notes"`
}

type CloseResult struct {
	Session                 CashSession    `json:"session"`
	ExpectedCents           int64          `json:"expected_cents"`
	ExpectedByPaymentsCents int64          `json:"expected_by_payments_cents"`
	CountedCents            int64          `json:"counted_cents"`
	DifferenceCents         int64          `json:"difference_cents"`
	Summary                 SessionSummary `json:"summary"`
}

type SessionSummary struct {
	SessionID          int64            `json:"session_id"`
	Date               string           `json:"date"`
	OpeningAmountCents int64            `json:"opening_amount_cents"`
	TotalSalesCents    int64            `json:"total_sales_cents"`
	OpenSalesCents     int64            `json:"open_sales_cents"`
	SettledSalesCents  int64            `json:"settled_sales_cents"`
	OrderCount         int              `json:"order_count"`
	CountsByStatus     map[string]int   `json:"counts_by_status"`
	PaymentsByMethod   map[string]int64 `json:"payments_by_method"`
	TotalPaymentsCents int64            `json:"total_payments_cents"`
}

type Order struct {
	ID             int64       `json:"id"`
	SessionID      int64       `json:"session_id"`
	Status         string      `json:"status"`
	TableRef       string      `json:"table_ref,omitempty"`
	Customer       string      `json:"customer,omitempty"`
	Notes          string      `json:"notes,omitempty"`
	Lines          []OrderLine `json:"lines"`
	Payments       []Payment   `json:"payments,omitempty"`
	SubtotalCents  int64       `json:"subtotal_cents"`
	TaxRateBP      int64       `json:"tax_rate_bp"`
	TaxCents       int64       `json:"tax_cents"`
	TotalCents     int64       `json:"total_cents"`
	ReversalReason string      `json:"reversal_reason,omitempty"`
	ReversedAt     *time.Time  `json:"reversed_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

type OrderLine struct {
	ProductID         int64  `json:"product_id"`
	ProductName       string `json:"product_name"`
	Category          string `json:"category,omitempty"`
	Qty               int    `json:"qty"`
	UnitPriceCents    int64  `json:"unit_price_cents"`
	LineSubtotalCents int64  `json:"line_subtotal_cents"`
}

type OrderLineRequest struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

type OrderCreateRequest struct {
	Lines    []OrderLineRequest `json:"lines"`
	TableRef string             `json:"table_ref"`
	Customer string             `json:"customer"`
	Notes    string             `json:"notes"`
}

type OrderFilter struct {
	Status    string
	From      *time.Time
	To        *time.Time
	TableRef  string
	SessionID int64
	Limit     int
}

type OrderStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type OrderVoidRequest struct {
	Reason     string `json:"reason"`
	ManagerPIN string `json:"manager_pin"`
}

type Payment struct {
	ID          int64     `json:"id"`
	OrderID     int64     `json:"order_id"`
	Method      string    `json:"method"`
	AmountCents int64     `json:"amount_cents"`
	Reference   string    `json:"reference,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type PaymentRequest struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference"`
}

type DateSales struct {
	Date          string `json:"date"`
	OrderCount    int    `json:"order_count"`
	SubtotalCents int64  `json:"subtotal_cents"`
	TaxCents      int64  `json:"tax_cents"`
	TotalCents    int64  `json:"total_cents"`
}

type CategorySales struct {
	Category    string `json:"category"`
	Qty         int    `json:"qty"`
	AmountCents int64  `json:"amount_cents"`
}

type ProductSales struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Category    string `json:"category,omitempty"`
	Qty         int    `json:"qty"`
	AmountCents int64  `json:"amount_cents"`
}

type Settings struct {
	TaxRateBP        int64  `json:"tax_rate_bp"`
	Currency         string `json:"currency"`
	CurrencySymbol   string `json:"currency_symbol"`
	CurrencyDecimals int    `json:"currency_decimals"`
	Locale           string `json:"locale"`
	BusinessName     string `json:"business_name"`
}

type SettingsUpdateRequest struct {
	TaxRateBP        *int64  `json:"tax_rate_bp,omitempty"`
	Currency         *string `json:"currency,omitempty"`
	CurrencySymbol   *string `json:"currency_symbol,omitempty"`
	CurrencyDecimals *int    `json:"currency_decimals,omitempty"`
	Locale           *string `json:"locale,omitempty"`
	BusinessName     *string `json:"business_name,omitempty"`
}

// Dataset is the portable image of everything a backup carries.
type Dataset struct {
	Products []Product     `json:"products"`
	Sessions []CashSession `json:"sessions"`
	Orders   []Order       `json:"orders"`
	Settings *Settings     `json:"settings,omitempty"`
}

type ReceiptResponse struct {
	OrderID      int64  `json:"order_id,omitempty"`
	SessionID    int64  `json:"session_id,omitempty"`
	Kind         string `json:"kind"`
	EscposBase64 string `json:"escpos_base64"`
	PreviewText  string `json:"preview_text"`
	FileName     string `json:"file_name"`
	Printed      bool   `json:"printed"`
}

type CashDrawerOpenResponse struct {
	CommandBase64 string `json:"command_base64"`
	Printed       bool   `json:"printed"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            int64     `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
