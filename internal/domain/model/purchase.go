package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Address is embedded twice in a Purchase, once per role.
type Address struct {
	Street1    string `gorm:"size:255" json:"street1"`
	Street2    string `gorm:"size:255" json:"street2,omitempty"`
	City       string `gorm:"size:100" json:"city"`
	State      string `gorm:"size:100" json:"state"`
	PostalCode string `gorm:"size:20" json:"postal_code"`
	Country    string `gorm:"size:2" json:"country"`
}

// Purchase is the root of the ledger. Its balances are never stored; see
// package ledger.
type Purchase struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo   string `gorm:"column:order_no;uniqueIndex;size:64;not null" json:"order_no"`
	FirstName string `gorm:"size:100" json:"first_name"`
	LastName  string `gorm:"size:100" json:"last_name"`
	Email     string `gorm:"size:255" json:"email"`
	Phone     string `gorm:"size:50" json:"phone,omitempty"`

	Shipping Address `gorm:"embedded;embeddedPrefix:ship_" json:"shipping"`
	Billing  Address `gorm:"embedded;embeddedPrefix:bill_" json:"billing"`

	SubTotal     decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"sub_total"`
	Tax          decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"tax"`
	ShippingCost decimal.Decimal `gorm:"column:shipping_cost;type:decimal(18,2);not null" json:"shipping_cost"`
	Total        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total"`
	Currency     string          `gorm:"size:3;not null" json:"currency"`

	TimeStamp time.Time `gorm:"column:time_stamp;not null" json:"time_stamp"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	LineItems       []LineItem       `gorm:"foreignKey:PurchaseID" json:"line_items,omitempty"`
	Payments        []Payment        `gorm:"foreignKey:PurchaseID" json:"payments,omitempty"`
	Authorizations  []Authorization  `gorm:"foreignKey:PurchaseID" json:"authorizations,omitempty"`
	PendingPayments []PendingPayment `gorm:"foreignKey:PurchaseID" json:"pending_payments,omitempty"`
	Failures        []PaymentFailure `gorm:"foreignKey:PurchaseID" json:"-"`
}

// TableName specifies the table name for GORM
func (Purchase) TableName() string {
	return "purchases"
}

// Recalc derives sub_total from the line items, when there are any, and
// total from sub_total, tax and shipping.
func (p *Purchase) Recalc() {
	if len(p.LineItems) > 0 {
		sub := decimal.Zero
		for i := range p.LineItems {
			p.LineItems[i].Recalc()
			sub = sub.Add(p.LineItems[i].Total)
		}
		p.SubTotal = sub
	}
	p.Total = p.SubTotal.Add(p.Tax).Add(p.ShippingCost).Round(2)
}

// LineItem is one ordered product.
type LineItem struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PurchaseID  int64           `gorm:"column:purchase_id;not null;index" json:"purchase_id"`
	Ordering    int             `gorm:"not null;default:0" json:"ordering"`
	SKU         string          `gorm:"column:sku;size:100" json:"sku,omitempty"`
	Name        string          `gorm:"size:255;not null" json:"name"`
	Description string          `gorm:"type:text" json:"description,omitempty"`
	Quantity    decimal.Decimal `gorm:"type:decimal(18,6);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:decimal(18,2);not null" json:"unit_price"`
	SubTotal    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"sub_total"`
	Discount    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"discount"`
	Tax         decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"tax"`
	Total       decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total"`
}

// TableName specifies the table name for GORM
func (LineItem) TableName() string {
	return "line_items"
}

// Recalc sets sub_total = quantity * unit price and total = sub_total -
// discount + tax.
func (li *LineItem) Recalc() {
	li.SubTotal = li.Quantity.Mul(li.UnitPrice).Round(2)
	li.Total = li.SubTotal.Sub(li.Discount).Add(li.Tax).Round(2)
}
