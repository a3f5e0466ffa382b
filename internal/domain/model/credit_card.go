package model

import "time"

// CreditCard is a stored card reference. EncryptedToken holds the gateway
// token (never a card number) sealed with EncryptionIV; LastFour is for
// display only.
type CreditCard struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PurchaseID     int64     `gorm:"column:purchase_id;not null;index" json:"purchase_id"`
	Gateway        string    `gorm:"size:50;not null" json:"gateway"`
	CardType       string    `gorm:"column:card_type;size:20" json:"card_type"`
	LastFour       string    `gorm:"column:last_four;size:4;not null" json:"last_four"`
	ExpireMonth    int       `gorm:"column:expire_month" json:"expire_month"`
	ExpireYear     int       `gorm:"column:expire_year" json:"expire_year"`
	EncryptedToken string    `gorm:"column:encrypted_token;type:text;not null" json:"-"`
	EncryptionIV   string    `gorm:"column:encryption_iv;type:text;not null" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (CreditCard) TableName() string {
	return "credit_cards"
}
