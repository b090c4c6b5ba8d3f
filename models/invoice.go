package models

import (
	"time"
)

// Invoice is the normalized snapshot handed to the XML generator. The
// invoicing CRUD layer owns these rows; the engine only reads them.
type Invoice struct {
	ID        string        `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	TenantID  string        `json:"tenant_id" gorm:"not null;index"`
	Number    string        `json:"number" gorm:"not null"`
	IssueDate time.Time     `json:"issue_date" gorm:"not null"`
	DueDate   time.Time     `json:"due_date" gorm:"not null"`
	Currency  string        `json:"currency" gorm:"not null;default:'RON'"`
	Items     []InvoiceItem `json:"items" gorm:"foreignKey:InvoiceID"`
	CreatedAt time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

type InvoiceItem struct {
	ID          string  `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	InvoiceID   string  `json:"invoice_id" gorm:"not null;index"`
	Description string  `json:"description" gorm:"not null"`
	Quantity    float64 `json:"quantity" gorm:"not null"`
	Unit        string  `json:"unit" gorm:"default:'piece'"`
	UnitPrice   float64 `json:"unit_price" gorm:"not null"`
	VATRate     float64 `json:"vat_rate" gorm:"not null"`
}

// LineTotal is the VAT-exclusive extension amount of the item.
func (i *InvoiceItem) LineTotal() float64 {
	return i.Quantity * i.UnitPrice
}

// Company is the supplier party of the generated document.
type Company struct {
	ID                 string `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	TenantID           string `json:"tenant_id" gorm:"not null;index"`
	Name               string `json:"name" gorm:"not null"`
	TaxID              string `json:"tax_id" gorm:"not null"`
	RegistrationNumber string `json:"registration_number"`
	Address            string `json:"address"`
	City               string `json:"city"`
	County             string `json:"county"`
	Country            string `json:"country" gorm:"default:'RO'"`
	Email              string `json:"email"`
	Phone              string `json:"phone"`
}

// Customer is the buyer party of the generated document.
type Customer struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	TenantID string `json:"tenant_id" gorm:"not null;index"`
	Name     string `json:"name" gorm:"not null"`
	TaxID    string `json:"tax_id"`
	Address  string `json:"address"`
	City     string `json:"city"`
	County   string `json:"county"`
	Country  string `json:"country" gorm:"default:'RO'"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}
