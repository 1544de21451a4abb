package smartbill

import (
	"github.com/shopspring/decimal"
)

// Party is the invoiced customer as SmartBill expects it.
type Party struct {
	Name       string `json:"name"`
	VATCode    string `json:"vatCode"`
	Address    string `json:"address"`
	City       string `json:"city"`
	County     string `json:"county"`
	Country    string `json:"country"`
	Email      string `json:"email,omitempty"`
	IsTaxPayer bool   `json:"isTaxPayer"`
	SaveToDB   bool   `json:"saveToDb"`
}

// Product is one invoice line. The API takes plain JSON numbers.
type Product struct {
	Name        string  `json:"name"`
	Code        string  `json:"code,omitempty"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	VATPercent  float64 `json:"vatPercent"`
	MeasureUnit string  `json:"measureUnit"`
	IsService   bool    `json:"isService"`
	SaveToDB    bool    `json:"saveToDb"`
}

// NewServiceProduct builds a service line from exact amounts.
func NewServiceProduct(name, unit string, quantity, price, vatPercent decimal.Decimal) Product {
	return Product{
		Name:        name,
		Quantity:    quantity.InexactFloat64(),
		Price:       price.InexactFloat64(),
		VATPercent:  vatPercent.InexactFloat64(),
		MeasureUnit: unit,
		IsService:   true,
	}
}

// InvoiceRequest is the body of POST /invoice.
type InvoiceRequest struct {
	CompanyVATCode string    `json:"companyVatCode"`
	Client         Party     `json:"client"`
	IssueDate      string    `json:"issueDate"`
	DueDate        string    `json:"dueDate,omitempty"`
	SeriesName     string    `json:"seriesName"`
	Currency       string    `json:"currency"`
	IsDraft        bool      `json:"isDraft"`
	UseStock       bool      `json:"useStock"`
	Products       []Product `json:"products"`
}

// InvoiceResponse identifies the issued invoice.
type InvoiceResponse struct {
	Series  string `json:"series"`
	Number  string `json:"number"`
	Message string `json:"message"`
	URL     string `json:"url"`
}

// PaymentStatus is the upstream view of how much of an invoice was paid.
type PaymentStatus struct {
	InvoiceTotalAmount decimal.Decimal `json:"invoiceTotalAmount"`
	PaidAmount         decimal.Decimal `json:"paidAmount"`
	UnpaidAmount       decimal.Decimal `json:"unpaidAmount"`
}

// Payment is one collected amount reported by payment/list.
type Payment struct {
	InvoiceSeries string          `json:"invoiceSeries"`
	InvoiceNumber string          `json:"invoiceNumber"`
	PaidAmount    decimal.Decimal `json:"paidAmount"`
	IssueDate     string          `json:"issueDate"`
	Type          string          `json:"type"`
}

type paymentList struct {
	Payments []Payment `json:"payments"`
}

type seriesList struct {
	List []struct {
		Name string `json:"name"`
	} `json:"list"`
}

type cancelRequest struct {
	CompanyVATCode string `json:"companyVatCode"`
	SeriesName     string `json:"seriesName"`
	Number         string `json:"number"`
}
