package einvoice

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rykyfilipe/efactura-engine/models"
)

// Generate renders the normalized invoice snapshot into a UBL 2.1 document
// accepted by the authority's validator. The function is deterministic and
// has no side effects: same inputs, same bytes.
func Generate(inv *models.Invoice, company *models.Company, customer *models.Customer) (string, error) {
	if inv == nil || company == nil || customer == nil {
		return "", fmt.Errorf("invoice, company and customer are all required")
	}
	if inv.Number == "" {
		return "", fmt.Errorf("invoice number is required")
	}
	if len(inv.Items) == 0 {
		return "", fmt.Errorf("invoice has no items")
	}
	if inv.Currency == "" {
		return "", fmt.Errorf("invoice currency is required")
	}

	totals := computeTotals(inv)

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("\n")
	b.WriteString(`<Invoice xmlns="` + NamespaceInvoice + `" xmlns:cac="` + NamespaceCAC + `" xmlns:cbc="` + NamespaceCBC + `">`)

	b.WriteString(`<cbc:CustomizationID>` + CustomizationID + `</cbc:CustomizationID>`)
	b.WriteString(`<cbc:ID>` + escape(inv.Number) + `</cbc:ID>`)
	b.WriteString(`<cbc:IssueDate>` + inv.IssueDate.Format("2006-01-02") + `</cbc:IssueDate>`)
	b.WriteString(`<cbc:DueDate>` + inv.DueDate.Format("2006-01-02") + `</cbc:DueDate>`)
	b.WriteString(`<cbc:InvoiceTypeCode>` + InvoiceTypeCode + `</cbc:InvoiceTypeCode>`)
	b.WriteString(`<cbc:DocumentCurrencyCode>` + escape(inv.Currency) + `</cbc:DocumentCurrencyCode>`)

	writeSupplierParty(&b, company)
	writeCustomerParty(&b, customer)

	writeTaxTotal(&b, inv.Currency, totals)
	writeMonetaryTotal(&b, inv.Currency, totals)

	for i, item := range inv.Items {
		writeInvoiceLine(&b, inv.Currency, i+1, &item)
	}

	b.WriteString(`</Invoice>`)
	return b.String(), nil
}

type taxSubtotal struct {
	rate    float64
	taxable float64
	tax     float64
}

type invoiceTotals struct {
	lineExtension float64
	taxAmount     float64
	subtotals     []taxSubtotal
}

func computeTotals(inv *models.Invoice) invoiceTotals {
	var totals invoiceTotals
	index := map[float64]int{}

	for _, item := range inv.Items {
		lineExt := round2(item.LineTotal())
		tax := round2(lineExt * item.VATRate / 100)

		totals.lineExtension = round2(totals.lineExtension + lineExt)
		totals.taxAmount = round2(totals.taxAmount + tax)

		if i, ok := index[item.VATRate]; ok {
			totals.subtotals[i].taxable = round2(totals.subtotals[i].taxable + lineExt)
			totals.subtotals[i].tax = round2(totals.subtotals[i].tax + tax)
		} else {
			index[item.VATRate] = len(totals.subtotals)
			totals.subtotals = append(totals.subtotals, taxSubtotal{rate: item.VATRate, taxable: lineExt, tax: tax})
		}
	}

	return totals
}

func writeSupplierParty(b *strings.Builder, company *models.Company) {
	b.WriteString(`<cac:AccountingSupplierParty><cac:Party>`)
	writePartyCore(b, company.Name, company.TaxID, company.Address, company.City, company.County, company.Country)
	b.WriteString(`<cac:PartyLegalEntity><cbc:RegistrationName>` + escape(company.Name) + `</cbc:RegistrationName>`)
	if company.RegistrationNumber != "" {
		b.WriteString(`<cbc:CompanyID>` + escape(company.RegistrationNumber) + `</cbc:CompanyID>`)
	}
	b.WriteString(`</cac:PartyLegalEntity>`)
	writeContact(b, company.Email, company.Phone)
	b.WriteString(`</cac:Party></cac:AccountingSupplierParty>`)
}

func writeCustomerParty(b *strings.Builder, customer *models.Customer) {
	b.WriteString(`<cac:AccountingCustomerParty><cac:Party>`)
	writePartyCore(b, customer.Name, customer.TaxID, customer.Address, customer.City, customer.County, customer.Country)
	b.WriteString(`<cac:PartyLegalEntity><cbc:RegistrationName>` + escape(customer.Name) + `</cbc:RegistrationName></cac:PartyLegalEntity>`)
	writeContact(b, customer.Email, customer.Phone)
	b.WriteString(`</cac:Party></cac:AccountingCustomerParty>`)
}

func writePartyCore(b *strings.Builder, name, taxID, address, city, county, country string) {
	b.WriteString(`<cac:PartyName><cbc:Name>` + escape(name) + `</cbc:Name></cac:PartyName>`)
	b.WriteString(`<cac:PostalAddress>`)
	if address != "" {
		b.WriteString(`<cbc:StreetName>` + escape(address) + `</cbc:StreetName>`)
	}
	if city != "" {
		b.WriteString(`<cbc:CityName>` + escape(city) + `</cbc:CityName>`)
	}
	if county != "" {
		b.WriteString(`<cbc:CountrySubentity>` + escape(county) + `</cbc:CountrySubentity>`)
	}
	b.WriteString(`<cac:Country><cbc:IdentificationCode>` + escape(countryOrDefault(country)) + `</cbc:IdentificationCode></cac:Country>`)
	b.WriteString(`</cac:PostalAddress>`)
	if taxID != "" {
		b.WriteString(`<cac:PartyTaxScheme><cbc:CompanyID>` + escape(taxID) + `</cbc:CompanyID>`)
		b.WriteString(`<cac:TaxScheme><cbc:ID>VAT</cbc:ID></cac:TaxScheme></cac:PartyTaxScheme>`)
	}
}

func writeContact(b *strings.Builder, email, phone string) {
	if email == "" && phone == "" {
		return
	}
	b.WriteString(`<cac:Contact>`)
	if phone != "" {
		b.WriteString(`<cbc:Telephone>` + escape(phone) + `</cbc:Telephone>`)
	}
	if email != "" {
		b.WriteString(`<cbc:ElectronicMail>` + escape(email) + `</cbc:ElectronicMail>`)
	}
	b.WriteString(`</cac:Contact>`)
}

func writeTaxTotal(b *strings.Builder, currency string, totals invoiceTotals) {
	b.WriteString(`<cac:TaxTotal>`)
	b.WriteString(`<cbc:TaxAmount currencyID="` + escape(currency) + `">` + amount(totals.taxAmount) + `</cbc:TaxAmount>`)
	for _, sub := range totals.subtotals {
		b.WriteString(`<cac:TaxSubtotal>`)
		b.WriteString(`<cbc:TaxableAmount currencyID="` + escape(currency) + `">` + amount(sub.taxable) + `</cbc:TaxableAmount>`)
		b.WriteString(`<cbc:TaxAmount currencyID="` + escape(currency) + `">` + amount(sub.tax) + `</cbc:TaxAmount>`)
		b.WriteString(`<cac:TaxCategory><cbc:ID>S</cbc:ID><cbc:Percent>` + amount(sub.rate) + `</cbc:Percent>`)
		b.WriteString(`<cac:TaxScheme><cbc:ID>VAT</cbc:ID></cac:TaxScheme></cac:TaxCategory>`)
		b.WriteString(`</cac:TaxSubtotal>`)
	}
	b.WriteString(`</cac:TaxTotal>`)
}

func writeMonetaryTotal(b *strings.Builder, currency string, totals invoiceTotals) {
	taxInclusive := round2(totals.lineExtension + totals.taxAmount)
	cur := escape(currency)

	b.WriteString(`<cac:LegalMonetaryTotal>`)
	b.WriteString(`<cbc:LineExtensionAmount currencyID="` + cur + `">` + amount(totals.lineExtension) + `</cbc:LineExtensionAmount>`)
	b.WriteString(`<cbc:TaxExclusiveAmount currencyID="` + cur + `">` + amount(totals.lineExtension) + `</cbc:TaxExclusiveAmount>`)
	b.WriteString(`<cbc:TaxInclusiveAmount currencyID="` + cur + `">` + amount(taxInclusive) + `</cbc:TaxInclusiveAmount>`)
	b.WriteString(`<cbc:PayableAmount currencyID="` + cur + `">` + amount(taxInclusive) + `</cbc:PayableAmount>`)
	b.WriteString(`</cac:LegalMonetaryTotal>`)
}

func writeInvoiceLine(b *strings.Builder, currency string, lineNo int, item *models.InvoiceItem) {
	lineExt := round2(item.LineTotal())
	cur := escape(currency)

	b.WriteString(`<cac:InvoiceLine>`)
	b.WriteString(`<cbc:ID>` + strconv.Itoa(lineNo) + `</cbc:ID>`)
	b.WriteString(`<cbc:InvoicedQuantity unitCode="` + UnitCode(strings.ToLower(item.Unit)) + `">` + amount(item.Quantity) + `</cbc:InvoicedQuantity>`)
	b.WriteString(`<cbc:LineExtensionAmount currencyID="` + cur + `">` + amount(lineExt) + `</cbc:LineExtensionAmount>`)
	b.WriteString(`<cac:Item><cbc:Name>` + escape(item.Description) + `</cbc:Name>`)
	b.WriteString(`<cac:ClassifiedTaxCategory><cbc:ID>S</cbc:ID><cbc:Percent>` + amount(item.VATRate) + `</cbc:Percent>`)
	b.WriteString(`<cac:TaxScheme><cbc:ID>VAT</cbc:ID></cac:TaxScheme></cac:ClassifiedTaxCategory>`)
	b.WriteString(`</cac:Item>`)
	b.WriteString(`<cac:Price><cbc:PriceAmount currencyID="` + cur + `">` + amount(item.UnitPrice) + `</cbc:PriceAmount></cac:Price>`)
	b.WriteString(`</cac:InvoiceLine>`)
}

func countryOrDefault(country string) string {
	if country == "" {
		return "RO"
	}
	return country
}

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escape(s string) string {
	return escaper.Replace(s)
}

// amount renders every monetary and quantity value with exactly two
// decimals, as the validator requires.
func amount(v float64) string {
	return strconv.FormatFloat(round2(v), 'f', 2, 64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
