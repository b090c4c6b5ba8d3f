package einvoice

// UBL 2.1 namespaces and the CIUS-RO customization required by the
// authority's validator.
const (
	NamespaceInvoice = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	NamespaceCAC     = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	NamespaceCBC     = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"

	CustomizationID = "urn:cen.eu:en16931:2017#compliant#urn:efactura.mfinante.ro:CIUS-RO:1.0.1"

	InvoiceTypeCode = "380"
)

// unitCodes maps the platform's free-text units onto UN/ECE Recommendation 20
// codes. Anything unrecognized falls back to C62 (unit/piece).
var unitCodes = map[string]string{
	"piece":     "C62",
	"unit":      "C62",
	"kilogram":  "KGM",
	"kg":        "KGM",
	"gram":      "GRM",
	"hour":      "HUR",
	"day":       "DAY",
	"month":     "MON",
	"litre":     "LTR",
	"liter":     "LTR",
	"meter":     "MTR",
	"metre":     "MTR",
	"kilometer": "KMT",
	"square":    "MTK",
	"set":       "SET",
	"pack":      "PK",
}

const defaultUnitCode = "C62"

// UnitCode resolves a unit-of-measure string to its UN/ECE code.
func UnitCode(unit string) string {
	if code, ok := unitCodes[unit]; ok {
		return code
	}
	return defaultUnitCode
}
