package constants

// DocStatus is the canonical per-document outcome recorded in the run ledger.
type DocStatus string

// Stable values (store these exact strings).
const (
	DocStatusIdentified DocStatus = "IDENTIFIED" // a valid CNPJ/CPF was resolved
	DocStatusUnresolved DocStatus = "UNRESOLVED" // no identifier could be recovered
	DocStatusErrored    DocStatus = "ERRORED"    // extraction failed outright
)

// DocType distinguishes the two document templates the pipeline understands.
type DocType string

const (
	DocTypeBoleto  DocType = "BOLETO"
	DocTypeInvoice DocType = "NF"
)
