package payments

// Package is one fixed burn-to-calls tier.
type Package struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	TokensNeeded float64 `json:"tokens_required"`
	CallsGranted int     `json:"calls"`
	PricePerCall float64 `json:"price_per_call"`
	Discount     string  `json:"discount,omitempty"`
	BestFor      string  `json:"best_for"`
	Popular      bool    `json:"popular,omitempty"`
}

// Catalog is the fixed set of purchasable packages, bulk-discounted to
// reward larger burns.
var Catalog = []Package{
	{ID: "small", Name: "100 API Calls", TokensNeeded: 1000, CallsGranted: 100, PricePerCall: 10, BestFor: "Casual users"},
	{ID: "medium", Name: "600 API Calls", TokensNeeded: 5000, CallsGranted: 600, PricePerCall: 8.33, Discount: "17% off", BestFor: "Regular users", Popular: true},
	{ID: "large", Name: "1500 API Calls", TokensNeeded: 10000, CallsGranted: 1500, PricePerCall: 6.67, Discount: "33% off", BestFor: "Power users"},
}

// Lookup returns the package with the given id, or nil.
func Lookup(id string) *Package {
	for i := range Catalog {
		if Catalog[i].ID == id {
			return &Catalog[i]
		}
	}
	return nil
}
