package model

// Recipe is an immutable deployment recipe as loaded from the catalog (C11).
type Recipe struct {
	UUID       string `json:"uuid"`
	Restricted bool   `json:"restricted"`
	ChartRef   string `json:"chart_ref"`
	// Description is an optional human-readable blurb, populated either from
	// a local descriptor file or from the remote catalog mirror (rendered to
	// Markdown). Empty when unavailable.
	Description string `json:"description,omitempty"`
}

// Descriptor is the public shape returned by GET /api/v1/recipes/{uuid}.
type Descriptor struct {
	UUID        string `json:"uuid"`
	ChartRef    string `json:"chart_ref"`
	Description string `json:"description,omitempty"`
}

// AsDict projects a Recipe to its public descriptor (restricted recipes are
// filtered out by the caller before this is ever built).
func (r *Recipe) AsDict() Descriptor {
	return Descriptor{UUID: r.UUID, ChartRef: r.ChartRef, Description: r.Description}
}
