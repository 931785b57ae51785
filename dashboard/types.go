package dashboard

// Organization is a dashboard organization
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Network is a network inside an organization
type Network struct {
	ID             string   `json:"id"`
	OrganizationID string   `json:"organizationId"`
	Name           string   `json:"name"`
	ProductTypes   []string `json:"productTypes,omitempty"`
}

// FloorPlan describes a floor plan image and its real-world size in meters
type FloorPlan struct {
	ID             string  `json:"floorPlanId"`
	Name           string  `json:"name"`
	Width          float64 `json:"width"`
	Height         float64 `json:"height"`
	ImageURL       string  `json:"imageUrl"`
	ImageExtension string  `json:"imageExtension"`
}
