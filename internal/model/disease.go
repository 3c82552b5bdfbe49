package model

// Disease is an entry of the disease reference guide.
type Disease struct {
	ID             int64  `json:"id"`
	Name           string `json:"disease_name"`
	Description    string `json:"description"`
	Symptoms       string `json:"symptoms"`
	Causes         string `json:"causes"`
	Treatment      string `json:"treatment"`
	Prevention     string `json:"prevention"`
	SeverityLevel  string `json:"severity_level"`
	AffectedPlants string `json:"affected_plants"`
}
