package domain

// Organization is a tenant. Every document belongs to exactly one.
type Organization struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}
