package model

// Identity is what the identity collaborator hands the engine. Both fields are opaque.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}
