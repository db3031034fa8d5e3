package admin

// AdminResponse names the current administrator.
type AdminResponse struct {
	Admin string `json:"admin"`
}
