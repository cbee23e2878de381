package models

// PeerInfo describes a currently reachable client
type PeerInfo struct {
	UUID string `json:"uuid"`
	Name string `json:"name,omitempty"`
}

// ICEServer is served to clients so they share the relay's STUN/TURN list.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Peers  int    `json:"peers"`
}
