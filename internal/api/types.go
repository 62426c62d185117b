package api

// DeathRequest is the body of POST /api/v1/deaths.
type DeathRequest struct {
	AreaID string `json:"area_id"`
}

// DeathResponse is the payload returned after logging a death.
type DeathResponse struct {
	AreaID     string  `json:"area_id"`
	DeathCount float64 `json:"death_count"`
}

// DreadAreaResponse is one area's dread level, used both for single-area
// reads and the elevated list.
type DreadAreaResponse struct {
	AreaID     string `json:"area_id"`
	DreadLevel int    `json:"dread_level"`
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	AreasTracked  int    `json:"areas_tracked"`
	ElevatedCount int    `json:"elevated_count"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
