package dto

type RecordResponse struct {
	ID         int64  `json:"id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Status     string `json:"status"`
	Method     string `json:"method"`
	RecordedBy string `json:"recorded_by"`
}

type MatchResponse struct {
	Label        int64   `json:"label"`
	Distance     float64 `json:"distance"`
	Confidence   float64 `json:"confidence"`
	Tier         string  `json:"tier"`
	ModelVersion string  `json:"model_version"`
}

type BoxResponse struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MarkResponse is returned by every marking endpoint.
type MarkResponse struct {
	Status      string          `json:"status"`
	ExternalKey string          `json:"external_key,omitempty"`
	Name        string          `json:"name,omitempty"`
	Record      *RecordResponse `json:"record,omitempty"`
	Match       *MatchResponse  `json:"match,omitempty"`
	Face        *BoxResponse    `json:"face,omitempty"`
	Detail      string          `json:"detail,omitempty"`
}

type ManualMarkRequest struct {
	ExternalKey string `json:"external_key" binding:"required"`
}

type HistoryResponse struct {
	ExternalKey string           `json:"external_key"`
	Name        string           `json:"name"`
	Records     []RecordResponse `json:"records"`
	Total       int              `json:"total"`
}

type ReportRowResponse struct {
	ExternalKey string `json:"external_key"`
	Name        string `json:"name"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Status      string `json:"status"`
	Method      string `json:"method"`
}

type ReportResponse struct {
	From  string              `json:"from"`
	To    string              `json:"to"`
	Rows  []ReportRowResponse `json:"rows"`
	Total int                 `json:"total"`
}

type StatsResponse struct {
	Date                  string  `json:"date"`
	TotalIdentities       int     `json:"total_identities"`
	PresentToday          int     `json:"present_today"`
	AbsentToday           int     `json:"absent_today"`
	AttendanceRatePercent float64 `json:"attendance_rate_percent"`
	PresentThisWeek       int     `json:"present_this_week"`
}

type ModelStatusResponse struct {
	Trained   bool   `json:"trained"`
	Version   string `json:"version,omitempty"`
	Labels    int    `json:"labels"`
	Samples   int    `json:"samples"`
	TrainedAt string `json:"trained_at,omitempty"`
}

type TrainResponse struct {
	JobID string `json:"job_id,omitempty"`
	// Model is set when training ran inline rather than through the queue.
	Model *ModelStatusResponse `json:"model,omitempty"`
}
