package dto

// WSEvent is pushed to live feed clients whenever a record is created.
type WSEvent struct {
	Type        string `json:"type"`
	IdentityID  int64  `json:"identity_id"`
	ExternalKey string `json:"external_key"`
	Name        string `json:"name"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Status      string `json:"status"`
	Method      string `json:"method"`
	RecordedBy  string `json:"recorded_by"`
}
