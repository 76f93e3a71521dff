package dto

type CreateIdentityRequest struct {
	ExternalKey string `json:"external_key" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Department  string `json:"department"`
}

type IdentityResponse struct {
	ID          int64  `json:"id"`
	ExternalKey string `json:"external_key"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Department  string `json:"department,omitempty"`
	SampleCount int    `json:"sample_count"`
	CreatedAt   string `json:"created_at"`
}

type SampleResponse struct {
	ID          string `json:"id"`
	IdentityID  int64  `json:"identity_id"`
	ObjectKey   string `json:"object_key"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	SampleCount int    `json:"sample_count"`
	// RetrainQueued is false when the rebuild request could not be published.
	RetrainQueued bool `json:"retrain_queued"`
}

// IdentityInfoResponse backs the student panel: the identity plus recent records.
type IdentityInfoResponse struct {
	Identity IdentityResponse `json:"identity"`
	History  []RecordResponse `json:"history"`
}
