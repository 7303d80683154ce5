package models

// MatchCandidate is a donor that passed the geo filter, with its rounded distance and score.
type MatchCandidate struct {
	Donor      *Donor  `json:"-"`
	DistanceKm float64 `json:"distance_km"`
	Score      float64 `json:"score"`
}

// AlertRequest is an urgent-need alert raised by a hospital.
type AlertRequest struct {
	HospitalID int64     `json:"hospital_id" validate:"required,gt=0"`
	BloodType  BloodType `json:"blood_type" validate:"required,bloodtype"`
	// RadiusKm is optional; nil selects the configured default.
	RadiusKm *float64 `json:"radius_km,omitempty"`
	Limit    int      `json:"limit,omitempty" validate:"gte=0"`
}

// RankedDonor is a serialized MatchCandidate.
type RankedDonor struct {
	Donor      DonorSummary `json:"donor"`
	DistanceKm float64      `json:"distance_km"`
	Score      float64      `json:"score"`
}

// AlertResult is the ranked response for an alert.
type AlertResult struct {
	Hospital        *Hospital     `json:"hospital"`
	BloodTypeNeeded BloodType     `json:"blood_type_needed"`
	RadiusKm        float64       `json:"radius_km"`
	TotalMatched    int           `json:"total_matched"`
	Excluded        int           `json:"excluded,omitempty"`
	Donors          []RankedDonor `json:"donors"`
}

// DonorIDs returns the IDs of the ranked donors in rank order.
func (r *AlertResult) DonorIDs() []int64 {
	ids := make([]int64, len(r.Donors))
	for i, d := range r.Donors {
		ids[i] = d.Donor.ID
	}
	return ids
}

// NotifyRequest asks for an alert email to be sent to the selected donors.
type NotifyRequest struct {
	DonorIDs []int64 `json:"donor_ids" validate:"required,min=1"`
	Message  string  `json:"message" validate:"required"`
}

// NotifyResult reports how many alert emails went out.
type NotifyResult struct {
	Requested int      `json:"requested"`
	Sent      int      `json:"sent"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// SupportRequest is a message from the public contact form.
type SupportRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"required"`
	Message string `json:"message" validate:"required"`
}
