// Package models defines the data structures for the blood alert engine.
package models

import (
	"strings"
	"time"
)

// BloodType represents an ABO/Rh blood group.
type BloodType string

const (
	BloodTypeOPositive  BloodType = "O+"
	BloodTypeONegative  BloodType = "O-"
	BloodTypeAPositive  BloodType = "A+"
	BloodTypeANegative  BloodType = "A-"
	BloodTypeBPositive  BloodType = "B+"
	BloodTypeBNegative  BloodType = "B-"
	BloodTypeABPositive BloodType = "AB+"
	BloodTypeABNegative BloodType = "AB-"
)

// ValidBloodTypes returns all valid blood type values.
func ValidBloodTypes() []BloodType {
	return []BloodType{
		BloodTypeOPositive,
		BloodTypeONegative,
		BloodTypeAPositive,
		BloodTypeANegative,
		BloodTypeBPositive,
		BloodTypeBNegative,
		BloodTypeABPositive,
		BloodTypeABNegative,
	}
}

// IsValid checks if the blood type is one of the eight ABO/Rh groups.
func (b BloodType) IsValid() bool {
	for _, valid := range ValidBloodTypes() {
		if b == valid {
			return true
		}
	}
	return false
}

// NormalizeBloodType converts common spellings ("o pos", "ab-", "A neg") to standard values.
func NormalizeBloodType(value string) BloodType {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, " ", "")

	switch {
	case strings.HasSuffix(normalized, "POSITIVE"):
		normalized = strings.TrimSuffix(normalized, "POSITIVE") + "+"
	case strings.HasSuffix(normalized, "NEGATIVE"):
		normalized = strings.TrimSuffix(normalized, "NEGATIVE") + "-"
	case strings.HasSuffix(normalized, "POS"):
		normalized = strings.TrimSuffix(normalized, "POS") + "+"
	case strings.HasSuffix(normalized, "NEG"):
		normalized = strings.TrimSuffix(normalized, "NEG") + "-"
	}

	// Return as-is if not recognised (will fail validation)
	return BloodType(normalized)
}

// Role is the account role of a registered user.
type Role string

const (
	RoleDonor Role = "donor"
	RoleStaff Role = "staff"
)

// Donor represents a registered user who can be matched to a blood alert.
type Donor struct {
	ID           int64       `json:"id" db:"id"`
	Name         string      `json:"name" db:"name"`
	Email        string      `json:"email" db:"email"`
	Phone        string      `json:"phone" db:"phone"`
	Role         Role        `json:"role" db:"role"`
	Address      string      `json:"address,omitempty" db:"address"`
	BloodType    BloodType   `json:"blood_type,omitempty" db:"blood_type"`
	Location     *Coordinate `json:"location,omitempty"`
	LastDonation *time.Time  `json:"last_donation,omitempty" db:"last_donation"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// HasLocation reports whether the donor has a geocoded position.
func (d *Donor) HasLocation() bool {
	return d.Location != nil
}

// DonorSummary is the view of a donor returned in alert results.
type DonorSummary struct {
	ID           int64       `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	Phone        string      `json:"phone"`
	Address      string      `json:"address,omitempty"`
	BloodType    BloodType   `json:"blood_type"`
	Location     *Coordinate `json:"location,omitempty"`
	LastDonation string      `json:"last_donation,omitempty"`
}

// ToSummary converts a Donor to DonorSummary.
func (d *Donor) ToSummary() DonorSummary {
	summary := DonorSummary{
		ID:        d.ID,
		Name:      d.Name,
		Email:     d.Email,
		Phone:     d.Phone,
		Address:   d.Address,
		BloodType: d.BloodType,
		Location:  d.Location,
	}
	if d.LastDonation != nil {
		summary.LastDonation = d.LastDonation.Format(DateLayout)
	}
	return summary
}

// DonorCreate represents the data needed to register a new donor.
type DonorCreate struct {
	Name             string      `json:"full_name" validate:"required,max=100"`
	Email            string      `json:"email" validate:"required,email,max=120"`
	Phone            string      `json:"phone" validate:"required,max=15"`
	Address          string      `json:"address" validate:"required,max=200"`
	BloodType        BloodType   `json:"blood_type" validate:"required,bloodtype"`
	LastDonationDate string      `json:"last_donation_date,omitempty"`
	Location         *Coordinate `json:"location,omitempty"`
	LastDonation     *time.Time  `json:"-"`
	BatchID          string      `json:"batch_id,omitempty"`
	// Password is only accepted on registration. Imported donors have none
	// and cannot log in.
	Password     string `json:"password,omitempty"`
	PasswordHash []byte `json:"-"`
}

// LoginRequest holds donor credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// DonorUpdate holds a partial profile update. Nil fields are left unchanged.
type DonorUpdate struct {
	Name      *string    `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Phone     *string    `json:"phone,omitempty" validate:"omitempty,min=1,max=15"`
	Address   *string    `json:"address,omitempty" validate:"omitempty,max=200"`
	BloodType *BloodType `json:"blood_type,omitempty" validate:"omitempty,bloodtype"`
	// LastDonation uses an empty string to clear the date.
	LastDonation *string `json:"last_donation,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u *DonorUpdate) IsEmpty() bool {
	return u.Name == nil && u.Phone == nil && u.Address == nil && u.BloodType == nil && u.LastDonation == nil
}

// BulkInsertResult contains the results of a bulk insert operation.
type BulkInsertResult struct {
	InsertedCount int      `json:"inserted_count"`
	FailedCount   int      `json:"failed_count"`
	InsertedIDs   []int64  `json:"-"`
	Errors        []string `json:"errors,omitempty"`
}
