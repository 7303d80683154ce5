package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Common errors
var (
	ErrInvalidCoordinate     = errors.New("invalid coordinate")
	ErrInvalidRadius         = errors.New("radius must be greater than zero")
	ErrInvalidLimit          = errors.New("limit cannot be negative")
	ErrInvalidBloodType      = errors.New("invalid blood type")
	ErrInvalidDate           = errors.New("invalid date format")
	ErrInvalidEmail          = errors.New("invalid email address")
	ErrMissingFields         = errors.New("missing required fields")
	ErrEmptyUpdate           = errors.New("update contains no fields")
	ErrDonorNotFound         = errors.New("donor not found")
	ErrHospitalNotFound      = errors.New("hospital not found")
	ErrDuplicateDonor        = errors.New("email or phone already registered")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrPasswordTooLong       = errors.New("password must be at most 72 bytes")
	ErrMissingEvaluationTime = errors.New("evaluation time is required")
)

// DateLayout is the calendar date format used for last donation dates.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006/01/02",
	"02/01/2006",
	"2-1-2006",
	"02-01-2006",
	"2006-01-02 15:04:05",
}

// ParseDate parses a calendar date in any of the accepted layouts and truncates it to midnight UTC.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("bloodtype", func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() == reflect.Ptr {
			if field.IsNil() {
				return false
			}
			field = field.Elem()
		}
		return BloodType(field.String()).IsValid()
	})
}

// Validator returns the shared validator with the domain rules registered.
func Validator() *validator.Validate {
	return validate
}

// ValidateDonorCreate validates donor registration data and parses the last donation date.
func ValidateDonorCreate(d *DonorCreate) error {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.TrimSpace(d.Email)
	d.Phone = strings.TrimSpace(d.Phone)
	d.Address = strings.TrimSpace(d.Address)
	d.BloodType = NormalizeBloodType(string(d.BloodType))

	if err := validate.Struct(d); err != nil {
		return translateValidationError(err)
	}

	if d.Location != nil {
		if err := d.Location.Validate(); err != nil {
			return err
		}
	}

	if d.LastDonation == nil && strings.TrimSpace(d.LastDonationDate) != "" {
		date, err := ParseDate(d.LastDonationDate)
		if err != nil {
			return err
		}
		d.LastDonation = &date
	}

	return nil
}

// ValidateDonorUpdate validates a partial profile update.
func ValidateDonorUpdate(u *DonorUpdate) error {
	if u.IsEmpty() {
		return ErrEmptyUpdate
	}
	if u.BloodType != nil {
		bt := NormalizeBloodType(string(*u.BloodType))
		u.BloodType = &bt
	}
	if (u.Name != nil && strings.TrimSpace(*u.Name) == "") || (u.Phone != nil && strings.TrimSpace(*u.Phone) == "") {
		return fmt.Errorf("%w: name and phone cannot be blank", ErrMissingFields)
	}
	if err := validate.Struct(u); err != nil {
		return translateValidationError(err)
	}
	if u.LastDonation != nil && strings.TrimSpace(*u.LastDonation) != "" {
		if _, err := ParseDate(*u.LastDonation); err != nil {
			return err
		}
	}
	return nil
}

// ValidateLoginRequest checks that both credentials are present.
func ValidateLoginRequest(r *LoginRequest) error {
	r.Email = strings.TrimSpace(r.Email)
	if err := validate.Struct(r); err != nil {
		return translateValidationError(err)
	}
	return nil
}

// ValidateAlertRequest validates an alert request.
func ValidateAlertRequest(r *AlertRequest) error {
	r.BloodType = NormalizeBloodType(string(r.BloodType))
	if r.RadiusKm != nil && *r.RadiusKm <= 0 {
		return ErrInvalidRadius
	}
	if r.Limit < 0 {
		return ErrInvalidLimit
	}
	if err := validate.Struct(r); err != nil {
		return translateValidationError(err)
	}
	return nil
}

// ValidateNotifyRequest checks that recipients and a message are present.
func ValidateNotifyRequest(r *NotifyRequest) error {
	r.Message = strings.TrimSpace(r.Message)
	if err := validate.Struct(r); err != nil {
		return translateValidationError(err)
	}
	return nil
}

// ValidateSupportRequest checks a contact form submission.
func ValidateSupportRequest(r *SupportRequest) error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Message = strings.TrimSpace(r.Message)
	if err := validate.Struct(r); err != nil {
		return translateValidationError(err)
	}
	return nil
}

// translateValidationError maps validator failures onto the domain's sentinel errors.
func translateValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validation failed: %w", err)
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "bloodtype":
		return fmt.Errorf("%w: %v", ErrInvalidBloodType, fe.Value())
	case "email":
		return ErrInvalidEmail
	case "required", "min":
		var missing []string
		for _, e := range verrs {
			if e.Tag() == "required" || e.Tag() == "min" {
				missing = append(missing, strings.ToLower(e.Field()))
			}
		}
		return fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}
	return fmt.Errorf("validation failed on %s: %w", fe.Field(), err)
}
