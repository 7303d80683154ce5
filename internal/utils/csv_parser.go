package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"blood-alert-engine/internal/models"
)

// CSVParser errors
var (
	ErrEmptyCSV          = errors.New("CSV content is empty")
	ErrMissingColumns    = errors.New("missing required columns")
	ErrNoDataRows        = errors.New("CSV file contains no data rows")
	ErrPartialCoordinate = errors.New("lat and lng must both be set or both be empty")
)

// RequiredColumns defines the columns that must be present in the CSV.
var RequiredColumns = []string{
	"name",
	"email",
	"phone",
	"address",
	"blood_type",
}

// ColumnAliases maps alternative column names to standard names.
var ColumnAliases = map[string]string{
	// name aliases
	"full_name": "name",
	"fullname":  "name",
	"full name": "name",
	"donor":     "name",
	"ho_ten":    "name",

	// email aliases
	"emailaddress":  "email",
	"email_address": "email",
	"mail":          "email",

	// phone aliases
	"phone_number": "phone",
	"phonenumber":  "phone",
	"mobile":       "phone",
	"sdt":          "phone",

	// address aliases
	"street_address": "address",
	"location":       "address",
	"dia_chi":        "address",

	// blood_type aliases
	"bloodtype":   "blood_type",
	"blood type":  "blood_type",
	"blood_group": "blood_type",
	"bloodgroup":  "blood_type",
	"nhom_mau":    "blood_type",

	// coordinate aliases
	"latitude":  "lat",
	"longitude": "lng",
	"lon":       "lng",
	"long":      "lng",

	// last_donation aliases
	"last_donation_date": "last_donation",
	"lastdonation":       "last_donation",
	"last donation":      "last_donation",
	"last_donated":       "last_donation",
}

// CSVParser handles parsing of donor CSV files.
type CSVParser struct {
	columnMapping map[string]int
}

// NewCSVParser creates a new CSV parser instance.
func NewCSVParser() *CSVParser {
	return &CSVParser{
		columnMapping: make(map[string]int),
	}
}

// ParseDonors parses CSV content into validated donor registrations.
// Rows that fail are reported with their line number and skipped.
func (p *CSVParser) ParseDonors(content string, batchID string) ([]*models.DonorCreate, []error) {
	if strings.TrimSpace(content) == "" {
		return nil, []error{ErrEmptyCSV}
	}

	reader := csv.NewReader(strings.NewReader(content))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1 // Allow variable number of fields

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, []error{fmt.Errorf("failed to read header: %w", err)}
	}

	if err := p.buildColumnMapping(header); err != nil {
		return nil, []error{err}
	}

	var donors []*models.DonorCreate
	var parseErrors []error
	lineNum := 1 // Header is line 1

	for {
		lineNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			parseErrors = append(parseErrors, fmt.Errorf("line %d: %w", lineNum, err))
			continue
		}

		donor, err := p.parseRow(record, batchID)
		if err != nil {
			parseErrors = append(parseErrors, fmt.Errorf("line %d: %w", lineNum, err))
			continue
		}

		if err := models.ValidateDonorCreate(donor); err != nil {
			parseErrors = append(parseErrors, fmt.Errorf("line %d: %w", lineNum, err))
			continue
		}

		donors = append(donors, donor)
	}

	if len(donors) == 0 && len(parseErrors) > 0 {
		return nil, append([]error{ErrNoDataRows}, parseErrors...)
	}

	return donors, parseErrors
}

// normalizeColumn lowercases a header and resolves aliases.
func normalizeColumn(col string) string {
	normalized := strings.ToLower(strings.TrimSpace(col))
	normalized = strings.TrimPrefix(normalized, "\ufeff")
	if alias, ok := ColumnAliases[normalized]; ok {
		return alias
	}
	return normalized
}

// buildColumnMapping creates a mapping of standard column names to their indices.
func (p *CSVParser) buildColumnMapping(header []string) error {
	p.columnMapping = make(map[string]int)

	for i, col := range header {
		p.columnMapping[normalizeColumn(col)] = i
	}

	var missing []string
	for _, required := range RequiredColumns {
		if _, ok := p.columnMapping[required]; !ok {
			missing = append(missing, required)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	return nil
}

// value returns the trimmed cell for a column, or "" when the column or cell is absent.
func (p *CSVParser) value(record []string, column string) string {
	idx, ok := p.columnMapping[column]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// parseRow parses a single CSV row into a DonorCreate object.
func (p *CSVParser) parseRow(record []string, batchID string) (*models.DonorCreate, error) {
	donor := &models.DonorCreate{
		Name:             p.value(record, "name"),
		Email:            p.value(record, "email"),
		Phone:            p.value(record, "phone"),
		Address:          p.value(record, "address"),
		BloodType:        models.NormalizeBloodType(p.value(record, "blood_type")),
		LastDonationDate: p.value(record, "last_donation"),
		BatchID:          batchID,
	}

	latStr, lngStr := p.value(record, "lat"), p.value(record, "lng")
	switch {
	case latStr == "" && lngStr == "":
		// geocoded later from the address
	case latStr == "" || lngStr == "":
		return nil, ErrPartialCoordinate
	default:
		lat, err := parseFloat(latStr)
		if err != nil {
			return nil, fmt.Errorf("invalid lat: %w", err)
		}
		lng, err := parseFloat(lngStr)
		if err != nil {
			return nil, fmt.Errorf("invalid lng: %w", err)
		}
		donor.Location = &models.Coordinate{Lat: lat, Lng: lng}
	}

	return donor, nil
}

// parseFloat parses a coordinate, accepting a decimal comma.
func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("empty value")
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	return strconv.ParseFloat(s, 64)
}

// ValidateCSVStructure performs a quick validation of CSV structure without full parsing.
func ValidateCSVStructure(content string) (*CSVValidationResult, error) {
	result := &CSVValidationResult{
		Valid:          false,
		RowCount:       0,
		Columns:        []string{},
		MissingColumns: []string{},
		Errors:         []string{},
	}

	if strings.TrimSpace(content) == "" {
		result.Errors = append(result.Errors, "empty file")
		return result, nil
	}

	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to read header: %v", err))
		return result, nil
	}

	normalizedColumns := make(map[string]bool)
	for _, col := range header {
		normalizedColumns[normalizeColumn(col)] = true
		result.Columns = append(result.Columns, col)
	}

	for _, required := range RequiredColumns {
		if !normalizedColumns[required] {
			result.MissingColumns = append(result.MissingColumns, required)
		}
	}
	result.HasCoordinates = normalizedColumns["lat"] && normalizedColumns["lng"]

	for {
		_, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row error: %v", err))
			continue
		}
		result.RowCount++
	}

	result.Valid = len(result.MissingColumns) == 0 && result.RowCount > 0

	return result, nil
}

// CSVValidationResult contains the results of CSV validation.
type CSVValidationResult struct {
	Valid          bool     `json:"valid"`
	RowCount       int      `json:"row_count"`
	Columns        []string `json:"columns"`
	MissingColumns []string `json:"missing_columns"`
	HasCoordinates bool     `json:"has_coordinates"`
	Errors         []string `json:"errors"`
}
