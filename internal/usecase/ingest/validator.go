package ingest

import (
	"strconv"
	"strings"

	"github.com/hankgalt/records-ingest/internal/domain/records"
)

// Validate checks raw against the record rules, in order, and returns the first failure.
// Values are trimmed of surrounding whitespace. email2 and profession default to "".
func Validate(raw records.RawFields) (records.Record, error) {
	idVal := strings.TrimSpace(raw[records.FieldID])
	id, err := strconv.ParseInt(idVal, 10, 64)
	if err != nil {
		return records.Record{}, &records.RejectionError{
			Kind:  records.InvalidID,
			Field: records.FieldID,
			Value: raw[records.FieldID],
		}
	}

	firstName := strings.TrimSpace(raw[records.FieldFirstName])
	if firstName == "" {
		return records.Record{}, &records.RejectionError{
			Kind:  records.MissingName,
			Field: records.FieldFirstName,
		}
	}

	lastName := strings.TrimSpace(raw[records.FieldLastName])
	if lastName == "" {
		return records.Record{}, &records.RejectionError{
			Kind:  records.MissingName,
			Field: records.FieldLastName,
		}
	}

	email := strings.TrimSpace(raw[records.FieldEmail])
	if !strings.Contains(email, "@") {
		return records.Record{}, &records.RejectionError{
			Kind:  records.InvalidEmail,
			Field: records.FieldEmail,
			Value: raw[records.FieldEmail],
		}
	}

	return records.Record{
		ID:         id,
		FirstName:  firstName,
		LastName:   lastName,
		Email:      email,
		Email2:     strings.TrimSpace(raw[records.FieldEmail2]),
		Profession: strings.TrimSpace(raw[records.FieldProfession]),
	}, nil
}
