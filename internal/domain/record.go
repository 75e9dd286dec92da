package domain

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	MinAge = 18
	MaxAge = 100

	// RecordContentType is the content type of a serialized Record.
	RecordContentType = "application/json"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Record is the synthetic person transported from the publisher to the consumers.
type Record struct {
	Name  string `json:"name" validate:"required"`
	Age   int    `json:"age" validate:"gte=18,lte=100"`
	Email string `json:"email" validate:"required,email"`
}

// Validate reports whether every field is populated and within bounds.
func (r Record) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	return nil
}

// Marshal serializes a valid record.
func (r Record) Marshal() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	return json.Marshal(r)
}

// ParseRecord is the inverse of Marshal. Any body that does not decode into a valid
// Record yields a *ParseError.
func ParseRecord(body []byte) (Record, error) {
	var r Record

	if err := json.Unmarshal(body, &r); err != nil {
		return Record{}, NewParseError(body, err)
	}

	if err := r.Validate(); err != nil {
		return Record{}, NewParseError(body, err)
	}

	return r, nil
}

func (r Record) String() string {
	return fmt.Sprintf("name=%q age=%d email=%q", r.Name, r.Age, r.Email)
}
