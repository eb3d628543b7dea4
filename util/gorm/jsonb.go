package gorm

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Jsonb is a raw JSON payload stored as jsonb in postgres and as text elsewhere.
type Jsonb json.RawMessage

func ToJsonb(value interface{}) (Jsonb, error) {
	return json.Marshal(value)
}

func (j Jsonb) GormDataType() string {
	return "jsonb"
}

func (j Jsonb) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}

	return "text"
}

func (j Jsonb) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}

	return string(j), nil
}

func (j Jsonb) Unmarshal(value interface{}) error {
	if len(j) == 0 {
		return errors.New("empty jsonb value")
	}

	return json.Unmarshal(j, value)
}

func (j *Jsonb) Scan(value interface{}) error {
	switch value := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append(Jsonb(nil), value...)
	case string:
		*j = Jsonb(value)
	default:
		return errors.Errorf("failed to unmarshal jsonb value: %T", value)
	}

	return nil
}

func (j Jsonb) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}

	return j, nil
}

func (j *Jsonb) UnmarshalJSON(data []byte) error {
	*j = append((*j)[0:0], data...)
	return nil
}

func (j Jsonb) String() string {
	return string(j)
}
