package phishnet

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Int decodes both numbers and numeric strings, which the API mixes freely.
// Empty strings and nulls decode to zero.
type Int int

func (i *Int) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*i = 0
		return nil
	}

	value := string(data)
	if strings.HasPrefix(value, `"`) {
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}

		value = strings.TrimSpace(value)
		if value == "" {
			*i = 0
			return nil
		}
	}

	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return errors.Wrapf(err, "parse int %s", data)
	}

	*i = Int(n)
	return nil
}

func (i Int) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Itoa(int(i))), nil
}

type Song struct {
	ID          Int    `json:"songid"`
	Song        string `json:"song"`
	Slug        string `json:"slug"`
	Abbr        string `json:"abbr"`
	Artist      string `json:"artist"`
	Debut       string `json:"debut"`
	LastPlayed  string `json:"last_played"`
	TimesPlayed Int    `json:"times_played"`
	Gap         Int    `json:"gap"`
}

func (s Song) Validate() error {
	if s.Song == "" || s.Slug == "" {
		return errors.Errorf("song %d: missing name or slug", s.ID)
	}

	return nil
}

// Performance is a single entry of a setlist.
type Performance struct {
	ShowID     Int    `json:"showid"`
	ShowDate   string `json:"showdate"`
	ArtistName string `json:"artist_name"`
	Song       string `json:"song"`
	Slug       string `json:"slug"`
	Venue      string `json:"venue"`
	City       string `json:"city"`
	State      string `json:"state"`
}

// Attendance is a show attended by a user.
type Attendance struct {
	ShowID     Int    `json:"showid"`
	ShowDate   string `json:"showdate"`
	ArtistName string `json:"artist_name"`
	Venue      string `json:"venue"`
	City       string `json:"city"`
	State      string `json:"state"`
}

type envelope struct {
	Error        bool            `json:"error"`
	ErrorMessage string          `json:"error_message"`
	Data         json.RawMessage `json:"data"`
}

func DecodeSongs(data []byte) ([]Song, error) {
	songs := make([]Song, 0)
	if err := json.Unmarshal(data, &songs); err != nil {
		return nil, errors.Wrap(err, "decode songs")
	}

	valid := songs[:0]
	for _, song := range songs {
		if err := song.Validate(); err != nil {
			continue
		}

		valid = append(valid, song)
	}

	return valid, nil
}

func DecodePerformances(data []byte) ([]Performance, error) {
	performances := make([]Performance, 0)
	if err := json.Unmarshal(data, &performances); err != nil {
		return nil, errors.Wrap(err, "decode performances")
	}

	return performances, nil
}

func DecodeAttendance(data []byte) ([]Attendance, error) {
	attendance := make([]Attendance, 0)
	if err := json.Unmarshal(data, &attendance); err != nil {
		return nil, errors.Wrap(err, "decode attendance")
	}

	return attendance, nil
}
