package utils

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/google/uuid"
)

var (
	kycIDPattern    = regexp.MustCompile(`^kyc_(\d+)$`)
	userIDPattern   = regexp.MustCompile(`^u_(\d+)$`)
	ticketIDPattern = regexp.MustCompile(`^tck_(\d+)$`)
)

func FormatKYCID(id int64) string {
	return fmt.Sprintf("kyc_%d", id)
}

func ParseKYCID(s string) (int64, bool) {
	return parsePrefixed(kycIDPattern, s)
}

func FormatUserID(id int64) string {
	return fmt.Sprintf("u_%d", id)
}

// ParseUserID accepts both "u_42" and a bare "42".
func ParseUserID(s string) (int64, bool) {
	if id, ok := parsePrefixed(userIDPattern, s); ok {
		return id, true
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func FormatTicketID(id int64) string {
	return fmt.Sprintf("tck_%d", id)
}

func ParseTicketID(s string) (int64, bool) {
	return parsePrefixed(ticketIDPattern, s)
}

// в тикетах пользователь отображается как usr_N
func FormatRequesterID(id int64) string {
	return fmt.Sprintf("usr_%d", id)
}

func parsePrefixed(re *regexp.Regexp, s string) (int64, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func NewFileID() string {
	return "file_" + uuid.NewString()
}

type cursor struct {
	ID int64 `json:"id"`
}

func EncodeCursor(lastID int64) string {
	b, _ := json.Marshal(cursor{ID: lastID})
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeCursor returns false for anything that is not base64 JSON with a positive id.
func DecodeCursor(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return 0, false
	}
	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.ID <= 0 {
		return 0, false
	}
	return c.ID, true
}
