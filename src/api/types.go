package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Platform string

const (
	PlatformMobileApp    Platform = "MOBILE_APP"
	PlatformWebExtension Platform = "WEB_EXTENSION"
)

// ParsePlatform accepts either platform name, case-insensitively.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToUpper(strings.TrimSpace(s))) {
	case PlatformMobileApp:
		return PlatformMobileApp, nil
	case PlatformWebExtension:
		return PlatformWebExtension, nil
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

type OCRStatus string

const (
	OCRPending OCRStatus = "PENDING"
	OCRDone    OCRStatus = "DONE"
	OCRFailed  OCRStatus = "FAILED"
)

// CaptureRequest is the body of POST /api/capture.
type CaptureRequest struct {
	UserID      string   `json:"user_id"`
	ImageData   string   `json:"image_data"`
	SourceURL   *string  `json:"source_url"`
	PageTitle   string   `json:"page_title"`
	MemoContent string   `json:"memo_content"`
	Platform    Platform `json:"platform"`
}

// Item is a stored capture as returned by the backend.
type Item struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	SourceURL   *string   `json:"source_url"`
	PageTitle   string    `json:"page_title"`
	MemoContent string    `json:"memo_content"`
	OCRText     string    `json:"ocr_text"`
	OCRStatus   OCRStatus `json:"ocr_status"`
	Platform    Platform  `json:"platform"`
	IsSynced    bool      `json:"is_synced"`
	CreatedAt   Timestamp `json:"created_at"`
	UpdatedAt   Timestamp `json:"updated_at"`
}

// naiveLayout is how the backend serializes datetimes created without a zone.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// Timestamp decodes RFC 3339 times and offset-less backend datetimes, which
// are read as UTC.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		t.Time = time.Time{}
		return nil
	}
	s, err := strconv.Unquote(s)
	if err != nil {
		return fmt.Errorf("timestamp %s is not a string", b)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = v
		return nil
	}
	v, err := time.ParseInLocation(naiveLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	t.Time = v
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return t.Time.MarshalJSON()
}

type SearchRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
}

// Health is the body of GET /.
type Health struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

type DeleteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Error is a non-2xx reply carrying the backend's detail message.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api returned status %d: %s", e.Status, e.Detail)
}

// StripDataURI removes a leading "data:<mime>;base64," prefix.
func StripDataURI(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.Index(s, ","); i >= 0 {
		return s[i+1:]
	}
	return s
}
