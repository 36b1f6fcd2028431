package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Timestamp decodes the service's timestamps: RFC 3339 strings, ISO-8601
// strings without a zone (taken as local time), or Unix seconds.
type Timestamp struct {
	time.Time
}

// naiveLayout is Python's datetime.isoformat() without a UTC offset.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if len(data) > 0 && data[0] != '"' {
		secs, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("api: timestamp %s: %w", data, err)
		}

		whole := int64(secs)
		t.Time = time.Unix(whole, int64((secs-float64(whole))*float64(time.Second)))

		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}

	parsed, err := time.ParseInLocation(naiveLayout, s, time.Local)
	if err != nil {
		return fmt.Errorf("api: timestamp %q: %w", s, err)
	}

	t.Time = parsed

	return nil
}

// GuestToken is an issued guest credential.
type GuestToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   Timestamp `json:"expires_at"`
}

// Session is one server-side upload session. Created is kept verbatim; the
// service reports "Unknown" when it has no creation time.
type Session struct {
	ID        string `json:"session_id"`
	Name      string `json:"name"`
	Created   string `json:"created"`
	FileCount int    `json:"blob_count"`
}

// SessionList is the body of GET /sessions/list.
type SessionList struct {
	UserID   string    `json:"user_id"`
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total"`
}

// CurrentSession is the body of GET /sessions/current.
type CurrentSession struct {
	SessionID   string `json:"session_id"`
	SessionPath string `json:"session_path"`
	UserID      string `json:"user_id"`
}

// CreatedSession is the body of POST /sessions/create.
type CreatedSession struct {
	SessionID   string `json:"session_id"`
	Name        string `json:"name"`
	SessionPath string `json:"session_path"`
	UserID      string `json:"user_id"`
}

// DeletedSession is the body of DELETE /sessions/{id}.
type DeletedSession struct {
	SessionID    string `json:"session_id"`
	DeletedBlobs int    `json:"deleted_blobs"`
}

// SessionFiles is the body of GET /sessions/{id}/files.
type SessionFiles struct {
	SessionID string   `json:"session_id"`
	Files     []string `json:"files"`
	Total     int      `json:"total"`
}

// UploadResult is the body of POST /upload. A ZIP upload yields Files; a
// single resume yields File and Parsed.
type UploadResult struct {
	File     string            `json:"file"`
	Parsed   json.RawMessage   `json:"parsed,omitempty"`
	Files    []json.RawMessage `json:"files,omitempty"`
	BlobURL  string            `json:"blob_url"`
	BlobName string            `json:"blob_name"`
}

// RankedResume is one entry of a ranking. Error is set instead of the scores
// when the service could not process the resume.
type RankedResume struct {
	File           string          `json:"file"`
	EmbeddingScore float64         `json:"embedding_score"`
	TFIDFScore     float64         `json:"tfidf_score"`
	HybridScore    float64         `json:"hybrid_score"`
	Skills         []string        `json:"skills"`
	Parsed         json.RawMessage `json:"parsed,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Insights summarizes the latest ranking.
type Insights struct {
	TotalResumes       int           `json:"total_resumes"`
	AverageScore       float64       `json:"average_score"`
	HighMatches        int           `json:"high_matches"`
	MediumMatches      int           `json:"medium_matches"`
	LowMatches         int           `json:"low_matches"`
	SkillsDistribution []SkillCount  `json:"skills_distribution"`
	ScoreDistribution  []ScoreBucket `json:"score_distribution"`
	UserType           string        `json:"user_type,omitempty"`
	UserName           string        `json:"user_name,omitempty"`
}

// SkillCount is one bar of the skills chart.
type SkillCount struct {
	Skill string `json:"skill"`
	Count int    `json:"count"`
}

// ScoreBucket is one bar of the score histogram.
type ScoreBucket struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}
