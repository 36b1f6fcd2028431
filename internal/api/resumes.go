package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
)

// uploadField is the multipart field the service reads the file from.
const uploadField = "file"

// Upload sends one resume (PDF, DOCX, TXT, or a ZIP of them) to the active
// session. The service parses it synchronously.
func (c *Client) Upload(ctx context.Context, name string, content io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile(uploadField, filepath.Base(name))
	if err != nil {
		return nil, fmt.Errorf("api: building upload form: %w", err)
	}

	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("api: reading %s: %w", name, err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("api: finishing upload form: %w", err)
	}

	var out UploadResult

	r := request{
		method:      http.MethodPost,
		path:        "/upload",
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
	}

	if err := c.roundTrip(ctx, r, &out, true); err != nil {
		return nil, err
	}

	return &out, nil
}

// Rank ranks every uploaded resume of the calling identity against a job
// description, best match first.
func (c *Client) Rank(ctx context.Context, jobDescription string) ([]RankedResume, error) {
	in := struct {
		JobDescription string `json:"job_description"`
	}{JobDescription: jobDescription}

	var out struct {
		RankedResumes []RankedResume `json:"ranked_resumes"`
	}

	if err := c.call(ctx, http.MethodPost, "/rank", in, &out, true); err != nil {
		return nil, err
	}

	return out.RankedResumes, nil
}

// Insights returns aggregate statistics of the latest ranking.
func (c *Client) Insights(ctx context.Context) (*Insights, error) {
	var out struct {
		Insights Insights `json:"insights"`
	}

	if err := c.call(ctx, http.MethodGet, "/insights", nil, &out, true); err != nil {
		return nil, err
	}

	return &out.Insights, nil
}
