package backend

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"go.uber.org/zap"

	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/domain"
)

type uploadedFile struct {
	GCSURI string `json:"gcs_uri"`
}

type batchUploadResponse struct {
	Files []uploadedFile `json:"files"`
}

// UploadFilesBatch uploads all files in one multipart call. The backend
// answers with remote handles ordered 1:1 with the input, or fails
// atomically on infrastructure errors.
func (c *Client) UploadFilesBatch(ctx context.Context, files []domain.FileRef, sessionID, caseID string) ([]string, error) {
	body, contentType, err := buildUploadBody(files, sessionID, caseID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/uploads/batch", body)
	if err != nil {
		return nil, fmt.Errorf("build batch upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	var resp batchUploadResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("batch upload: %w", err)
	}
	if len(resp.Files) != len(files) {
		return nil, fmt.Errorf("batch upload: expected %d handles, got %d", len(files), len(resp.Files))
	}

	handles := make([]string, len(resp.Files))
	for i, f := range resp.Files {
		handles[i] = f.GCSURI
	}
	c.log.Debug("Batch upload completed",
		zap.String("session_id", sessionID), zap.Int("files", len(handles)))
	return handles, nil
}

// UploadFileSingle uploads one file, used by the sequential fallback path.
func (c *Client) UploadFileSingle(ctx context.Context, file domain.FileRef, sessionID, caseID string) (string, error) {
	body, contentType, err := buildUploadBody([]domain.FileRef{file}, sessionID, caseID)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/uploads", body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	var resp uploadedFile
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("upload %s: %w", file.Name, err)
	}
	if resp.GCSURI == "" {
		return "", fmt.Errorf("upload %s: backend returned empty handle", file.Name)
	}
	return resp.GCSURI, nil
}

func buildUploadBody(files []domain.FileRef, sessionID, caseID string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	if err := w.WriteField("session_id", sessionID); err != nil {
		return nil, "", fmt.Errorf("write session field: %w", err)
	}
	if caseID != "" {
		if err := w.WriteField("case_id", caseID); err != nil {
			return nil, "", fmt.Errorf("write case field: %w", err)
		}
	}

	for _, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="files"; filename="%s"`, f.Name))
		if f.MimeType != "" {
			header.Set("Content-Type", f.MimeType)
		}
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("create part for %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("write part for %s: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}
