package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ai-video-cutter/log"

	"go.uber.org/zap"
)

const (
	// Upload chunks must be multiples of 256 KiB except the last one.
	defaultChunkSize    = 8 << 20
	defaultPollInterval = time.Second
	defaultVideoFps     = 15
	deleteTimeout       = 30 * time.Second
)

const (
	FileStateProcessing = "PROCESSING"
	FileStateActive     = "ACTIVE"
	FileStateFailed     = "FAILED"
)

// File is a resource of the Gemini Files API.
type File struct {
	Name     string `json:"name"`
	Uri      string `json:"uri"`
	MimeType string `json:"mimeType"`
	State    string `json:"state"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type fileEnvelope struct {
	File File `json:"file"`
}

var videoMimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
}

func videoMimeType(path string) string {
	if t, ok := videoMimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return t
	}
	return "video/mp4"
}

// uploadEndpoint maps https://host/v1beta to https://host/upload/v1beta/files.
func uploadEndpoint(baseURL string) string {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return strings.TrimRight(baseURL, "/") + "/files"
	}
	u.Path = "/upload" + u.Path + "/files"
	return u.String()
}

// UploadFile sends a local file with the resumable upload protocol. An empty
// mimeType is derived from the file extension.
func (c *Client) UploadFile(ctx context.Context, path, mimeType string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("gemini upload: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return File{}, fmt.Errorf("gemini upload: %w", err)
	}
	if mimeType == "" {
		mimeType = videoMimeType(path)
	}
	size := info.Size()

	var failure apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetHeader("X-Goog-Upload-Protocol", "resumable").
		SetHeader("X-Goog-Upload-Command", "start").
		SetHeader("X-Goog-Upload-Header-Content-Length", strconv.FormatInt(size, 10)).
		SetHeader("X-Goog-Upload-Header-Content-Type", mimeType).
		SetBody(map[string]any{"file": map[string]string{"display_name": filepath.Base(path)}}).
		SetError(&failure).
		Post(c.uploadURL)
	if err != nil {
		return File{}, fmt.Errorf("gemini upload start: %w", err)
	}
	if resp.IsError() {
		return File{}, fmt.Errorf("gemini upload start: status %d: %s", resp.StatusCode(), failure.Error.Message)
	}
	session := resp.Header().Get("X-Goog-Upload-URL")
	if session == "" {
		return File{}, errors.New("gemini upload start: no upload url returned")
	}

	buf := make([]byte, c.chunkSize)
	var offset int64
	for {
		n, rerr := io.ReadFull(f, buf)
		if rerr != nil && !errors.Is(rerr, io.EOF) && !errors.Is(rerr, io.ErrUnexpectedEOF) {
			return File{}, fmt.Errorf("gemini upload read: %w", rerr)
		}
		final := offset+int64(n) >= size
		command := "upload"
		if final {
			command = "upload, finalize"
		}

		var env fileEnvelope
		resp, err = c.http.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/octet-stream").
			SetHeader("X-Goog-Upload-Command", command).
			SetHeader("X-Goog-Upload-Offset", strconv.FormatInt(offset, 10)).
			SetBody(buf[:n]).
			SetResult(&env).
			SetError(&failure).
			Post(session)
		if err != nil {
			return File{}, fmt.Errorf("gemini upload chunk at %d: %w", offset, err)
		}
		if resp.IsError() {
			return File{}, fmt.Errorf("gemini upload chunk at %d: status %d: %s", offset, resp.StatusCode(), failure.Error.Message)
		}
		offset += int64(n)
		if !final {
			continue
		}
		if env.File.Name == "" {
			return File{}, errors.New("gemini upload: finalize returned no file")
		}
		if env.File.MimeType == "" {
			env.File.MimeType = mimeType
		}
		log.GetLogger().Info("[Gemini] file uploaded",
			zap.String("name", env.File.Name),
			zap.Int64("bytes", size),
			zap.String("state", env.File.State))
		return env.File, nil
	}
}

// GetFile fetches the current state of an uploaded file.
func (c *Client) GetFile(ctx context.Context, name string) (File, error) {
	var file File
	var failure apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetResult(&file).
		SetError(&failure).
		Get("/" + name)
	if err != nil {
		return File{}, fmt.Errorf("gemini get %s: %w", name, err)
	}
	if resp.IsError() {
		return File{}, fmt.Errorf("gemini get %s: status %d: %s", name, resp.StatusCode(), failure.Error.Message)
	}
	return file, nil
}

// WaitActive polls the file until processing finishes. FAILED is an error.
func (c *Client) WaitActive(ctx context.Context, file File) (File, error) {
	for {
		switch file.State {
		case FileStateFailed:
			msg := "processing failed"
			if file.Error != nil && file.Error.Message != "" {
				msg = file.Error.Message
			}
			return file, fmt.Errorf("gemini file %s: %s", file.Name, msg)
		case FileStateProcessing:
		default:
			return file, nil
		}

		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return file, fmt.Errorf("gemini file %s not active: %w", file.Name, ctx.Err())
		case <-timer.C:
		}

		mime := file.MimeType
		next, err := c.GetFile(ctx, file.Name)
		if err != nil {
			return file, err
		}
		if next.MimeType == "" {
			next.MimeType = mime
		}
		file = next
	}
}

// DeleteFile removes an uploaded file.
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	var failure apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetError(&failure).
		Delete("/" + name)
	if err != nil {
		return fmt.Errorf("gemini delete %s: %w", name, err)
	}
	if resp.IsError() {
		return fmt.Errorf("gemini delete %s: status %d: %s", name, resp.StatusCode(), failure.Error.Message)
	}
	return nil
}

func (c *Client) deleteQuietly(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
	defer cancel()
	if err := c.DeleteFile(ctx, name); err != nil {
		log.GetLogger().Warn("[Gemini] deleting uploaded file failed", zap.String("name", name), zap.Error(err))
	}
}
