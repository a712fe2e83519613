// Package media turns device attachments into uploaded storage references:
// compress to a size budget, then upload sequentially per item against the
// media endpoint. The batch is all-or-nothing; the first failure aborts it.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"chatlink/internal/logging"
	"chatlink/internal/notify"
	"chatlink/internal/observability/metrics"

	"github.com/google/uuid"
)

// MaxUploadBytes is the hard per-item cap. Oversized payloads are rejected
// locally without a network call.
const MaxUploadBytes = 10 << 20

var mimeExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/heic":      ".heic",
	"video/mp4":       ".mp4",
	"application/pdf": ".pdf",
}

// Item is a pending local attachment.
type Item struct {
	Data     []byte
	FileName string
	MIMEType string
}

// NewItem builds an Item with a generated file name derived from the MIME
// type. Returns ErrInvalidFileType for types the service does not accept.
func NewItem(data []byte, mimeType string) (Item, error) {
	ext, ok := mimeExtensions[mimeType]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrInvalidFileType, mimeType)
	}
	return Item{
		Data:     data,
		FileName: uuid.NewString() + ext,
		MIMEType: mimeType,
	}, nil
}

// AttachmentRef is the result of a successful upload. It is only ever
// constructed from a 200 response.
type AttachmentRef struct {
	FileName     string
	MIMEType     string
	StorageURL   string
	ThumbnailURL string
}

// TokenSource supplies a currently valid bearer token.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Notifier receives user-visible failure notifications. Every MediaError
// must reach the user; publishing here is how that is guaranteed.
type Notifier interface {
	Publish(level notify.Level, text string) notify.Notification
}

type Uploader struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	notes   Notifier
	log     logging.Logger
	mtr     *metrics.Metrics
}

func NewUploader(baseURL string, httpClient *http.Client, tokens TokenSource, notes Notifier, mtr *metrics.Metrics, log logging.Logger) *Uploader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	if mtr == nil {
		mtr = metrics.New(nil)
	}
	return &Uploader{
		baseURL: baseURL,
		http:    httpClient,
		tokens:  tokens,
		notes:   notes,
		log:     log,
		mtr:     mtr,
	}
}

type uploadEnvelope struct {
	ID            *string `json:"id"`
	FileName      string  `json:"fileName"`
	FileType      string  `json:"fileType"`
	FileData      []byte  `json:"fileData"`
	EncryptionKey *string `json:"encryptionKey"`
}

type uploadResponse struct {
	StorageURL   string `json:"storageUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// UploadOne uploads a single item. Size and auth checks run before any
// network traffic.
func (u *Uploader) UploadOne(ctx context.Context, item Item) (AttachmentRef, error) {
	ref, err := u.uploadOne(ctx, item)
	if err != nil {
		u.fail(item, err)
		return AttachmentRef{}, err
	}
	return ref, nil
}

func (u *Uploader) uploadOne(ctx context.Context, item Item) (AttachmentRef, error) {
	if _, ok := mimeExtensions[item.MIMEType]; !ok {
		return AttachmentRef{}, fmt.Errorf("%w: %s", ErrInvalidFileType, item.MIMEType)
	}
	if len(item.Data) > MaxUploadBytes {
		return AttachmentRef{}, ErrFileTooLarge
	}

	token, err := u.tokens.AccessToken(ctx)
	if err != nil {
		return AttachmentRef{}, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}

	body, err := json.Marshal(uploadEnvelope{
		FileName: item.FileName,
		FileType: item.MIMEType,
		FileData: item.Data,
	})
	if err != nil {
		return AttachmentRef{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/api/NSMedia/add", bytes.NewReader(body))
	if err != nil {
		return AttachmentRef{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := u.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return AttachmentRef{}, err
		}
		return AttachmentRef{}, fmt.Errorf("media upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return AttachmentRef{}, &UploadError{Status: resp.StatusCode}
	}

	var ur uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return AttachmentRef{}, fmt.Errorf("media upload: decoding response: %w", err)
	}

	u.mtr.MediaUploadsTotal.WithLabelValues("ok").Inc()
	u.mtr.MediaUploadBytesTotal.Add(float64(len(item.Data)))
	u.log.Info(ctx, "media uploaded", "file", item.FileName, "bytes", len(item.Data))

	return AttachmentRef{
		FileName:     item.FileName,
		MIMEType:     item.MIMEType,
		StorageURL:   ur.StorageURL,
		ThumbnailURL: ur.ThumbnailURL,
	}, nil
}

// UploadBatch uploads items strictly sequentially, in input order. The
// first failure aborts the batch and discards any partial results.
func (u *Uploader) UploadBatch(ctx context.Context, items []Item) ([]AttachmentRef, error) {
	refs := make([]AttachmentRef, 0, len(items))
	for _, item := range items {
		ref, err := u.uploadOne(ctx, item)
		if err != nil {
			u.fail(item, err)
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (u *Uploader) fail(item Item, err error) {
	u.mtr.MediaUploadsTotal.WithLabelValues("error").Inc()
	if u.notes != nil {
		u.notes.Publish(notify.Error, fmt.Sprintf("Upload of %s failed: %v", item.FileName, err))
	}
}
