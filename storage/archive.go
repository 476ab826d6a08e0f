package storage

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// WebhookArchive кладёт сырые тела уведомлений шлюза в хранилище для разбора инцидентов.
type WebhookArchive struct {
	uploader FileUploader
	prefix   string
	now      func() time.Time
}

func NewWebhookArchive(uploader FileUploader, prefix string) *WebhookArchive {
	if prefix == "" {
		prefix = "gateway-webhooks"
	}
	return &WebhookArchive{uploader: uploader, prefix: prefix, now: time.Now}
}

// ArchiveWebhook returns the object key. Keys are unique per delivery, so
// gateway retries of the same transaction are kept side by side.
func (a *WebhookArchive) ArchiveWebhook(ctx context.Context, transactionID string, body []byte) (string, error) {
	key := fmt.Sprintf("%s/%s/%s-%s.json",
		a.prefix,
		a.now().UTC().Format("2006/01/02"),
		unsafeKeyChars.ReplaceAllString(transactionID, "_"),
		uuid.NewString(),
	)
	if _, err := a.uploader.Upload(ctx, key, "application/json", bytes.NewReader(body)); err != nil {
		return "", err
	}
	return key, nil
}
