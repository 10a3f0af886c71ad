package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultDownloadTimeout is the default timeout for photo downloads
	DefaultDownloadTimeout = 30 * time.Second
	// DefaultMaxImageSize is the default maximum photo size (10MB)
	DefaultMaxImageSize = 10 * 1024 * 1024
)

// maxImageSize is the download limit, a variable so tests can lower it.
var maxImageSize int64 = DefaultMaxImageSize

// httpClient is reused for file downloads to avoid creating new clients per request
var httpClient = resty.New().SetDebug(false).SetTimeout(DefaultDownloadTimeout)

// downloadedFile is a photo fetched from Telegram.
type downloadedFile struct {
	Data     []byte
	MIMEType string
}

// downloadFileID resolves fileID to a direct URL and downloads it. The URL
// contains the bot token and is never logged.
func downloadFileID(
	ctx context.Context,
	getFileDirectURL func(fileID string) (string, error),
	fileID string,
) (*downloadedFile, error) {
	log.Info().Str("fileID", fileID).Msg("downloading telegram file")

	url, err := getFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file URL: %w", err)
	}

	res, err := httpClient.R().SetContext(ctx).SetDoNotParseResponse(true).Get(url)
	if err != nil {
		// Transport errors quote the URL, which carries the bot token
		return nil, fmt.Errorf("failed to download file %s: %s", fileID, strings.ReplaceAll(err.Error(), url, "[file url]"))
	}
	body := res.RawBody()
	defer body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("download of file %s failed: status %d", fileID, res.StatusCode())
	}

	if res.RawResponse.ContentLength > maxImageSize {
		return nil, fmt.Errorf("file too large: %d bytes exceeds limit of %d bytes", res.RawResponse.ContentLength, maxImageSize)
	}

	// Use LimitReader to enforce size limit even if Content-Length is missing or wrong
	data, err := io.ReadAll(io.LimitReader(body, maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", fileID, err)
	}
	if int64(len(data)) > maxImageSize {
		return nil, fmt.Errorf("file too large: exceeds limit of %d bytes", maxImageSize)
	}

	// Telegram serves files as application/octet-stream, so sniff the type
	mimeType := res.Header().Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("invalid content type: expected image/*, got %s", mimeType)
	}

	return &downloadedFile{Data: data, MIMEType: mimeType}, nil
}
