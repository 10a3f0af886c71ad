package vision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrForbiddenHost is returned when an image URI points at a loopback,
// private, link-local or otherwise non-public address.
var ErrForbiddenHost = errors.New("image host is not a public address")

// newDownloadClient returns a resty client whose connections may only reach
// public addresses. The check runs on the resolved IP of every dial, so
// redirects and DNS names pointing inward are refused too.
func newDownloadClient(timeout time.Duration) *resty.Client {
	dialer := &net.Dialer{
		Timeout: timeout,
		Control: func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			addr, err := netip.ParseAddr(host)
			if err != nil {
				return err
			}
			if !isPublicAddr(addr) {
				return fmt.Errorf("%w: %s", ErrForbiddenHost, addr)
			}
			return nil
		},
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
	}
	return resty.New().SetDebug(false).SetTimeout(timeout).SetTransport(transport)
}

func isPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsValid() &&
		addr.IsGlobalUnicast() &&
		!addr.IsPrivate() &&
		!addr.IsLoopback() &&
		!addr.IsLinkLocalUnicast()
}

// checkImageURI rejects URIs that are not http(s) or whose host is a
// literal non-public IP or localhost, before any connection is made.
func checkImageURI(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid image URI: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid image URI: unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("invalid image URI: missing host")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("%w: %s", ErrForbiddenHost, host)
	}
	if addr, err := netip.ParseAddr(host); err == nil && !isPublicAddr(addr) {
		return fmt.Errorf("%w: %s", ErrForbiddenHost, host)
	}
	return nil
}

// downloadImage fetches uri with client and reads at most maxSize bytes of
// it. Oversized bodies are refused from Content-Length when the server sends
// one, and cut off after maxSize+1 bytes otherwise.
func downloadImage(ctx context.Context, client *resty.Client, uri string, maxSize int64) ([]byte, string, error) {
	res, err := client.R().SetContext(ctx).SetDoNotParseResponse(true).Get(uri)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	body := res.RawBody()
	defer body.Close()

	if res.IsError() {
		return nil, "", fmt.Errorf("download failed: status %d", res.StatusCode())
	}

	contentType := res.Header().Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("invalid content type: expected image/*, got %s", contentType)
	}

	if res.RawResponse.ContentLength > maxSize {
		return nil, "", fmt.Errorf("image too large: %d bytes exceeds limit of %d bytes", res.RawResponse.ContentLength, maxSize)
	}

	// Content-Length may be missing or wrong
	data, err := io.ReadAll(io.LimitReader(body, maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, "", fmt.Errorf("image too large: exceeds limit of %d bytes", maxSize)
	}

	return data, contentType, nil
}
