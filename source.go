package dataimport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

// DefaultURLTimeout bounds a URL import end to end.
const DefaultURLTimeout = 30 * time.Second

var (
	sheetsPattern = regexp.MustCompile(`^/spreadsheets/d/([a-zA-Z0-9_-]+)`)
	drivePattern  = regexp.MustCompile(`^/file/d/([a-zA-Z0-9_-]+)`)
)

// RewriteShareURL converts well-known share links (Google Sheets, Google
// Drive, Dropbox) into direct-download URLs. Anything unrecognized is
// returned unchanged.
func RewriteShareURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	switch strings.ToLower(u.Hostname()) {
	case "docs.google.com":
		if m := sheetsPattern.FindStringSubmatch(u.Path); m != nil {
			return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/export?format=csv", m[1])
		}
	case "drive.google.com":
		if m := drivePattern.FindStringSubmatch(u.Path); m != nil {
			return fmt.Sprintf("https://drive.google.com/uc?export=download&id=%s", m[1])
		}
		if u.Path == "/open" {
			if id := u.Query().Get("id"); id != "" {
				return fmt.Sprintf("https://drive.google.com/uc?export=download&id=%s", id)
			}
		}
	case "www.dropbox.com", "dropbox.com":
		q := u.Query()
		q.Set("dl", "1")
		u.RawQuery = q.Encode()
		return u.String()
	}
	return raw
}

// ImportURL fetches a remote source and runs it through the standard
// dispatch. Share links are rewritten first; the fetch is bounded by the
// importer's URL timeout, and a timeout is reported distinctly from other
// fetch failures. Extensionless URLs fall back to content sniffing.
func (imp *Importer) ImportURL(ctx context.Context, rawURL string, opts Options) *ImportResult {
	start := time.Now()
	target := RewriteShareURL(rawURL)

	result := &ImportResult{
		Metadata: Metadata{
			Source:     SourceURL,
			FileName:   target,
			ImportedAt: start,
		},
	}
	fail := func(msg string) *ImportResult {
		result.addError(ImportError{Message: msg, Severity: ErrorSeverity})
		result.Metadata.Duration = time.Since(start)
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, imp.urlTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fail(fmt.Sprintf("invalid URL: %v", err))
	}

	resp, err := imp.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fail(fmt.Sprintf("fetch timed out after %s: %s", imp.urlTimeout, target))
		}
		return fail(fmt.Sprintf("fetch failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Sprintf("fetch failed: HTTP %d from %s", resp.StatusCode, target))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fail(fmt.Sprintf("fetch timed out after %s: %s", imp.urlTimeout, target))
		}
		return fail(fmt.Sprintf("read response: %v", err))
	}

	name := path.Base(req.URL.Path)
	format := DetectFormat(name)
	if format == FormatUnknown {
		format = SniffFormat(string(body))
		name = ""
	}

	res := imp.importFormat(ctx, name, bytes.NewReader(body), int64(len(body)), format, opts)
	res.Metadata.Source = SourceURL
	res.Metadata.FileName = target
	res.Metadata.FileSize = int64(len(body))
	return res
}

// ImportClipboard parses pasted text. The format comes from content
// sniffing only; there is no file name to trust.
func (imp *Importer) ImportClipboard(ctx context.Context, text string, opts Options) *ImportResult {
	format := SniffFormat(text)
	res := imp.importFormat(ctx, "", strings.NewReader(text), int64(len(text)), format, opts)
	res.Metadata.Source = SourceClipboard
	return res
}
