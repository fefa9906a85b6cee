package sourcemap

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"
)

// dataURLPattern matches the inline source-map form (spec §6.3):
// data:application/json[;charset=...];base64,<payload>
var dataURLPattern = regexp.MustCompile(`^data:application/json(?:;charset=[^;]+)?;base64,(.+)$`)

// Fetcher retrieves the raw bytes of an external source map. Sessions
// inject one fetcher per engine; tests inject a stub (spec §4.4: "an
// injected fetcher").
type Fetcher interface {
	Fetch(ctx context.Context, resolvedURL string) ([]byte, error)
}

// DefaultFetcher resolves file:// URLs from the local filesystem and
// http(s):// URLs via a plain GET, matching spec §4.4's two supported
// external schemes.
type DefaultFetcher struct {
	HTTPClient *http.Client
}

// defaultFetchTimeout bounds HTTP fetches when no client is supplied.
const defaultFetchTimeout = 10 * time.Second

// NewDefaultFetcher builds a DefaultFetcher with a bounded HTTP client.
func NewDefaultFetcher(client *http.Client) *DefaultFetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &DefaultFetcher{HTTPClient: client}
}

func (f *DefaultFetcher) Fetch(ctx context.Context, resolvedURL string) ([]byte, error) {
	u, err := url.Parse(resolvedURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", resolvedURL, err)
	}

	switch u.Scheme {
	case "file":
		return os.ReadFile(u.Path)
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolvedURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := f.HTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("GET %s: status %d", resolvedURL, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	default:
		return nil, fmt.Errorf("unsupported source-map scheme %q", u.Scheme)
	}
}

// resolveReference resolves a source-map reference against the script's
// own URL, the same way a browser resolves a relative sourceMappingURL
// (spec §4.4: "resolve relative to the script URL (standard URL join);
// absolute http/https/file schemes preserved").
func resolveReference(scriptURL, ref string) (string, error) {
	base, err := url.Parse(scriptURL)
	if err != nil {
		return "", fmt.Errorf("parse script URL %s: %w", scriptURL, err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse source map reference %s: %w", ref, err)
	}
	return base.ResolveReference(refURL).String(), nil
}

// decodeInlineDataURL extracts and base64-decodes the payload of an
// inline source-map reference, if ref matches the data-URL pattern.
func decodeInlineDataURL(ref string) (data []byte, ok bool, err error) {
	match := dataURLPattern.FindStringSubmatch(ref)
	if match == nil {
		return nil, false, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(match[1])
	if err != nil {
		return nil, true, err
	}
	return decoded, true, nil
}

// isInlineDataURL reports whether ref is an inline data: reference at
// all (used to skip URL-join for the inline form).
func isInlineDataURL(ref string) bool {
	return strings.HasPrefix(ref, "data:")
}
