package messaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultFetchTimeout bounds a whole export download.
const DefaultFetchTimeout = 5 * time.Second

// HTTPFetcher downloads "<BaseURL>/<userid>.csv".
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

func (f *HTTPFetcher) Fetch(ctx context.Context, userID string, w io.Writer) error {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}

	u := strings.TrimSuffix(f.BaseURL, "/") + "/" + url.PathEscape(userID) + ".csv"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", u, resp.Status)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}
