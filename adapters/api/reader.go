package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"sentinel/adapters/excel"
	"sentinel/domain/core"
	"sentinel/domain/table"
	"sentinel/internal"
)

// Pagination styles
const (
	PaginationNone   = "none"
	PaginationOffset = "offset"
	PaginationPage   = "page"
	PaginationCursor = "cursor"
)

// maxBodyBytes caps a single page so a runaway endpoint cannot exhaust memory
const maxBodyBytes = 64 << 20

// Source describes a REST endpoint returning quality records as JSON
type Source struct {
	URL        string
	DataPath   string // gjson path of the record array; empty means the whole body
	Token      string // sent as a bearer token when set
	Pagination string
	PageSize   int
	MaxPages   int
	Timeout    time.Duration
}

// Common cursor field names
var cursorFields = []string{"next_cursor", "cursor", "next", "continuation_token"}

// Reader fetches records from a Source and types them into a table
type Reader struct {
	source     Source
	httpClient *http.Client
	coercer    *excel.TypeCoercer
	logger     *zap.Logger
}

// NewReader creates a reader for source
func NewReader(source Source, logger *zap.Logger) *Reader {
	if source.Pagination == "" {
		source.Pagination = PaginationNone
	}
	if source.PageSize <= 0 {
		source.PageSize = 500
	}
	if source.MaxPages <= 0 {
		source.MaxPages = 1
	}
	if source.Timeout <= 0 {
		source.Timeout = 30 * time.Second
	}
	return &Reader{
		source:     source,
		httpClient: &http.Client{Timeout: source.Timeout},
		coercer:    excel.NewTypeCoercer(excel.DefaultCoercionConfig()),
		logger:     internal.OrNop(logger).Named("api"),
	}
}

// ReadTable fetches every page and types the columns. Columns appear in the
// order their keys are first seen.
func (r *Reader) ReadTable(ctx context.Context) (*table.Table, error) {
	var (
		headers []string
		index   = map[string]int{}
		rows    []map[string]any
		cursor  string
	)

	for page := 0; page < r.source.MaxPages; page++ {
		body, err := r.fetch(ctx, r.pageURL(cursor, page))
		if err != nil {
			return nil, err
		}

		records, err := r.records(body)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			row := make(map[string]any)
			rec.ForEach(func(key, value gjson.Result) bool {
				name := key.String()
				if _, ok := index[name]; !ok {
					index[name] = len(headers)
					headers = append(headers, name)
				}
				row[name] = cellValue(value)
				return true
			})
			rows = append(rows, row)
		}
		r.logger.Debug("page fetched", zap.Int("page", page), zap.Int("records", len(records)))

		if !r.hasMore(body, len(records)) {
			break
		}
		cursor = nextCursor(body)
	}

	if len(rows) == 0 {
		return nil, core.NewInsufficientDataError("endpoint returned no records")
	}

	grid := make([][]any, len(rows))
	for i, row := range rows {
		grid[i] = make([]any, len(headers))
		for name, v := range row {
			grid[i][index[name]] = v
		}
	}
	t, err := r.coercer.BuildTable(headers, grid)
	if err != nil {
		return nil, err
	}
	t, err = excel.WithDeviation(t, r.coercer)
	if err != nil {
		return nil, err
	}
	r.logger.Info("table fetched",
		zap.String("url", r.source.URL),
		zap.Int("rows", t.Len()),
		zap.Int("columns", t.Width()))
	return t, nil
}

func (r *Reader) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, core.NewInvalidArgumentError("invalid api url %q: %v", target, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.source.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.source.Token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if !gjson.ValidBytes(body) {
		return nil, core.NewInvalidArgumentError("api response is not valid JSON")
	}
	return body, nil
}

// records extracts the record objects at the data path. A single object is
// treated as one record.
func (r *Reader) records(body []byte) ([]gjson.Result, error) {
	result := gjson.ParseBytes(body)
	if r.source.DataPath != "" {
		result = gjson.GetBytes(body, r.source.DataPath)
	}
	switch {
	case !result.Exists():
		return nil, core.NewInvalidArgumentError("data path %q not found in response", r.source.DataPath)
	case result.IsObject():
		return []gjson.Result{result}, nil
	case result.IsArray():
		var out []gjson.Result
		for _, item := range result.Array() {
			if item.IsObject() {
				out = append(out, item)
			}
		}
		return out, nil
	default:
		return nil, core.NewInvalidArgumentError("data path %q is not an array or object", r.source.DataPath)
	}
}

// pageURL adds the pagination parameters to the configured URL
func (r *Reader) pageURL(cursor string, page int) string {
	u, err := url.Parse(r.source.URL)
	if err != nil {
		return r.source.URL
	}
	q := u.Query()
	switch r.source.Pagination {
	case PaginationOffset:
		q.Set("offset", strconv.Itoa(page*r.source.PageSize))
		q.Set("limit", strconv.Itoa(r.source.PageSize))
	case PaginationPage:
		q.Set("page", strconv.Itoa(page+1))
		q.Set("per_page", strconv.Itoa(r.source.PageSize))
	case PaginationCursor:
		if cursor != "" {
			q.Set("cursor", cursor)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (r *Reader) hasMore(body []byte, got int) bool {
	switch r.source.Pagination {
	case PaginationOffset, PaginationPage:
		return got >= r.source.PageSize
	case PaginationCursor:
		return nextCursor(body) != ""
	default:
		return false
	}
}

func nextCursor(body []byte) string {
	for _, field := range cursorFields {
		if c := gjson.GetBytes(body, field); c.Exists() && c.String() != "" {
			return c.String()
		}
	}
	return ""
}

// cellValue maps a JSON value onto what the coercer accepts
func cellValue(v gjson.Result) any {
	switch v.Type {
	case gjson.Null:
		return nil
	case gjson.Number:
		return v.Float()
	case gjson.String:
		return v.Str
	case gjson.True, gjson.False:
		return strconv.FormatBool(v.Bool())
	default:
		return v.Raw
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
