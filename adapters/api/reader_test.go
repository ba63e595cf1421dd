package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/domain/core"
	"sentinel/domain/table"
)

func TestReadTable_DataPathAndTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"data": {"items": [
			{"timestamp": "2024-01-01 00:00:00", "production_line": "Line A", "defect_count": 3, "Nominal": 10, "Measured Value": 12.5},
			{"timestamp": "2024-01-01 01:00:00", "production_line": "Line B", "defect_count": null, "Nominal": 10, "Measured Value": 9}
		]}}`)
	}))
	defer srv.Close()

	tbl, err := NewReader(Source{URL: srv.URL, DataPath: "data.items", Token: "secret"}, nil).ReadTable(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"timestamp", "production_line", "defect_count", "Nominal", "Measured Value", "Deviation"}, tbl.Names())

	ts, ok := tbl.Column("timestamp")
	require.True(t, ok)
	assert.Equal(t, table.TypeTemporal, ts.Type())

	defects, _ := tbl.Column("defect_count")
	assert.Equal(t, table.TypeNumeric, defects.Type())
	assert.True(t, defects.IsNull(1))

	dev, _ := tbl.Column("Deviation")
	v, _ := dev.Float(0)
	assert.InDelta(t, 2.5, v, 1e-9)
}

func TestReadTable_OffsetPagination(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		switch offset {
		case 0:
			fmt.Fprint(w, `[{"defect_count": 1}, {"defect_count": 2}]`)
		case 2:
			fmt.Fprint(w, `[{"defect_count": 3}]`)
		default:
			t.Errorf("unexpected offset %d", offset)
		}
	}))
	defer srv.Close()

	tbl, err := NewReader(Source{URL: srv.URL, Pagination: PaginationOffset, PageSize: 2, MaxPages: 5}, nil).
		ReadTable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, 2, calls)
}

func TestReadTable_CursorPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			fmt.Fprint(w, `{"records": [{"severity": "High"}], "next_cursor": "abc"}`)
			return
		}
		assert.Equal(t, "abc", r.URL.Query().Get("cursor"))
		fmt.Fprint(w, `{"records": [{"severity": "Low"}]}`)
	}))
	defer srv.Close()

	tbl, err := NewReader(Source{URL: srv.URL, DataPath: "records", Pagination: PaginationCursor, MaxPages: 10}, nil).
		ReadTable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
}

func TestReadTable_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		path   string
		isArg  bool
	}{
		{"server error", http.StatusBadGateway, `{}`, "", false},
		{"invalid json", http.StatusOK, `{not json`, "", true},
		{"missing path", http.StatusOK, `{"data": []}`, "items", true},
		{"scalar at path", http.StatusOK, `{"items": 3}`, "items", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewReader(Source{URL: srv.URL, DataPath: tt.path}, nil).ReadTable(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.isArg, errors.Is(err, core.ErrInvalidArgument))
		})
	}

	t.Run("no records", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[]`)
		}))
		defer srv.Close()
		_, err := NewReader(Source{URL: srv.URL}, nil).ReadTable(context.Background())
		assert.ErrorIs(t, err, core.ErrInsufficientData)
	})
}
