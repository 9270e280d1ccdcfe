package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/biblioteca/internal/auth"
	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/entities"
)

// asUser stands in for the auth middleware.
func asUser(id uint, role entities.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(auth.ContextKeyUserID, id)
		c.Set(auth.ContextKeyRole, role)
		c.Set(auth.ContextKeyAuthType, auth.AuthTypeSession)
		c.Next()
	}
}

func doJSON(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestParseIDParam(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		path   string
		wantID uint
		wantOK bool
	}{
		{"valid id", "/items/42", 42, true},
		{"zero", "/items/0", 0, false},
		{"negative", "/items/-1", 0, false},
		{"not a number", "/items/abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotID uint
			var gotOK bool
			router := gin.New()
			router.GET("/items/:id", func(c *gin.Context) {
				gotID, gotOK = parseIDParam(c, "id")
				if gotOK {
					c.Status(http.StatusOK)
				}
			})

			w := doJSON(router, http.MethodGet, tt.path, "")

			assert.Equal(t, tt.wantOK, gotOK)
			assert.Equal(t, tt.wantID, gotID)
			if !tt.wantOK {
				assert.Equal(t, http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestParseListOptions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	paging := Paging{PageSize: 10, MaxPageSize: 50}

	run := func(query string) (database.ListOptions, bool, *httptest.ResponseRecorder) {
		var opts database.ListOptions
		var ok bool
		router := gin.New()
		router.GET("/list", func(c *gin.Context) {
			opts, ok = parseListOptions(c, paging, "estado")
			if ok {
				c.Status(http.StatusOK)
			}
		})
		w := doJSON(router, http.MethodGet, "/list"+query, "")
		return opts, ok, w
	}

	t.Run("defaults", func(t *testing.T) {
		opts, ok, _ := run("")
		require.True(t, ok)
		assert.Equal(t, 1, opts.Page)
		assert.Equal(t, 10, opts.PageSize)
		assert.Empty(t, opts.Filters)
	})

	t.Run("reads search ordering and filters", func(t *testing.T) {
		opts, ok, _ := run("?search=borges&ordering=-titulo&estado=disponible&ignored=x&page=3")
		require.True(t, ok)
		assert.Equal(t, 3, opts.Page)
		assert.Equal(t, "borges", opts.Search)
		assert.Equal(t, "-titulo", opts.Ordering)
		assert.Equal(t, "disponible", opts.Filter("estado"))
		assert.Empty(t, opts.Filter("ignored"))
	})

	t.Run("clamps page size", func(t *testing.T) {
		opts, ok, _ := run("?page_size=500")
		require.True(t, ok)
		assert.Equal(t, 50, opts.PageSize)
	})

	t.Run("rejects malformed page", func(t *testing.T) {
		for _, q := range []string{"?page=0", "?page=x", "?page_size=-2"} {
			_, ok, w := run(q)
			assert.False(t, ok, q)
			assert.Equal(t, http.StatusBadRequest, w.Code, q)
		}
	})
}

func TestRespondList(t *testing.T) {
	gin.SetMode(gin.TestMode)

	serve := func(query string, total int64, items []string) ListResponse[string] {
		router := gin.New()
		router.GET("/api/things/", func(c *gin.Context) {
			opts, ok := parseListOptions(c, Paging{PageSize: 2, MaxPageSize: 10})
			if !ok {
				return
			}
			respondList(c, &database.Page[string]{Items: items, Total: total}, opts)
		})
		req := httptest.NewRequest(http.MethodGet, "/api/things/"+query, nil)
		req.Host = "example.org"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		return decode[ListResponse[string]](t, w)
	}

	t.Run("first page links forward only", func(t *testing.T) {
		resp := serve("", 5, []string{"a", "b"})
		assert.Equal(t, int64(5), resp.Count)
		require.NotNil(t, resp.Next)
		assert.Equal(t, "http://example.org/api/things/?page=2", *resp.Next)
		assert.Nil(t, resp.Previous)
	})

	t.Run("middle page links both ways", func(t *testing.T) {
		resp := serve("?page=2&search=x", 5, []string{"c", "d"})
		require.NotNil(t, resp.Next)
		require.NotNil(t, resp.Previous)
		assert.Equal(t, "http://example.org/api/things/?page=3&search=x", *resp.Next)
		assert.Equal(t, "http://example.org/api/things/?search=x", *resp.Previous)
	})

	t.Run("last page has no next", func(t *testing.T) {
		resp := serve("?page=3", 5, []string{"e"})
		assert.Nil(t, resp.Next)
		assert.NotNil(t, resp.Previous)
	})

	t.Run("empty page serializes results as a list", func(t *testing.T) {
		router := gin.New()
		router.GET("/empty", func(c *gin.Context) {
			respondList(c, &database.Page[string]{}, database.ListOptions{}.Normalized())
		})
		w := doJSON(router, http.MethodGet, "/empty", "")
		assert.Contains(t, w.Body.String(), `"results":[]`)
		assert.Contains(t, w.Body.String(), `"next":null`)
	})
}

func TestValidation(t *testing.T) {
	t.Run("normalizeISBN", func(t *testing.T) {
		tests := []struct {
			in      string
			want    string
			wantErr bool
		}{
			{"978-84-376-0494-7", "9788437604947", false},
			{"0-306-40615-2", "0306406152", false},
			{"080442957x", "080442957X", false},
			{"12345", "", true},
			{"97884376049X7", "", true},
		}
		for _, tt := range tests {
			got, err := normalizeISBN(tt.in)
			if tt.wantErr {
				assert.Error(t, err, tt.in)
				continue
			}
			require.NoError(t, err, tt.in)
			assert.Equal(t, tt.want, got)
		}
	})

	t.Run("validDate", func(t *testing.T) {
		for _, ok := range []string{"1967", "1967-05", "1967-05-30"} {
			assert.NoError(t, validDate(ok), ok)
		}
		for _, bad := range []string{"67", "1967-13", "1967-02-30", "30/05/1967"} {
			assert.Error(t, validDate(bad), bad)
		}
	})

	t.Run("formatDecimal", func(t *testing.T) {
		got, err := formatDecimal(json.Number("19.5"), maxPrice)
		require.NoError(t, err)
		assert.Equal(t, "19.50", got)

		_, err = formatDecimal(json.Number("1.999"), maxPrice)
		assert.ErrorIs(t, err, errTooManyDecimals)

		_, err = formatDecimal(json.Number("5.5"), maxRating)
		assert.Error(t, err)

		_, err = formatDecimal(json.Number("-1"), maxPrice)
		assert.Error(t, err)
	})
}
