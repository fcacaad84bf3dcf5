package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOzonGetStatusesPaginates(t *testing.T) {
	var requests []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/posting/fbs/list", r.URL.Path)

		var payload struct {
			Offset int `json:"offset"`
			Limit  int `json:"limit"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		requests = append(requests, payload.Offset)

		// Первая страница забита чужими отправлениями, нужное — на второй
		var postings []map[string]interface{}
		hasNext := true
		if payload.Offset == 0 {
			for i := 0; i < payload.Limit; i++ {
				postings = append(postings, map[string]interface{}{
					"posting_number": fmt.Sprintf("other-%d", i),
					"status":         "delivered",
				})
			}
		} else {
			postings = append(postings, map[string]interface{}{
				"posting_number": "555-1",
				"status":         "awaiting_deliver",
				"substatus":      "posting_in_carriage",
			})
			hasNext = false
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{
				"postings": postings,
				"has_next": hasNext,
			},
		})
	}))
	defer srv.Close()

	client := NewOzonClient(srv.URL, "client", "key", 5*time.Second)
	statuses, err := client.GetStatuses(context.Background(), []string{"555-1"})
	require.NoError(t, err)

	require.Contains(t, statuses, "555-1")
	assert.Equal(t, "awaiting_deliver", statuses["555-1"].Status)
	assert.Equal(t, "posting_in_carriage", statuses["555-1"].SubStatus)
	assert.Equal(t, []int{0, ozonListPageLimit}, requests)
}

func TestOzonGetStatusesStopsWhenAllFound(t *testing.T) {
	pages := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{
				"postings": []map[string]interface{}{
					{"posting_number": "777-1", "status": "delivering"},
				},
				"has_next": true,
			},
		})
	}))
	defer srv.Close()

	client := NewOzonClient(srv.URL, "client", "key", 5*time.Second)
	statuses, err := client.GetStatuses(context.Background(), []string{"777-1"})
	require.NoError(t, err)

	// Все запрошенные номера собраны: дальше не листаем, даже при has_next
	assert.Len(t, statuses, 1)
	assert.Equal(t, 1, pages)
}
