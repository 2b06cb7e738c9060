package skiptrace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-resolver/internal/model"
)

const personBody = `{"results":{"persons":[{
	"name":{"first":"Jane","last":"Doe"},
	"age": 54,
	"phoneNumbers":[
		{"number":"7725550101","type":"Mobile","dnc":true},
		{"number":"7725550102","type":"Land Line","dnc":false}
	],
	"emails":[{"email":"jane@example.com"},"jd@example.net"],
	"relatives":[{"name":{"full":"John Doe"}},"Mary Doe"]
}]}}`

func fastClient(url string, opts ...Option) *Client {
	base := []Option{WithBaseURL(url), WithRetries(2, time.Millisecond)}
	return NewClient("test-key", append(base, opts...)...)
}

func TestLookupPerson_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/property/skip-trace", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Requests, 1)
		assert.Equal(t, "4510 Sample Dr", req.Requests[0].PropertyAddress.Street)
		assert.Equal(t, "Doe", req.Requests[0].Name.Last)

		_, _ = io.WriteString(w, personBody)
	}))
	defer srv.Close()

	res, err := fastClient(srv.URL).LookupPerson(context.Background(), model.PersonInput{
		FirstName: "Jane", LastName: "Doe", Address: "4510 Sample Dr", City: "Fort Pierce", State: "FL", Zip: "34950",
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "Jane", res.FirstName)
	require.NotNil(t, res.Age)
	assert.Equal(t, 54, *res.Age)
	assert.Equal(t, []model.Phone{
		{Number: "7725550101", Type: "Mobile", DoNotCall: true},
		{Number: "7725550102", Type: "Land Line"},
	}, res.Phones)
	assert.Equal(t, []string{"jane@example.com", "jd@example.net"}, res.Emails)
	assert.Equal(t, []string{"John Doe", "Mary Doe"}, res.Relatives)
	assert.JSONEq(t, personBody, string(res.Raw))
}

func TestLookupPerson_NotConfigured(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL))
	res, err := c.LookupPerson(context.Background(), model.PersonInput{LastName: "Doe"})
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, int32(0), calls.Load())
	assert.False(t, c.Configured())
}

func TestLookupPerson_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, personBody)
	}))
	defer srv.Close()

	res, err := fastClient(srv.URL).LookupPerson(context.Background(), model.PersonInput{LastName: "Doe"})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLookupPerson_GivesUp(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res, err := fastClient(srv.URL).LookupPerson(context.Background(), model.PersonInput{LastName: "Doe"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, err.Error(), "status 500")
}

func TestLookupPerson_AttemptTimeoutRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = io.WriteString(w, personBody)
	}))
	defer srv.Close()

	res, err := fastClient(srv.URL, WithTimeout(50*time.Millisecond)).
		LookupPerson(context.Background(), model.PersonInput{LastName: "Doe"})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLookupPerson_NoMatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"results":{"persons":[]}}`)
	}))
	defer srv.Close()

	res, err := fastClient(srv.URL).LookupPerson(context.Background(), model.PersonInput{LastName: "Doe"})
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestParseResponse_Caps(t *testing.T) {
	var phones, emails, relatives []string
	for i := 0; i < 12; i++ {
		phones = append(phones, fmt.Sprintf(`"555000%02d"`, i))
		emails = append(emails, fmt.Sprintf(`"p%d@example.com"`, i))
		relatives = append(relatives, fmt.Sprintf(`{"name":"Relative %d"}`, i))
	}
	body := fmt.Sprintf(`{"persons":[{"firstName":"A","phones":[%s],"emails":[%s],"relatives":[%s]}]}`,
		strings.Join(phones, ","), strings.Join(emails, ","), strings.Join(relatives, ","))

	res := parseResponse([]byte(body))
	require.NotNil(t, res)
	assert.Len(t, res.Phones, model.MaxPhones)
	assert.Len(t, res.Emails, model.MaxEmails)
	assert.Len(t, res.Relatives, model.MaxRelatives)
	assert.Equal(t, "A", res.FirstName)
}

func TestParseResponse_Defensive(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantNil bool
	}{
		{"not json", `<html>`, true},
		{"array root", `[1,2]`, true},
		{"no persons", `{"results":{}}`, true},
		{"empty person", `{"person":{}}`, true},
		{"wrong types", `{"person":{"name":"Jane","phones":"x","age":"old","emails":[{"email":true}]},"x":1}`, true},
		{"single person", `{"person":{"lastName":"Doe","age":"41"}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := parseResponse([]byte(tt.body))
			if tt.wantNil {
				assert.Nil(t, res)
				return
			}
			require.NotNil(t, res)
			assert.Equal(t, "Doe", res.LastName)
			require.NotNil(t, res.Age)
			assert.Equal(t, 41, *res.Age)
		})
	}
}

func TestLookupPerson_OversizedResponse(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"results":{"persons":[],"pad":"`+strings.Repeat("x", maxResponseBytes)+`"}}`)
	}))
	defer srv.Close()

	res, err := fastClient(srv.URL).LookupPerson(context.Background(), model.PersonInput{LastName: "Doe"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "response exceeds")
	assert.Equal(t, int32(1), calls.Load(), "an oversized body is not retried")
}
