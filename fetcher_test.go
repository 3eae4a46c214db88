package livefetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceFetcher_Selects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		fmt.Fprint(w, `{"data": {"quote": "stay curious"}}`)
	}))
	defer ts.Close()

	src, err := NewSource("quote", ts.URL,
		WithHeaders("X-Test", "yes"),
		WithSelector(JSONFieldSelector("data.quote")),
	)
	require.NoError(t, err)

	v, err := SourceFetcher(src)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stay curious", v)
}

func TestSourceFetcher_DefaultSelector(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "plain words\n")
	}))
	defer ts.Close()

	src, err := NewSource("text", ts.URL)
	require.NoError(t, err)

	v, err := SourceFetcher(src)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "plain words", v)
}

func TestSourceFetcher_Method(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, r.Method)
	}))
	defer ts.Close()

	src, err := NewSource("m", ts.URL, WithMethod(http.MethodPost), WithSelector(TextSelector))
	require.NoError(t, err)

	v, err := SourceFetcher(src)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, v)
}

func TestSourceFetcher_UnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	src, err := NewSource("down", ts.URL)
	require.NoError(t, err)

	_, err = SourceFetcher(src)(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
	assert.Equal(t, ts.URL, fe.URL)
}

func TestSourceFetcher_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	src, err := NewSource("gone", url)
	require.NoError(t, err)

	_, err = SourceFetcher(src)(context.Background())
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Zero(t, fe.StatusCode)
}

func TestSourceFetcher_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	src, err := NewSource("slow", ts.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = SourceFetcher(src)(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSourceFetcher_SelectorError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"other": 1}`)
	}))
	defer ts.Close()

	src, err := NewSource("q", ts.URL, WithSelector(JSONFieldSelector("quote")))
	require.NoError(t, err)

	_, err = SourceFetcher(src)(context.Background())
	assert.ErrorIs(t, err, ErrNoMatch)

	var fe *FetchError
	assert.False(t, errors.As(err, &fe), "selector errors are not fetch errors")
}

func TestFetchJSON(t *testing.T) {
	type quote struct {
		Text   string `json:"text"`
		Author string `json:"author"`
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"text": "hello", "author": "anon"}`)
	}))
	defer ts.Close()

	fetchQuote, err := FetchJSON[quote](ts.URL)
	require.NoError(t, err)

	r := NewResource(fetchQuote, quote{})
	defer r.Close()

	v, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, quote{Text: "hello", Author: "anon"}, v)
	assert.Equal(t, v, r.Value.Get())
}

func TestFetchJSON_DecodeError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json")
	}))
	defer ts.Close()

	fetchNum, err := FetchJSON[int](ts.URL)
	require.NoError(t, err)

	_, err = fetchNum(context.Background())
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
}

func TestFetchJSON_InvalidURL(t *testing.T) {
	_, err := FetchJSON[int]("not a url")
	assert.Error(t, err)
}
