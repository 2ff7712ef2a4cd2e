package models

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPInteraction is a captured request/response pair.
// Identity is (method, URL); only GET requests with a 200 response are stored.
type HTTPInteraction struct {
	Key            string `badgerhold:"key"`
	RequestMethod  string `json:"request_method"`
	RequestURL     string `badgerholdIndex:"RequestURL" json:"request_url"`
	RequestHeaders []byte `json:"request_headers,omitempty"`
	RequestParams  []byte `json:"request_params,omitempty"`
	RequestBody    []byte `json:"request_body,omitempty"`

	ResponseStatus  int    `json:"response_status"`
	ResponseHeaders []byte `json:"response_headers,omitempty"`
	ResponseBody    []byte `json:"response_body,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InteractionKey builds the uniqueness key for an interaction.
func InteractionKey(method, rawURL string) string {
	return fmt.Sprintf("%s %s", method, rawURL)
}

// CapturedRequest is the serializable request half of an interaction.
type CapturedRequest struct {
	Method  string
	URL     string
	Headers http.Header
	Params  url.Values
	Body    []byte
}

// CapturedResponse is the serializable response half of an interaction.
type CapturedResponse struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// NewHTTPInteraction captures a request/response pair.
func NewHTTPInteraction(req *CapturedRequest, resp *CapturedResponse) (*HTTPInteraction, error) {
	reqHeaders, err := json.Marshal(req.Headers)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request headers: %w", err)
	}
	reqParams, err := json.Marshal(req.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request params: %w", err)
	}
	respHeaders, err := json.Marshal(resp.Headers)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize response headers: %w", err)
	}

	now := time.Now().UTC()
	return &HTTPInteraction{
		Key:             InteractionKey(req.Method, req.URL),
		RequestMethod:   req.Method,
		RequestURL:      req.URL,
		RequestHeaders:  reqHeaders,
		RequestParams:   reqParams,
		RequestBody:     req.Body,
		ResponseStatus:  resp.Status,
		ResponseHeaders: respHeaders,
		ResponseBody:    resp.Body,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Response reconstructs the captured response.
func (i *HTTPInteraction) Response() (*CapturedResponse, error) {
	headers := http.Header{}
	if len(i.ResponseHeaders) > 0 {
		if err := json.Unmarshal(i.ResponseHeaders, &headers); err != nil {
			return nil, fmt.Errorf("failed to decode response headers for %s: %w", i.Key, err)
		}
	}
	return &CapturedResponse{
		Status:  i.ResponseStatus,
		Headers: headers,
		Body:    i.ResponseBody,
	}, nil
}
