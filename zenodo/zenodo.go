// The zenodo package is a client for the Zenodo deposition API, covering the
// operations a deposition workflow needs: creating and updating depositions,
// uploading files to a deposition's bucket, and publishing. The client talks
// to either the production repository or the sandbox.
package zenodo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/StalkR/hsts"

	"github.com/zedd-project/zedd/metadata"
)

const (
	productionBaseURL = "https://zenodo.org/api/"
	sandboxBaseURL    = "https://sandbox.zenodo.org/api/"
)

// hypermedia links reported for a deposition
type Links struct {
	Bucket  string `json:"bucket"`
	HTML    string `json:"html"`
	Publish string `json:"publish"`
	Self    string `json:"self"`
}

// a file already attached to a deposition
type DepositionFile struct {
	Id       string `json:"id"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	Checksum string `json:"checksum"`
}

// a deposition record as reported by the API
type Deposition struct {
	Id        int              `json:"id"`
	Title     string           `json:"title"`
	DOI       string           `json:"doi"`
	State     string           `json:"state"`
	Submitted bool             `json:"submitted"`
	Links     Links            `json:"links"`
	Files     []DepositionFile `json:"files"`
}

// a license identifier accepted by the repository
type License struct {
	Id    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Client performs deposition API requests against a single Zenodo instance
// on behalf of a single token.
type Client struct {
	// API base URL (production or sandbox)
	BaseURL string
	// personal access token used for authentication
	Token string
	// HTTP client used to connect to the API
	Client http.Client
}

// NewClient creates a client for the production repository, or for the
// sandbox when sandbox is true.
func NewClient(token string, sandbox bool) Client {
	baseURL := productionBaseURL
	if sandbox {
		baseURL = sandboxBaseURL
	}
	return Client{
		BaseURL: baseURL,
		Token:   token,
		Client:  secureHttpClient(time.Minute),
	}
}

// returns an HTTP client with a timeout and HTTP Strict Transport Security
// enabled that refuses redirects downgrading the connection to plain HTTP
func secureHttpClient(timeout time.Duration) http.Client {
	client := http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if req.URL.Scheme == "http" && len(via) > 0 && via[0].URL.Scheme == "https" {
				return &DowngradedRedirectError{
					Endpoint: fmt.Sprintf("%s%s", req.URL.Host, req.URL.Path),
				}
			}
			return http.ErrUseLastResponse
		},
	}
	client.Transport = hsts.New(client.Transport)
	return client
}

// adds an appropriate authorization header to the given HTTP request
func (c Client) addAuthHeader(request *http.Request) {
	request.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
}

// performs a request against the given API resource, returning the response
// body on success and a typed error mapped from the status code otherwise
func (c Client) do(method, resource string, values url.Values, body io.Reader) ([]byte, error) {
	res, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	res.Path += resource
	res.RawQuery = values.Encode()
	slog.Debug(fmt.Sprintf("%s: %s", method, res.String()))
	req, err := http.NewRequest(method, res.String(), body)
	if err != nil {
		return nil, err
	}
	c.addAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case 200, 201, 202, 204:
		return data, nil
	default:
		return nil, apiError(resp.StatusCode, resource, data)
	}
}

// translates an API error response into one of this package's error types
func apiError(statusCode int, resource string, body []byte) error {
	switch statusCode {
	case 400:
		// the API reports field-level complaints in the response body
		var payload struct {
			Message string       `json:"message"`
			Errors  []FieldError `json:"errors"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && len(payload.Errors) > 0 {
			return &InvalidRequestError{Errors: payload.Errors}
		}
		return &InvalidRequestError{
			Errors: []FieldError{{Field: "metadata", Message: string(body)}},
		}
	case 401:
		return &UnauthorizedError{}
	case 403:
		return &ForbiddenError{Operation: fmt.Sprintf("access %s", resource)}
	case 404:
		return &NotFoundError{Resource: resource}
	case 409:
		return &ConflictError{Message: string(body)}
	case 413:
		return &FileTooLargeError{File: resource}
	case 429:
		return &RateLimitError{}
	default:
		return &ServerError{StatusCode: statusCode}
	}
}

// CreateDeposition creates a new unsubmitted deposition carrying the given
// metadata document.
func (c Client) CreateDeposition(doc *metadata.Document) (Deposition, error) {
	var deposition Deposition
	payload, err := doc.Payload()
	if err != nil {
		return deposition, err
	}
	body, err := c.do(http.MethodPost, "deposit/depositions", url.Values{},
		bytes.NewReader(payload))
	if err != nil {
		return deposition, err
	}
	err = json.Unmarshal(body, &deposition)
	return deposition, err
}

// GetDeposition retrieves the deposition with the given id.
func (c Client) GetDeposition(depositionId int) (Deposition, error) {
	var deposition Deposition
	body, err := c.do(http.MethodGet,
		fmt.Sprintf("deposit/depositions/%d", depositionId), url.Values{}, nil)
	if err != nil {
		return deposition, err
	}
	err = json.Unmarshal(body, &deposition)
	return deposition, err
}

// UpdateDeposition replaces the metadata of the deposition with the given id.
func (c Client) UpdateDeposition(depositionId int, doc *metadata.Document) (Deposition, error) {
	var deposition Deposition
	payload, err := doc.Payload()
	if err != nil {
		return deposition, err
	}
	body, err := c.do(http.MethodPut,
		fmt.Sprintf("deposit/depositions/%d", depositionId), url.Values{},
		bytes.NewReader(payload))
	if err != nil {
		return deposition, err
	}
	err = json.Unmarshal(body, &deposition)
	return deposition, err
}

// ListDepositions retrieves the depositions owned by the token's user.
func (c Client) ListDepositions() ([]Deposition, error) {
	body, err := c.do(http.MethodGet, "deposit/depositions", url.Values{}, nil)
	if err != nil {
		return nil, err
	}
	var depositions []Deposition
	err = json.Unmarshal(body, &depositions)
	return depositions, err
}

// PublishDeposition publishes the deposition with the given id, making it
// public and minting its DOI. Publishing is irreversible.
func (c Client) PublishDeposition(depositionId int) (Deposition, error) {
	var deposition Deposition
	body, err := c.do(http.MethodPost,
		fmt.Sprintf("deposit/depositions/%d/actions/publish", depositionId),
		url.Values{}, nil)
	if err != nil {
		return deposition, err
	}
	err = json.Unmarshal(body, &deposition)
	return deposition, err
}

// DeleteDeposition discards an unpublished deposition.
func (c Client) DeleteDeposition(depositionId int) error {
	_, err := c.do(http.MethodDelete,
		fmt.Sprintf("deposit/depositions/%d", depositionId), url.Values{}, nil)
	return err
}

// DeleteFile removes a file from an unpublished deposition.
func (c Client) DeleteFile(depositionId int, fileId string) error {
	_, err := c.do(http.MethodDelete,
		fmt.Sprintf("deposit/depositions/%d/files/%s", depositionId, fileId),
		url.Values{}, nil)
	return err
}

// Licenses retrieves the license identifiers the repository accepts.
func (c Client) Licenses() ([]License, error) {
	body, err := c.do(http.MethodGet, "licenses", url.Values{}, nil)
	if err != nil {
		return nil, err
	}
	var page struct {
		Hits struct {
			Hits []License `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, err
	}
	return page.Hits.Hits, nil
}

// reports upload progress as a file streams to the deposition bucket
type ProgressFunc func(sent, total int64)

// UploadFile streams the file at the given path into the deposition's bucket
// under the file's base name, invoking progress (if non-nil) as bytes go out.
// The reported checksum comes back from the repository.
func (c Client) UploadFile(deposition Deposition, path string, progress ProgressFunc) (DepositionFile, error) {
	var uploaded DepositionFile
	file, err := os.Open(path)
	if err != nil {
		return uploaded, err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return uploaded, err
	}

	name := filepath.Base(path)
	target := fmt.Sprintf("%s/%s", deposition.Links.Bucket, url.PathEscape(name))
	slog.Debug(fmt.Sprintf("PUT: %s (%d bytes)", target, info.Size()))

	reader := &progressReader{reader: file, total: info.Size(), progress: progress}
	req, err := http.NewRequest(http.MethodPut, target, reader)
	if err != nil {
		return uploaded, err
	}
	req.ContentLength = info.Size()
	c.addAuthHeader(req)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.Client.Do(req)
	if err != nil {
		return uploaded, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return uploaded, err
	}
	if resp.StatusCode != 200 && resp.StatusCode != 201 {
		return uploaded, apiError(resp.StatusCode, name, data)
	}

	// the bucket API reports the stored file's key, size, and checksum
	var stored struct {
		Key       string `json:"key"`
		Size      int64  `json:"size"`
		Checksum  string `json:"checksum"`
		VersionId string `json:"version_id"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return uploaded, err
	}
	uploaded = DepositionFile{
		Id:       stored.VersionId,
		Filename: stored.Key,
		Filesize: stored.Size,
		Checksum: stored.Checksum,
	}
	return uploaded, nil
}

// a reader that reports cumulative progress as it is consumed
type progressReader struct {
	reader   io.Reader
	sent     int64
	total    int64
	progress ProgressFunc
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.sent += int64(n)
		if r.progress != nil {
			r.progress(r.sent, r.total)
		}
	}
	return n, err
}

