// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package artifact

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"go.astrophena.name/base/request"
)

// ResultsStore stores artifacts in the GitHub Actions artifact service, the
// one behind actions/upload-artifact@v4 and actions/download-artifact@v4.
// Artifacts are scoped to the workflow run.
type ResultsStore struct {
	// BaseURL is the value of ACTIONS_RESULTS_URL.
	BaseURL string
	// Token is the value of ACTIONS_RUNTIME_TOKEN.
	Token string
	// HTTPClient is a HTTP client for making requests. If nil,
	// request.DefaultClient is used.
	HTTPClient *http.Client
}

const artifactService = "twirp/github.actions.results.api.v1.ArtifactService/"

// backend identifies the workflow run and job to the artifact service.
type backend struct {
	RunID string `json:"workflow_run_backend_id"`
	JobID string `json:"workflow_job_run_backend_id"`
}

// backendIDs extracts the backend IDs from the "Actions.Results:<run>:<job>"
// scope of the runtime token. The token is a JWT; its signature is checked by
// the service, so only the claims are decoded here.
func backendIDs(token string) (backend, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return backend{}, errors.New("runtime token is not a JWT")
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return backend{}, fmt.Errorf("decoding runtime token: %w", err)
	}
	var claims struct {
		Scope string `json:"scp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return backend{}, fmt.Errorf("decoding runtime token claims: %w", err)
	}
	for scope := range strings.FieldsSeq(claims.Scope) {
		fields := strings.Split(scope, ":")
		if len(fields) == 3 && fields[0] == "Actions.Results" {
			return backend{RunID: fields[1], JobID: fields[2]}, nil
		}
	}
	return backend{}, errors.New("runtime token has no Actions.Results scope")
}

func call[Resp any](ctx context.Context, s *ResultsStore, method string, req any) (Resp, error) {
	resp, err := request.Make[Resp](ctx, request.Params{
		Method: http.MethodPost,
		URL:    strings.TrimSuffix(s.BaseURL, "/") + "/" + artifactService + method,
		Headers: map[string]string{
			"Authorization": "Bearer " + s.Token,
			"Content-Type":  "application/json",
		},
		Body:       req,
		HTTPClient: s.HTTPClient,
	})
	if err != nil {
		return resp, fmt.Errorf("artifact service %s: %w", method, err)
	}
	return resp, nil
}

func (s *ResultsStore) httpClient() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return request.DefaultClient
}

type (
	listRequest struct {
		backend
		NameFilter string `json:"name_filter,omitempty"`
	}
	listResponse struct {
		Artifacts []listedArtifact `json:"artifacts"`
	}
	listedArtifact struct {
		backend
		DatabaseID string `json:"database_id"`
		Name       string `json:"name"`
		Size       string `json:"size"`
	}
	createRequest struct {
		backend
		Name    string `json:"name"`
		Version int    `json:"version"`
	}
	createResponse struct {
		OK              bool   `json:"ok"`
		SignedUploadURL string `json:"signed_upload_url"`
	}
	finalizeRequest struct {
		backend
		Name string `json:"name"`
		Size string `json:"size"`
		Hash string `json:"hash"`
	}
	finalizeResponse struct {
		OK         bool   `json:"ok"`
		ArtifactID string `json:"artifact_id"`
	}
	deleteRequest struct {
		backend
		Name string `json:"name"`
	}
	deleteResponse struct {
		OK bool `json:"ok"`
	}
	signedURLRequest struct {
		backend
		Name string `json:"name"`
	}
	signedURLResponse struct {
		SignedURL string `json:"signed_url"`
	}
)

// find returns the newest artifact called name in the run, or nil.
func (s *ResultsStore) find(ctx context.Context, ids backend, name string) (*listedArtifact, error) {
	list, err := call[listResponse](ctx, s, "ListArtifacts", listRequest{backend: ids, NameFilter: name})
	if err != nil {
		return nil, err
	}
	var found []listedArtifact
	for _, a := range list.Artifacts {
		if a.Name == name {
			found = append(found, a)
		}
	}
	if len(found) == 0 {
		return nil, nil
	}
	newest := slices.MaxFunc(found, func(a, b listedArtifact) int {
		ai, _ := strconv.ParseInt(a.DatabaseID, 10, 64)
		bi, _ := strconv.ParseInt(b.DatabaseID, 10, 64)
		return cmp.Compare(ai, bi)
	})
	return &newest, nil
}

// Upload implements [Store]. An artifact of the same name uploaded earlier in
// the run, for example by a previous attempt of the job, is replaced.
func (s *ResultsStore) Upload(ctx context.Context, name string, r io.Reader, size int64) error {
	ids, err := backendIDs(s.Token)
	if err != nil {
		return err
	}

	existing, err := s.find(ctx, ids, name)
	if err != nil {
		return err
	}
	if existing != nil {
		// The artifact belongs to the job that uploaded it, which differs
		// from this one when the job is re-attempted.
		del, err := call[deleteResponse](ctx, s, "DeleteArtifact", deleteRequest{backend: existing.backend, Name: name})
		if err != nil {
			return err
		}
		if !del.OK {
			return fmt.Errorf("artifact service refused to delete artifact %q", name)
		}
	}

	created, err := call[createResponse](ctx, s, "CreateArtifact", createRequest{backend: ids, Name: name, Version: 4})
	if err != nil {
		return err
	}
	if !created.OK || created.SignedUploadURL == "" {
		return fmt.Errorf("artifact service refused to create artifact %q", name)
	}

	h := sha256.New()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, created.SignedUploadURL, io.TeeReader(r, h))
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/zip")
	req.Header.Set("x-ms-blob-type", "BlockBlob")
	res, err := s.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("uploading artifact %q: %w", name, err)
	}
	b, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode/100 != 2 {
		return fmt.Errorf("uploading artifact %q: wanted 2xx, got %d: %s", name, res.StatusCode, b)
	}

	finalized, err := call[finalizeResponse](ctx, s, "FinalizeArtifact", finalizeRequest{
		backend: ids,
		Name:    name,
		Size:    strconv.FormatInt(size, 10),
		Hash:    "sha256:" + hex.EncodeToString(h.Sum(nil)),
	})
	if err != nil {
		return err
	}
	if !finalized.OK {
		return fmt.Errorf("artifact service refused to finalize artifact %q", name)
	}
	return nil
}

// Download implements [Store].
func (s *ResultsStore) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	ids, err := backendIDs(s.Token)
	if err != nil {
		return nil, err
	}

	a, err := s.find(ctx, ids, name)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: no artifact %q in this workflow run", ErrNotFound, name)
	}

	signed, err := call[signedURLResponse](ctx, s, "GetSignedArtifactURL", signedURLRequest{backend: a.backend, Name: name})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signed.SignedURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := s.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading artifact %q: %w", name, err)
	}
	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(res.Body)
		res.Body.Close()
		return nil, fmt.Errorf("downloading artifact %q: wanted 200, got %d: %s", name, res.StatusCode, b)
	}
	return res.Body, nil
}
