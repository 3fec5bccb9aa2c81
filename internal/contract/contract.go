// Package contract validates decoded responses against the OpenAPI
// description of the users API.
package contract

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

//go:embed users.openapi.yaml
var usersDocument []byte

// ErrUndocumented is returned when no schema describes the response.
var ErrUndocumented = errors.New("response not documented")

// Validator checks responses against an OpenAPI document.
type Validator struct {
	doc    *openapi3.T
	router routers.Router
}

// Load builds a Validator from path, or from the bundled users document when path is empty.
func Load(ctx context.Context, path string) (*Validator, error) {
	data := usersDocument
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read contract %s: %w", path, err)
		}
		data = raw
	}
	return FromData(ctx, data)
}

// FromData parses and validates an OpenAPI document.
func FromData(ctx context.Context, data []byte) (*Validator, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("load contract: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid contract: %w", err)
	}
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("route contract: %w", err)
	}
	return &Validator{doc: doc, router: router}, nil
}

// ValidateResponse checks a GET of target answered with status, header and
// body. Undocumented statuses and content types are violations; a target
// with no documented operation is ErrUndocumented.
func (v *Validator) ValidateResponse(ctx context.Context, target string, status int, header http.Header, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build contract request: %w", err)
	}

	route, pathParams, err := v.router.FindRoute(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrUndocumented, req.URL.Path, err)
	}

	if header == nil {
		header = http.Header{}
	}
	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: pathParams,
			Route:      route,
		},
		Status: status,
		Header: header,
		Options: &openapi3filter.Options{
			IncludeResponseStatus: true,
			MultiError:            true,
		},
	}
	input.SetBodyBytes(body)

	if err := openapi3filter.ValidateResponse(ctx, input); err != nil {
		return fmt.Errorf("response for %s violates contract: %w", target, err)
	}
	return nil
}
