// Package fixture loads the expected users listing and decodes payloads into
// both the typed model and a generic JSON tree.
package fixture

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/jsontree"
	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/users"
	pkglog "github.com/marutisridharjob/cucumber-rest-api-testing/pkg/log"
)

// UsersPage2 is the pinned ReqRes response for GET /api/users?page=2.
//
//go:embed users_page2.json
var UsersPage2 []byte

// Expected holds the two representations of the expected payload.
type Expected struct {
	Response users.PagedResponse
	Tree     any
	Raw      []byte
}

// ParseError reports a payload that could not be decoded.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Decode turns raw JSON into the typed page and the generic tree. source names
// the payload in errors.
func Decode(source string, raw []byte) (users.PagedResponse, any, error) {
	var resp users.PagedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return users.PagedResponse{}, nil, &ParseError{Source: source, Err: err}
	}
	tree, err := jsontree.Parse(raw)
	if err != nil {
		return users.PagedResponse{}, nil, &ParseError{Source: source, Err: err}
	}
	return resp, tree, nil
}

// Load decodes the pinned payload and logs every field.
func Load(logger *zap.SugaredLogger) (Expected, error) {
	return Parse("embedded fixture", UsersPage2, logger)
}

// LoadFile decodes the payload stored at path and logs every field.
func LoadFile(path string, logger *zap.SugaredLogger) (Expected, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Expected{}, fmt.Errorf("read fixture %s: %w", path, err)
	}
	return Parse(path, raw, logger)
}

// Parse decodes raw as the expected payload. The result must satisfy the page invariants.
func Parse(source string, raw []byte, logger *zap.SugaredLogger) (Expected, error) {
	resp, tree, err := Decode(source, raw)
	if err != nil {
		return Expected{}, err
	}
	if err := resp.Validate(); err != nil {
		return Expected{}, fmt.Errorf("fixture %s: %w", source, err)
	}

	users.LogFields(pkglog.Or(logger).With("source", source), resp)

	return Expected{Response: resp, Tree: tree, Raw: append([]byte(nil), raw...)}, nil
}
