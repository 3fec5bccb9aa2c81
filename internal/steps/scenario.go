// Package steps binds the Given/When/Then phrases of the users listing
// scenario to Go functions. Each scenario owns its state through a Scenario
// value; nothing is shared between scenarios.
package steps

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/apiclient"
	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/contract"
	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/fixture"
	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/jsontree"
	pkglog "github.com/marutisridharjob/cucumber-rest-api-testing/pkg/log"
)

// Target identifies the endpoint a scenario exercises.
type Target struct {
	BaseURL     string
	UsersPath   string
	FixturePath string
	IgnoreKeys  []string
}

// Scenario carries the state of one scenario run from step to step.
type Scenario struct {
	target   Target
	client   *apiclient.Client
	contract *contract.Validator
	logger   *zap.SugaredLogger

	expected *fixture.Expected
	response *apiclient.Response
}

// Option customises a Scenario.
type Option func(*Scenario)

// WithContract enables the contract step.
func WithContract(v *contract.Validator) Option {
	return func(s *Scenario) {
		s.contract = v
	}
}

// WithLogger sets the scenario logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Scenario) {
		s.logger = l
	}
}

// NewScenario prepares a fresh scenario against target.
func NewScenario(client *apiclient.Client, target Target, opts ...Option) *Scenario {
	s := &Scenario{target: target, client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = pkglog.Or(s.logger)
	if s.client == nil {
		s.client = apiclient.New(apiclient.WithLogger(s.logger))
	}
	return s
}

// Expected returns the loaded expectation, if any.
func (s *Scenario) Expected() (fixture.Expected, bool) {
	if s.expected == nil {
		return fixture.Expected{}, false
	}
	return *s.expected, true
}

// Response returns the recorded response, if any.
func (s *Scenario) Response() (apiclient.Response, bool) {
	if s.response == nil {
		return apiclient.Response{}, false
	}
	return *s.response, true
}

// GivenUsersEndpoint loads the expected payload.
func (s *Scenario) GivenUsersEndpoint() error {
	exp, err := Setup(s.logger, s.target.FixturePath)
	if err != nil {
		return err
	}
	s.expected = &exp
	return nil
}

// WhenUsersRequested performs the GET and records the response.
func (s *Scenario) WhenUsersRequested(ctx context.Context) error {
	resp, err := s.client.Get(ctx, s.target.BaseURL, s.target.UsersPath)
	if err != nil {
		return err
	}
	s.response = &resp
	return nil
}

// ThenStatusIs asserts the recorded status code.
func (s *Scenario) ThenStatusIs(expected int) error {
	if s.response == nil {
		return ErrNoResponse
	}
	return AssertStatus(s.logger, expected, s.response.StatusCode)
}

// ThenResponseMatches compares the recorded response with the expectation.
func (s *Scenario) ThenResponseMatches() error {
	if s.expected == nil {
		return ErrNoExpectation
	}
	if s.response == nil {
		return ErrNoResponse
	}
	return MatchResponse(s.logger, *s.expected, *s.response, s.target.IgnoreKeys...)
}

// ThenConformsToContract validates the recorded response against the contract.
func (s *Scenario) ThenConformsToContract(ctx context.Context) error {
	if s.response == nil {
		return ErrNoResponse
	}
	if s.contract == nil {
		return fmt.Errorf("contract validation is not configured")
	}
	return ConformsToContract(ctx, s.contract, *s.response)
}

// Setup loads the pinned payload, or the file at path when set.
func Setup(logger *zap.SugaredLogger, path string) (fixture.Expected, error) {
	if path != "" {
		return fixture.LoadFile(path, logger)
	}
	return fixture.Load(logger)
}

// MatchResponse decodes resp the same way as the fixture and compares the two.
// Keys in ignoreKeys are removed from both trees first.
func MatchResponse(logger *zap.SugaredLogger, exp fixture.Expected, resp apiclient.Response, ignoreKeys ...string) error {
	logger = pkglog.Or(logger)

	actual, actualTree, err := fixture.Decode("response", resp.Body)
	if err != nil {
		return err
	}
	logger.Infow("response content type", "contentType", resp.ContentType)

	expectedTree := exp.Tree
	if len(ignoreKeys) > 0 {
		// exp.Tree is shared with the caller; normalise a fresh copy.
		fresh, err := jsontree.Parse(exp.Raw)
		if err != nil {
			return &fixture.ParseError{Source: "expected", Err: err}
		}
		strip := jsontree.StripKeys(ignoreKeys...)
		expectedTree = jsontree.Normalize(fresh, strip)
		actualTree = jsontree.Normalize(actualTree, strip)
	}

	return Compare(logger, exp.Response, actual, expectedTree, actualTree)
}

// ConformsToContract validates resp against v.
func ConformsToContract(ctx context.Context, v *contract.Validator, resp apiclient.Response) error {
	header := resp.Header
	if header == nil && resp.ContentType != "" {
		header = http.Header{"Content-Type": []string{resp.ContentType}}
	}
	return v.ValidateResponse(ctx, resp.URL, resp.StatusCode, header, resp.Body)
}
