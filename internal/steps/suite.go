package steps

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"sync"

	"github.com/cucumber/godog"
)

// Features holds the bundled users feature under features/.
//
//go:embed features
var Features embed.FS

// Step phrases bound to Scenario methods.
const (
	PhraseUsersEndpoint  = "The url address of the API endpoint is accessed to obtain the list of users"
	PhraseRequestUsers   = "The URL of the list of users is passed in the request"
	PhraseResponseMatch  = "The actual JSON response matches the expected Json response"
	PhraseConformsToSpec = "The response conforms to the users API contract"

	// StepResponseCode captures the expected status code.
	StepResponseCode = `^The response code (\d+) is received$`
)

const (
	suiteName     = "users"
	defaultFormat = "pretty"
)

// ErrNoScenarios is returned when the selected features and tags leave nothing to run.
var ErrNoScenarios = errors.New("no scenarios selected")

type scenarioKey struct{}

// ScenarioFrom returns the Scenario bound to ctx by a running Suite.
func ScenarioFrom(ctx context.Context) (*Scenario, bool) {
	sc, ok := ctx.Value(scenarioKey{}).(*Scenario)
	return sc, ok && sc != nil
}

// SuiteOption customises a Suite.
type SuiteOption func(*Suite)

// WithFeatures runs the features found at paths inside fsys. A nil fsys reads from disk.
func WithFeatures(fsys fs.FS, paths ...string) SuiteOption {
	return func(s *Suite) {
		s.fsys = fsys
		s.paths = paths
		s.contents = nil
	}
}

// WithFeatureContents runs in-memory feature sources instead of files.
func WithFeatureContents(features ...godog.Feature) SuiteOption {
	return func(s *Suite) {
		s.contents = features
		s.paths = nil
	}
}

// WithTags filters scenarios with a godog tag expression such as "~@contract".
func WithTags(tags string) SuiteOption {
	return func(s *Suite) {
		s.tags = tags
	}
}

// WithFormat selects the godog formatter.
func WithFormat(format string) SuiteOption {
	return func(s *Suite) {
		if format != "" {
			s.format = format
		}
	}
}

// WithOutput redirects formatter output.
func WithOutput(w io.Writer) SuiteOption {
	return func(s *Suite) {
		if w != nil {
			s.output = w
		}
	}
}

// WithSteps binds extra step definitions next to the users steps.
func WithSteps(fn func(*godog.ScenarioContext)) SuiteOption {
	return func(s *Suite) {
		if fn != nil {
			s.extra = append(s.extra, fn)
		}
	}
}

// Suite runs Gherkin features against fresh Scenario values.
type Suite struct {
	newScenario func() *Scenario

	fsys     fs.FS
	paths    []string
	contents []godog.Feature
	tags     string
	format   string
	output   io.Writer
	extra    []func(*godog.ScenarioContext)
}

// NewSuite prepares a suite over the bundled feature. newScenario is called
// once per Gherkin scenario.
func NewSuite(newScenario func() *Scenario, opts ...SuiteOption) *Suite {
	s := &Suite{
		newScenario: newScenario,
		fsys:        Features,
		paths:       []string{"features"},
		format:      defaultFormat,
		output:      os.Stdout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Run executes the selected scenarios, stopping at the first failing step.
// The returned error is the first StepError recorded.
func (s *Suite) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rec := &recorder{}
	suite := godog.TestSuite{
		Name: suiteName,
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			s.initialize(sc, rec)
		},
		Options: &godog.Options{
			Format:          s.format,
			Output:          s.output,
			Paths:           s.paths,
			FS:              s.fsys,
			FeatureContents: s.contents,
			Tags:            s.tags,
			Strict:          true,
			StopOnFailure:   true,
			NoColors:        true,
			Concurrency:     1,
			DefaultContext:  ctx,
		},
	}

	status := suite.Run()
	if err := rec.failure(); err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("feature run failed with status %d", status)
	}
	if rec.scenarios() == 0 {
		return ErrNoScenarios
	}
	return nil
}

func (s *Suite) initialize(sc *godog.ScenarioContext, rec *recorder) {
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		rec.begin()
		if s.newScenario == nil {
			return ctx, errors.New("no scenario factory configured")
		}
		return context.WithValue(ctx, scenarioKey{}, s.newScenario()), nil
	})

	sc.StepContext().After(func(ctx context.Context, st *godog.Step, status godog.StepResultStatus, err error) (context.Context, error) {
		current, _ := ScenarioFrom(ctx)
		switch status {
		case godog.StepPassed:
			if current != nil {
				current.logger.Infow("step passed", "step", st.Text)
			}
		case godog.StepUndefined:
			rec.fail(&StepError{Phrase: st.Text, Err: ErrUndefinedStep})
		case godog.StepFailed:
			if current != nil {
				current.logger.Errorw("step failed", "step", st.Text, "error", err)
			}
			rec.fail(&StepError{Phrase: st.Text, Err: err})
		}
		return ctx, nil
	})

	BindSteps(sc)
	for _, fn := range s.extra {
		fn(sc)
	}
}

// BindSteps registers the users listing steps on sc. Each step reads its
// Scenario from the step context.
func BindSteps(sc *godog.ScenarioContext) {
	sc.Step(exactly(PhraseUsersEndpoint), func(ctx context.Context) error {
		return withScenario(ctx, func(s *Scenario) error { return s.GivenUsersEndpoint() })
	})
	sc.Step(exactly(PhraseRequestUsers), func(ctx context.Context) error {
		return withScenario(ctx, func(s *Scenario) error { return s.WhenUsersRequested(ctx) })
	})
	sc.Step(StepResponseCode, func(ctx context.Context, code int) error {
		return withScenario(ctx, func(s *Scenario) error { return s.ThenStatusIs(code) })
	})
	sc.Step(exactly(PhraseResponseMatch), func(ctx context.Context) error {
		return withScenario(ctx, func(s *Scenario) error { return s.ThenResponseMatches() })
	})
	sc.Step(exactly(PhraseConformsToSpec), func(ctx context.Context) error {
		return withScenario(ctx, func(s *Scenario) error { return s.ThenConformsToContract(ctx) })
	})
}

func withScenario(ctx context.Context, fn func(*Scenario) error) error {
	sc, ok := ScenarioFrom(ctx)
	if !ok {
		return errors.New("no scenario bound to step context")
	}
	return fn(sc)
}

func exactly(phrase string) string {
	return "^" + regexp.QuoteMeta(phrase) + "$"
}

// recorder keeps the first step failure of a run.
type recorder struct {
	mu    sync.Mutex
	first error
	runs  int
}

func (r *recorder) begin() {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
}

func (r *recorder) fail(err error) {
	r.mu.Lock()
	if r.first == nil {
		r.first = err
	}
	r.mu.Unlock()
}

func (r *recorder) failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.first
}

func (r *recorder) scenarios() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}
