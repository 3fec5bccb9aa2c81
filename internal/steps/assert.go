package steps

import (
	"go.uber.org/zap"

	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/jsontree"
	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/users"
	pkglog "github.com/marutisridharjob/cucumber-rest-api-testing/pkg/log"
)

// AssertStatus fails when the received status code differs from the expected one.
func AssertStatus(logger *zap.SugaredLogger, expected, actual int) error {
	logger = pkglog.Or(logger)
	if expected != actual {
		logger.Errorw("status code mismatch", "expected", expected, "actual", actual)
		return &AssertionError{Field: "status", Expected: expected, Actual: actual}
	}
	logger.Infow("status code matches the expected value", "expected", expected, "actual", actual)
	return nil
}

// Compare checks page, per_page and total, then the whole tree. It stops at the first mismatch.
func Compare(logger *zap.SugaredLogger, expected, actual users.PagedResponse, expectedTree, actualTree any) error {
	logger = pkglog.Or(logger)

	fields := []struct {
		name             string
		expected, actual int
	}{
		{"page", expected.Page, actual.Page},
		{"per_page", expected.PerPage, actual.PerPage},
		{"total", expected.Total, actual.Total},
	}
	for _, f := range fields {
		if err := assertField(logger, f.name, f.expected, f.actual); err != nil {
			return err
		}
	}

	if logger.Desugar().Core().Enabled(zap.DebugLevel) {
		logTree(logger, "expected json response", expectedTree)
		logTree(logger, "actual json response", actualTree)
	}

	if diff := jsontree.Diff(expectedTree, actualTree); diff != "" {
		logger.Errorw("json response mismatch", "diff", diff)
		return &AssertionError{Field: "body", Expected: expectedTree, Actual: actualTree, Diff: diff}
	}
	logger.Infow("json response matches the expected response")
	return nil
}

func assertField(logger *zap.SugaredLogger, name string, expected, actual int) error {
	logger.Infow("comparing field", "field", name, "expected", expected, "actual", actual)
	if expected != actual {
		return &AssertionError{Field: name, Expected: expected, Actual: actual}
	}
	return nil
}

func logTree(logger *zap.SugaredLogger, msg string, tree any) {
	pretty, err := jsontree.Canonical(tree)
	if err != nil {
		logger.Debugw(msg, "error", err)
		return
	}
	logger.Debugw(msg, "body", string(pretty))
}
