package acceptance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/cucumber/godog"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gexec"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/apiclient"
	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/config"
	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/contract"
	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/steps"
	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/stub"
	"github.com/marutisridharjob/cucumber-rest-api-testing/pkg/metrics"
)

func startStub(dataset stub.Dataset) *httptest.Server {
	srv := stub.New(config.Default().Stub, stub.WithDataset(dataset), stub.WithLogger(zap.NewNop().Sugar()))
	ts := httptest.NewServer(srv.Handler())
	DeferCleanup(ts.Close)
	return ts
}

func newScenario(baseURL string, opts ...steps.Option) *steps.Scenario {
	logger := zap.NewNop().Sugar()
	client := apiclient.New(
		apiclient.WithLogger(logger),
		apiclient.WithMetrics(metrics.NewRegistry(metrics.WithoutDefaultCollectors())),
	)
	opts = append([]steps.Option{steps.WithLogger(logger)}, opts...)
	return steps.NewScenario(client, steps.Target{
		BaseURL:   baseURL,
		UsersPath: "/api/users?page=2",
	}, opts...)
}

func runFeatures(ctx context.Context, newScenario func() *steps.Scenario, opts ...steps.SuiteOption) error {
	opts = append([]steps.SuiteOption{steps.WithTags("~@contract"), steps.WithOutput(GinkgoWriter)}, opts...)
	return steps.NewSuite(newScenario, opts...).Run(ctx)
}

var _ = Describe("Get the list of users", func() {
	var (
		ctx     context.Context
		dataset stub.Dataset
	)

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		DeferCleanup(cancel)
		dataset = stub.ReqResDataset()
	})

	Context("when the API serves the pinned second page", func() {
		It("passes every step of the scenario", func() {
			ts := startStub(dataset)
			validator, err := contract.Load(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			sc := newScenario(ts.URL, steps.WithContract(validator))

			By("Given " + steps.PhraseUsersEndpoint)
			Expect(sc.GivenUsersEndpoint()).To(Succeed())
			expected, ok := sc.Expected()
			Expect(ok).To(BeTrue())
			Expect(expected.Response.Page).To(Equal(2))
			Expect(expected.Response.IDs()).To(Equal([]int{7, 8, 9, 10, 11, 12}))

			By("When " + steps.PhraseRequestUsers)
			Expect(sc.WhenUsersRequested(ctx)).To(Succeed())

			By("Then the response code 200 is received")
			Expect(sc.ThenStatusIs(http.StatusOK)).To(Succeed())

			By("And " + steps.PhraseResponseMatch)
			Expect(sc.ThenResponseMatches()).To(Succeed())

			By("And " + steps.PhraseConformsToSpec)
			Expect(sc.ThenConformsToContract(ctx)).To(Succeed())
		})

		It("runs every scenario of the bundled feature", func() {
			ts := startStub(dataset)
			validator, err := contract.Load(ctx, "")
			Expect(err).NotTo(HaveOccurred())

			started := 0
			err = runFeatures(ctx, func() *steps.Scenario {
				started++
				return newScenario(ts.URL, steps.WithContract(validator))
			}, steps.WithTags(""))
			Expect(err).NotTo(HaveOccurred())
			Expect(started).To(Equal(2))
		})
	})

	Context("when the total count differs", func() {
		It("fails on the total field before comparing the body", func() {
			dataset.Users = append(dataset.Users, dataset.Users[0])
			dataset.Users[len(dataset.Users)-1].ID = 13
			ts := startStub(dataset)

			err := runFeatures(ctx, func() *steps.Scenario { return newScenario(ts.URL) })

			var assertErr *steps.AssertionError
			Expect(errors.As(err, &assertErr)).To(BeTrue())
			Expect(assertErr.Field).To(Equal("total"))
			Expect(assertErr.Expected).To(Equal(12))
			Expect(assertErr.Actual).To(Equal(13))
		})
	})

	Context("when a user's avatar changed", func() {
		It("reports a body mismatch with a diff", func() {
			dataset.Users[6].Avatar = "https://reqres.in/img/faces/7-other.jpg"
			ts := startStub(dataset)

			err := runFeatures(ctx, func() *steps.Scenario { return newScenario(ts.URL) })

			var assertErr *steps.AssertionError
			Expect(errors.As(err, &assertErr)).To(BeTrue())
			Expect(assertErr.Field).To(Equal("body"))
			Expect(assertErr.Diff).To(ContainSubstring("avatar"))
			Expect(assertErr.Diff).To(ContainSubstring("other"))
		})
	})

	Context("when the status code is not the expected one", func() {
		It("stops at the status step", func() {
			ts := startStub(dataset)
			feature := godog.Feature{Name: "created.feature", Contents: []byte(`Feature: Created
  Scenario: Expect a created status
    Given ` + steps.PhraseUsersEndpoint + `
    When ` + steps.PhraseRequestUsers + `
    Then The response code 201 is received
    And ` + steps.PhraseResponseMatch + `
`)}

			err := runFeatures(ctx, func() *steps.Scenario { return newScenario(ts.URL) }, steps.WithFeatureContents(feature))

			var stepErr *steps.StepError
			Expect(errors.As(err, &stepErr)).To(BeTrue())
			Expect(stepErr.Phrase).To(Equal("The response code 201 is received"))
		})
	})

	Context("when running the usercheck command", func() {
		writeConfig := func(baseURL string) string {
			cfg := config.Default()
			cfg.API.BaseURL = baseURL
			cfg.Contract.Enabled = true
			cfg.Log.Level = "warn"
			data, err := yaml.Marshal(cfg)
			Expect(err).NotTo(HaveOccurred())
			path := filepath.Join(GinkgoT().TempDir(), "usercheck.yaml")
			Expect(os.WriteFile(path, data, 0o644)).To(Succeed())
			return path
		}

		runCommand := func(configPath string, extra ...string) *gexec.Session {
			args := append([]string{"-config", configPath}, extra...)
			cmd := exec.Command(usercheckBinary, args...)
			cmd.Env = append(os.Environ(), "API_BASE_URL=", "USERCHECK_CONFIG=")
			session, err := gexec.Start(cmd, GinkgoWriter, GinkgoWriter)
			Expect(err).NotTo(HaveOccurred())
			return session
		}

		It("exits cleanly and writes metrics", func() {
			ts := startStub(dataset)
			metricsPath := filepath.Join(GinkgoT().TempDir(), "usercheck.prom")

			session := runCommand(writeConfig(ts.URL), "-metrics-out", metricsPath)
			Eventually(session, 30*time.Second).Should(gexec.Exit(0))

			data, err := os.ReadFile(metricsPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("usercheck_http_request_duration_seconds"))
		})

		It("exits non-zero when the response differs", func() {
			dataset.Users[11].LastName = "Howe"
			ts := startStub(dataset)

			session := runCommand(writeConfig(ts.URL))
			Eventually(session, 30*time.Second).Should(gexec.Exit(1))
		})
	})
})
