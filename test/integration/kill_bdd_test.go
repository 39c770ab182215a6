//go:build integration

package integration

import (
	"context"
	"os"
	"os/exec"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/appkiller/internal/domain"
	"github.com/eliteGoblin/appkiller/internal/infra"
	"github.com/eliteGoblin/appkiller/internal/usecase"
	"github.com/eliteGoblin/appkiller/test/fixtures"
)

const fixturePackage = "akfixture"

var _ = Describe("Kill action", func() {
	var (
		tmpDir  string
		apps    *fixtures.FakeAppsDir
		running *exec.Cmd
		exited  chan error
		lister  *usecase.Lister
		killer  *usecase.Killer
		killLog *infra.PrefsKillLog
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "appkiller-integration-*")
		Expect(err).NotTo(HaveOccurred())

		apps = fixtures.NewFakeAppsDir(tmpDir)
		Expect(apps.Create(
			fixtures.FakeApp{Package: fixturePackage, Name: "Fixture App", Icon: "fixture"},
			fixtures.FakeApp{Package: "akidle", Name: "Idle App"},
			fixtures.FakeApp{Package: "akhidden", Name: "Hidden App", Hidden: true},
		)).To(Succeed())

		running, err = apps.StartApp(fixturePackage)
		if err != nil {
			Skip("cannot start fixture app: " + err.Error())
		}
		exited = make(chan error, 1)
		go func() { exited <- running.Wait() }()

		logger := zap.NewNop()
		source := infra.NewProcessSource()
		// Force the usage-stats tier so a freshly started, sleeping process counts as live.
		detector := usecase.NewDetector(
			usecase.DetectorConfig{Window: time.Minute, MinProcessPackages: 1 << 20},
			infra.NewHostProcessTable(source),
			infra.NewHostUsageStats(source),
			infra.NewHostCapabilities(source),
			nil,
			logger,
		)

		prefs, err := infra.NewFilePreferences(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		lister = usecase.NewLister(
			infra.NewDesktopCatalogWithDirs([]string{apps.ApplicationsDir()}, logger),
			detector,
			logger,
		)
		killLog = infra.NewPrefsKillLog(infra.DefaultKillLogConfig(), prefs, logger)
		terminator := usecase.NewTerminator("appkiller", []domain.TerminationStrategy{
			infra.NewBackgroundStrategy(source),
			infra.NewNameMatchStrategy(source),
		}, nil, logger)
		killer = usecase.NewKiller("appkiller", lister, infra.NewPrefsModeStore(prefs, logger),
			killLog, terminator, nil, nil, logger)
	})

	AfterEach(func() {
		if running != nil && running.Process != nil {
			_ = running.Process.Kill()
			Eventually(exited, 5*time.Second).Should(Receive())
		}
		os.RemoveAll(tmpDir)
	})

	Describe("listing", func() {
		It("should list visible apps sorted by name and flag the running one", func() {
			Eventually(func() bool {
				records, err := lister.List(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(2))
				Expect(records[0].DisplayName).To(Equal("Fixture App"))
				Expect(records[1].DisplayName).To(Equal("Idle App"))
				Expect(records[1].IsLive).To(BeFalse())
				return records[0].IsLive
			}, 5*time.Second, 100*time.Millisecond).Should(BeTrue())
		})
	})

	Describe("auto mode", func() {
		It("should record the kill and stop the process", func() {
			outcome, err := killer.KillWithMode(context.Background(), fixturePackage, domain.KillModeAuto)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.AppName).To(Equal("Fixture App"))
			Expect(outcome.Logged).To(BeTrue())
			Expect(outcome.Requested).To(BeTrue())

			Eventually(exited, 5*time.Second).Should(Receive())
			running = nil

			entries := killLog.List()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].AppName).To(Equal("Fixture App"))
			Expect(entries[0].Mode).To(Equal(domain.KillModeAuto))
		})
	})

	Describe("manual mode without a settings opener", func() {
		It("should record the kill but leave the process running", func() {
			outcome, err := killer.Kill(context.Background(), fixturePackage)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Mode).To(Equal(domain.KillModeManual))
			Expect(outcome.Requested).To(BeFalse())
			Expect(killLog.List()).To(HaveLen(1))
			Consistently(exited, 200*time.Millisecond).ShouldNot(Receive())
		})
	})

	Describe("self protection", func() {
		It("should refuse to kill appkiller and record nothing", func() {
			_, err := killer.KillWithMode(context.Background(), "appkiller", domain.KillModeAuto)
			Expect(err).To(MatchError(domain.ErrSelfTarget))
			Expect(killLog.List()).To(BeEmpty())
		})
	})
})
