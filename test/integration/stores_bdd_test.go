//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/appkiller/internal/daemon"
	"github.com/eliteGoblin/appkiller/internal/domain"
	"github.com/eliteGoblin/appkiller/internal/infra"
	"github.com/eliteGoblin/appkiller/internal/usecase"
)

var _ = Describe("Preferences backends", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "appkiller-integration-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	backends := map[string]func() domain.Preferences{
		"file": func() domain.Preferences {
			prefs, err := infra.NewFilePreferences(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			return prefs
		},
		"encrypted": func() domain.Preferences {
			prefs, err := infra.OpenEncryptedPreferences(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			return prefs
		},
	}

	for name, open := range backends {
		Context(fmt.Sprintf("with the %s backend", name), func() {
			Describe("Kill log", func() {
				It("should keep the newest entries across reopen", func() {
					prefs := open()
					killLog := infra.NewPrefsKillLog(infra.DefaultKillLogConfig(), prefs, zap.NewNop())
					for i := 1; i <= 105; i++ {
						killLog.Record(fmt.Sprintf("App %d", i), domain.KillModeAuto)
					}
					Expect(prefs.Close()).To(Succeed())

					reopened := open()
					defer reopened.Close()
					entries := infra.NewPrefsKillLog(infra.DefaultKillLogConfig(), reopened, zap.NewNop()).List()

					Expect(entries).To(HaveLen(100))
					Expect(entries[0].AppName).To(Equal("App 105"))
					Expect(entries[99].AppName).To(Equal("App 6"))
				})
			})

			Describe("Kill mode", func() {
				It("should default to manual and persist changes", func() {
					prefs := open()
					modes := infra.NewPrefsModeStore(prefs, zap.NewNop())
					Expect(modes.KillMode()).To(Equal(domain.KillModeManual))
					Expect(modes.SetKillMode(domain.KillModeAuto)).To(Succeed())
					Expect(prefs.Close()).To(Succeed())

					reopened := open()
					defer reopened.Close()
					Expect(infra.NewPrefsModeStore(reopened, zap.NewNop()).KillMode()).To(Equal(domain.KillModeAuto))
				})
			})
		})
	}
})

var _ = Describe("Metrics trace", func() {
	var (
		tmpDir string
		trace  *infra.FileMetricsStore
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "appkiller-integration-*")
		Expect(err).NotTo(HaveOccurred())

		trace, err = infra.NewFileMetricsStore(tmpDir, infra.DefaultMaxTraceBytes, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Context("when the sampler runs against the host", func() {
		It("should append in-range samples the summary can read", func() {
			sampler := daemon.NewSampler(
				daemon.SamplerConfig{Interval: 20 * time.Millisecond},
				infra.NewHostResourceSampler(zap.NewNop()),
				trace,
				nil,
				zap.NewNop(),
			)

			ctx, cancel := context.WithCancel(context.Background())
			sampler.Start(ctx)
			Eventually(func() int { return len(trace.ReadAll()) }, 5*time.Second, 10*time.Millisecond).
				Should(BeNumerically(">=", 3))
			sampler.Stop()
			cancel()

			for _, s := range trace.ReadAll() {
				Expect(s.MemoryUsedPercent).To(BeNumerically("~", 50, 50))
				Expect(s.CPUUsedPercent).To(BeNumerically("~", 50, 50))
				Expect(s.Timestamp).To(BeNumerically(">", 0))
			}

			summary := usecase.SummarizeHistory(trace.History(time.Minute))
			Expect(summary.Memory.Count).To(BeNumerically(">=", 3))
			Expect(summary.Memory.Max).To(BeNumerically(">=", summary.Memory.Min))
		})
	})

	Context("when the trace outgrows its ceiling", func() {
		It("should stay under the ceiling after compaction", func() {
			small := infra.NewFileMetricsStoreWithPath(filepath.Join(tmpDir, "small.json"), 2048, zap.NewNop())
			for i := 0; i < 200; i++ {
				small.Append(domain.MetricSample{
					Timestamp:         time.Now().UnixMilli(),
					MemoryUsedPercent: 42.5,
					CPUUsedPercent:    12.5,
				})
			}

			info, err := os.Stat(small.Path())
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Size()).To(BeNumerically("<=", 2048))
			Expect(small.ReadAll()).NotTo(BeEmpty())
		})
	})
})
