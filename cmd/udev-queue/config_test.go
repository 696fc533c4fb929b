package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ConfigFlag", func() {
	It("should accept file, env and stdin sources", func() {
		var cf ConfigFlag
		Expect(cf.String()).To(BeEmpty())

		Expect(cf.Set("file:/etc/udev-queue.yaml")).To(Succeed())
		Expect(cf.String()).To(Equal("file:/etc/udev-queue.yaml"))

		Expect(cf.Set("env:UDEV_QUEUE_CONFIG")).To(Succeed())
		Expect(cf.String()).To(Equal("env:UDEV_QUEUE_CONFIG"))

		Expect(cf.Set("stdin")).To(Succeed())
		Expect(cf.String()).To(Equal("stdin"))
	})

	It("should reject unknown sources", func() {
		var cf ConfigFlag
		Expect(cf.Set("http://example.com/config")).To(MatchError(ContainSubstring("invalid config source")))
	})
})

var _ = Describe("Config", func() {
	It("should keep defaults for an empty document", func() {
		config, err := parseConfig(strings.NewReader(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(config).To(Equal(defaultConfig()))
	})

	It("should decode overrides", func() {
		config, err := parseConfig(strings.NewReader(`
sysfs: /host/sys
run: /host/run
settleTimeout: 30s
pollInterval: 100ms
healthz: ":8080"
`))
		Expect(err).NotTo(HaveOccurred())
		Expect(config).To(Equal(&Config{
			Sysfs:         "/host/sys",
			Run:           "/host/run",
			SettleTimeout: 30 * time.Second,
			PollInterval:  100 * time.Millisecond,
			Healthz:       ":8080",
		}))
	})

	It("should reject unknown fields", func() {
		_, err := parseConfig(strings.NewReader("sysfsRoot: /sys\n"))
		Expect(err).To(HaveOccurred())
	})

	It("should report every invalid field", func() {
		_, err := parseConfig(strings.NewReader(`
sysfs: sys
run: run
settleTimeout: 0s
pollInterval: -1s
healthz: localhost
`))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(And(
			ContainSubstring(".sysfs"),
			ContainSubstring(".run"),
			ContainSubstring(".settleTimeout"),
			ContainSubstring(".pollInterval"),
			ContainSubstring(".healthz"),
		))
	})

	It("should load from a file", func() {
		name := filepath.Join(GinkgoT().TempDir(), "config.yaml")
		Expect(os.WriteFile(name, []byte("settleTimeout: 5s\n"), 0o644)).To(Succeed())

		var cf ConfigFlag
		Expect(cf.Set("file:" + name)).To(Succeed())
		config, err := loadConfig(cf.configSource)
		Expect(err).NotTo(HaveOccurred())
		Expect(config.SettleTimeout).To(Equal(5 * time.Second))
		Expect(config.Sysfs).To(Equal("/sys"))
	})

	It("should load from the environment", func() {
		GinkgoT().Setenv("UDEV_QUEUE_TEST_CONFIG", "pollInterval: 1s\n")

		var cf ConfigFlag
		Expect(cf.Set("env:UDEV_QUEUE_TEST_CONFIG")).To(Succeed())
		config, err := loadConfig(cf.configSource)
		Expect(err).NotTo(HaveOccurred())
		Expect(config.PollInterval).To(Equal(time.Second))
	})

	It("should fail on an unset variable", func() {
		var cf ConfigFlag
		Expect(cf.Set("env:UDEV_QUEUE_TEST_UNSET")).To(Succeed())
		_, err := loadConfig(cf.configSource)
		Expect(err).To(MatchError(ContainSubstring("is not set")))
	})

	It("should use defaults without a source", func() {
		config, err := loadConfig(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(config).To(Equal(defaultConfig()))
	})
})
