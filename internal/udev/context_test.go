package udev_test

import (
	"errors"
	"os"

	"github.com/spf13/afero"

	"github.com/ydb-platform/udev-queue/internal/udev"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Context", func() {
	It("should default to the host roots", func() {
		ctx, err := udev.NewContext()
		Expect(err).NotTo(HaveOccurred())
		defer ctx.Close()

		Expect(ctx.SysfsPath("kernel", "uevent_seqnum")).To(Equal("/sys/kernel/uevent_seqnum"))
		Expect(ctx.RunPath("udev", "control")).To(Equal("/run/udev/control"))
		Expect(ctx.Fs()).NotTo(BeNil())
	})

	It("should clean configured roots", func() {
		fs := afero.NewMemMapFs()
		ctx, err := udev.NewContext(udev.WithFs(fs), udev.WithSysfs("/tmp/sys/"), udev.WithRun("/tmp//run"))
		Expect(err).NotTo(HaveOccurred())

		Expect(ctx.Fs()).To(BeIdenticalTo(fs))
		Expect(ctx.SysfsPath()).To(Equal("/tmp/sys"))
		Expect(ctx.RunPath("udev")).To(Equal("/tmp/run/udev"))
		Expect(ctx.String()).To(Equal("Context[sysfs=/tmp/sys, run=/tmp/run]"))
	})

	It("should reject relative roots", func() {
		ctx, err := udev.NewContext(udev.WithSysfs("sys"), udev.WithRun("run"))
		Expect(ctx).To(BeNil())
		Expect(err).To(MatchError(ContainSubstring(`sysfs root "sys"`)))
		Expect(err).To(MatchError(ContainSubstring(`run root "run"`)))
	})

	It("should report liveness until closed", func() {
		ctx, err := udev.NewContext()
		Expect(err).NotTo(HaveOccurred())
		Expect(ctx.Alive()).To(BeTrue())

		ctx.Close()
		Expect(ctx.Alive()).To(BeFalse())

		// closing twice is harmless
		ctx.Close()
		Expect(ctx.Alive()).To(BeFalse())
	})

	It("should treat a nil context as dead", func() {
		var ctx *udev.Context
		Expect(ctx.Alive()).To(BeFalse())
	})
})

var _ = Describe("Resolver", func() {
	var ctx *udev.Context

	BeforeEach(func() {
		var err error
		ctx, err = udev.NewContext()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		ctx.Close()
	})

	It("should refuse to resolve through a closed context", func() {
		ctx.Close()
		dev, err := udev.NewResolver().FromPath(ctx, "/sys/devices/virtual/net/lo")
		Expect(dev).To(BeNil())

		var resErr *udev.ResolutionError
		Expect(errors.As(err, &resErr)).To(BeTrue())
		Expect(resErr.Syspath).To(Equal("/sys/devices/virtual/net/lo"))
		Expect(err).To(MatchError(udev.ErrResolution))
		Expect(err).To(MatchError(udev.ErrContextClosed))
	})

	It("should reject an empty syspath", func() {
		_, err := udev.NewResolver().FromPath(ctx, "")
		Expect(err).To(MatchError(udev.ErrResolution))
	})

	It("should report vanished devices as resolution errors", func() {
		_, err := udev.NewResolver().FromPath(ctx, "/sys/devices/udev-queue-test/does-not-exist")
		Expect(err).To(MatchError(udev.ErrResolution))
		Expect(err).To(MatchError(udev.ErrNoDevice))
	})

	It("should adapt plain functions", func() {
		called := ""
		resolver := udev.ResolverFunc(func(_ *udev.Context, syspath string) (udev.Device, error) {
			called = syspath
			return nil, nil
		})
		_, err := resolver.FromPath(ctx, "/sys/devices/foo")
		Expect(err).NotTo(HaveOccurred())
		Expect(called).To(Equal("/sys/devices/foo"))
	})
})

var _ = Describe("Device", func() {
	const loopback = "/sys/devices/virtual/net/lo"

	var dev udev.Device

	BeforeEach(func() {
		if _, err := os.Stat(loopback); err != nil {
			Skip("no loopback interface in sysfs")
		}
		ctx, err := udev.NewContext()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(ctx.Close)

		dev, err = udev.NewResolver().FromPath(ctx, loopback)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should describe the device", func() {
		Expect(dev.Id()).To(Equal(udev.Id(loopback)))
		Expect(dev.Syspath()).To(Equal(loopback))
		Expect(dev.Sysname()).To(Equal("lo"))
		Expect(dev.Subsystem()).To(Equal(udev.NetSubsystem))
		Expect(dev.DevNode()).To(BeEmpty())
		Expect(dev.DevLinks()).To(BeEmpty())
		Expect(dev.Tags()).NotTo(BeNil())
		Expect(dev.Debug()).To(ContainSubstring("Subsystem=net"))
	})

	It("should read properties and attributes", func() {
		Expect(dev.Properties()).To(HaveKeyWithValue("INTERFACE", "lo"))
		Expect(dev.Property("INTERFACE")).To(Equal("lo"))
		Expect(dev.PropertyLookup("INTERFACE")).To(Equal("lo"))
		Expect(dev.PropertyLookup("UDEV_QUEUE_TEST_MISSING")).To(BeEmpty())

		Expect(dev.SystemAttribute("ifindex")).To(Equal("1"))
		Expect(dev.SystemAttributeLookup("ifindex")).To(Equal("1"))
		Expect(dev.SystemAttributeLookup("udev_queue_test_missing")).To(BeEmpty())
	})
})
