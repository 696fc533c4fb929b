package mux_test

import (
	"github.com/ydb-platform/udev-queue/internal/mux"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Any", func() {
	It("should accept everything", func() {
		anything := mux.Any[string]()
		Expect(anything("")).To(BeTrue())
		Expect(anything("udev")).To(BeTrue())
	})
})

var _ = Describe("Not", func() {
	It("should invert the filter condition", func() {
		isEven := func(n int) bool {
			return n%2 == 0
		}

		isOdd := mux.Not(isEven)

		Expect(isEven(2)).To(BeTrue())
		Expect(isOdd(2)).To(BeFalse())

		Expect(isEven(3)).To(BeFalse())
		Expect(isOdd(3)).To(BeTrue())
	})
})

var _ = Describe("Or", func() {
	It("should return true if any filter returns true", func() {
		isEven := func(n int) bool { return n%2 == 0 }
		isDivisibleBy3 := func(n int) bool { return n%3 == 0 }

		combined := mux.Or(isEven, isDivisibleBy3)

		Expect(combined(1)).To(BeFalse())
		Expect(combined(2)).To(BeTrue()) // Even
		Expect(combined(3)).To(BeTrue()) // Divisible by 3
		Expect(combined(4)).To(BeTrue()) // Even
		Expect(combined(5)).To(BeFalse())
		Expect(combined(6)).To(BeTrue()) // Both even and divisible by 3
	})

	It("should return false when no filters provided", func() {
		combined := mux.Or[int]()
		Expect(combined(42)).To(BeFalse())
	})
})

var _ = Describe("And", func() {
	It("should return true only if all filters return true", func() {
		isEven := func(n int) bool { return n%2 == 0 }
		isDivisibleBy3 := func(n int) bool { return n%3 == 0 }

		combined := mux.And(isEven, isDivisibleBy3)

		Expect(combined(1)).To(BeFalse())
		Expect(combined(2)).To(BeFalse()) // Only even
		Expect(combined(3)).To(BeFalse()) // Only divisible by 3
		Expect(combined(6)).To(BeTrue())  // Both even and divisible by 3
		Expect(combined(12)).To(BeTrue()) // Both even and divisible by 3
	})

	It("should return true when no filters provided", func() {
		combined := mux.And[int]()
		Expect(combined(42)).To(BeTrue())
	})
})

var _ = Describe("Changed", func() {
	It("should drop repeated values", func() {
		changed := mux.Changed[int]()
		var accepted []int
		for _, v := range []int{1, 1, 2, 2, 2, 1, 3, 3} {
			if changed(v) {
				accepted = append(accepted, v)
			}
		}
		Expect(accepted).To(Equal([]int{1, 2, 1, 3}))
	})

	It("should accept the zero value first", func() {
		changed := mux.Changed[int]()
		Expect(changed(0)).To(BeTrue())
		Expect(changed(0)).To(BeFalse())
	})
})
