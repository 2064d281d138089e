package meta_test

import (
	"runtime"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/anidb/internal/meta"
)

var _ = Describe("GetInfo()", func() {
	AfterEach(func() {
		meta.Version = ""
		meta.Build = ""
	})

	It("calls an unstamped build dev", func() {
		info := meta.GetInfo()
		Expect(info.Version).To(Equal("dev"))
		Expect(info.GoVersion).To(Equal(runtime.Version()))
	})

	It("describes a stamped build", func() {
		meta.Version = "1.2.0"
		meta.Build = "abc123"

		Expect(meta.GetInfo().String()).To(HavePrefix("anidb 1.2.0 (abc123) go"))
	})
})
