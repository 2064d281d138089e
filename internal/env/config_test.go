package env_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/anidb/internal/env"
)

var _ = Describe("LoadConfig()", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "anidb-env")
		Expect(err).To(Succeed())

		os.Unsetenv("ANIDB_USER")
		os.Unsetenv("ANIDB_TIMEOUT")
	})

	AfterEach(func() {
		os.RemoveAll(dir)
		os.Unsetenv("ANIDB_USER")
		os.Unsetenv("ANIDB_TIMEOUT")
	})

	writeConfig := func(content string) string {
		path := filepath.Join(dir, "anidb.toml")
		ExpectWithOffset(1, os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
		return path
	}

	It("starts from the defaults", func() {
		config, err := env.LoadConfig(context.Background(), "")
		Expect(err).To(Succeed())
		Expect(*config).To(Equal(env.DefaultConfig))
	})

	It("lets the file override the defaults", func() {
		path := writeConfig(`
user = "spike"
timeout = "30s"
retries = 2
`)

		config, err := env.LoadConfig(context.Background(), path)
		Expect(err).To(Succeed())
		Expect(config.User).To(Equal("spike"))
		Expect(config.Timeout).To(Equal(30 * time.Second))
		Expect(config.Retries).To(Equal(2))
		Expect(config.Host).To(Equal(env.DefaultConfig.Host))
	})

	It("lets the environment override the file", func() {
		path := writeConfig(`
user = "spike"
timeout = "30s"
`)
		os.Setenv("ANIDB_USER", "jet")

		config, err := env.LoadConfig(context.Background(), path)
		Expect(err).To(Succeed())
		Expect(config.User).To(Equal("jet"))
		Expect(config.Timeout).To(Equal(30 * time.Second))
	})

	It("reads durations from the environment", func() {
		os.Setenv("ANIDB_TIMEOUT", "2s")

		config, err := env.LoadConfig(context.Background(), "")
		Expect(err).To(Succeed())
		Expect(config.Timeout).To(Equal(2 * time.Second))
	})

	It("fails on a broken file", func() {
		_, err := env.LoadConfig(context.Background(), writeConfig(`user = `))
		Expect(err).To(HaveOccurred())
	})

	It("hides the password when redacted", func() {
		config := env.Config{User: "spike", Pass: "swordfish"}
		Expect(config.Redacted().Pass).To(Equal("***"))
		Expect(config.Pass).To(Equal("swordfish"))
	})

	It("builds client options", func() {
		config := env.DefaultConfig
		opts := config.ClientOptions(zap.NewNop())

		Expect(opts.Transport.Host).To(Equal(config.Host))
		Expect(opts.Transport.MinInterval).To(Equal(config.MinInterval))
		Expect(opts.Timeout).To(Equal(config.Timeout))
	})
})

var _ = Describe("MakeLogger()", func() {
	It("accepts known levels", func() {
		log, err := env.MakeLogger("debug")
		Expect(err).To(Succeed())
		Expect(log.Core().Enabled(zap.DebugLevel)).To(BeTrue())
	})

	It("rejects unknown levels", func() {
		_, err := env.MakeLogger("chatty")
		Expect(err).To(HaveOccurred())
	})
})
