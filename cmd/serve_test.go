package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/luma/anidb/anidbtest"
	"github.com/luma/anidb/catalog"
	"github.com/luma/anidb/client"
	"github.com/luma/anidb/protocol"
	"github.com/luma/anidb/storage"
	"github.com/luma/anidb/transport"
)

const (
	radSize = int64(1234)
	radED2K = "0123456789abcdef0123456789abcdef"
)

var _ = Describe("API", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		fake   *anidbtest.Fake
		server *anidbtest.Server
		conn   *client.Conn
		cache  *storage.InmemoryStore
		router *gin.Engine
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)

		fake = anidbtest.NewFake().
			AddUser("ed", "ein").
			AddFile(radSize, radED2K,
				"77", "1234", radED2K, "mkv", "26", "26",
				"Cowboy Bebop", "24", "Hard Luck Woman", "Bebop")

		var err error
		server, err = anidbtest.NewServer(fake.Handle, nil)
		Expect(err).To(Succeed())

		conn = client.New(client.Options{
			Transport: transport.Options{
				Host:        server.Host(),
				Port:        server.Port(),
				MinInterval: 5 * time.Millisecond,
			},
			Timeout: 100 * time.Millisecond,
		})
		Expect(conn.Connect(ctx)).To(Succeed())
		Expect(conn.Login(ctx, "ed", "ein")).To(Succeed())

		cache = storage.NewInmemoryStore()

		gin.SetMode(gin.TestMode)
		router = setupRouter(true, zap.NewNop())
		NewAPI(conn, catalog.NewResolver(conn, cache, nil), zap.NewNop()).Routes(router)
	})

	AfterEach(func() {
		conn.Close(context.Background())
		server.Close()
		cache.Close()
		cancel()
	})

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)
		return w
	}

	It("answers /ping locally", func() {
		w := get("/ping")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(Equal("pong"))
		Expect(server.Count(protocol.PING)).To(Equal(0))
	})

	It("reports the session on /health", func() {
		w := get("/health")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(gjson.Get(w.Body.String(), "state").String()).To(Equal("authenticated"))
		Expect(gjson.Get(w.Body.String(), "banned").Bool()).To(BeFalse())
	})

	It("pings the API server", func() {
		w := get("/anidb/ping")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(server.Count(protocol.PING)).To(Equal(1))
	})

	It("looks files up", func() {
		w := get(fmt.Sprintf("/files/%d/%s", radSize, radED2K))
		Expect(w.Code).To(Equal(http.StatusOK))

		body := w.Body.String()
		Expect(gjson.Get(body, "fid").Int()).To(Equal(int64(77)))
		Expect(gjson.Get(body, "title").String()).To(Equal("Hard Luck Woman"))
		Expect(gjson.Get(body, "eid").Int()).To(Equal(int64(24)))
	})

	It("serves repeated lookups from the cache", func() {
		path := fmt.Sprintf("/files/%d/%s", radSize, radED2K)

		Expect(get(path).Code).To(Equal(http.StatusOK))
		Expect(get(path).Code).To(Equal(http.StatusOK))
		Expect(server.Count(protocol.FILE)).To(Equal(1))
	})

	It("answers 404 for unknown files", func() {
		w := get("/files/1/00000000000000000000000000000000")
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("rejects malformed identities", func() {
		Expect(get("/files/big/" + radED2K).Code).To(Equal(http.StatusBadRequest))
		Expect(get("/files/1/not-a-hash").Code).To(Equal(http.StatusBadRequest))
	})

	It("answers 503 while banned", func() {
		fake.Ban("flood")

		Expect(get("/anidb/ping").Code).To(Equal(http.StatusServiceUnavailable))

		w := get("/health")
		Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		Expect(gjson.Get(w.Body.String(), "banReason").String()).To(Equal("flood"))
	})
})

var _ = Describe("httpStatus()", func() {
	It("maps client errors", func() {
		Expect(httpStatus(fmt.Errorf("x: %w", client.ErrNotFound))).To(Equal(http.StatusNotFound))
		Expect(httpStatus(&client.BannedError{})).To(Equal(http.StatusServiceUnavailable))
		Expect(httpStatus(client.ErrSessionRejected)).To(Equal(http.StatusServiceUnavailable))
		Expect(httpStatus(client.ErrTimeout)).To(Equal(http.StatusGatewayTimeout))
		Expect(httpStatus(&client.UnexpectedStatusError{Code: 600})).To(Equal(http.StatusBadGateway))
	})
})
