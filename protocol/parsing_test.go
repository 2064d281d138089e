package protocol_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/anidb/protocol"
)

var _ = Describe("Parsing", func() {
	Describe("Decode()", func() {
		It("splits the code from the text", func() {
			reply, err := protocol.Decode([]byte("300 PONG\n"))
			Expect(err).To(Succeed())
			Expect(reply.Code).To(Equal(protocol.StatusPong))
			Expect(reply.Text).To(Equal("PONG"))
		})

		It("keeps multi-line text", func() {
			reply, err := protocol.Decode([]byte("998 VERSION\n0.03.730 (2019-04-23)\n"))
			Expect(err).To(Succeed())
			Expect(reply.Code).To(Equal(protocol.StatusVersion))
			Expect(reply.Lines()).To(Equal([]string{"VERSION", "0.03.730 (2019-04-23)"}))
			Expect(reply.Line(1)).To(Equal("0.03.730 (2019-04-23)"))
			Expect(reply.Line(2)).To(Equal(""))
			Expect(reply.Payload()).To(Equal("0.03.730 (2019-04-23)"))
		})

		It("returns an error if there is no space", func() {
			_, err := protocol.Decode([]byte("300"))
			Expect(errors.Is(err, protocol.ErrMalformedReply)).To(BeTrue())
		})

		It("returns an error if the code is not an integer", func() {
			_, err := protocol.Decode([]byte("PONG 300"))
			Expect(errors.Is(err, protocol.ErrMalformedReply)).To(BeTrue())

			_, err = protocol.Decode([]byte("-30 PONG"))
			Expect(errors.Is(err, protocol.ErrMalformedReply)).To(BeTrue())
		})

		It("returns an error for an empty datagram", func() {
			_, err := protocol.Decode([]byte{})
			Expect(errors.Is(err, protocol.ErrMalformedReply)).To(BeTrue())
		})
	})

	Describe("DecodeFields()", func() {
		It("zips the payload line against the keys", func() {
			reply, err := protocol.Decode([]byte("220 1\n12345|ed2k123|700000000|mkv"))
			Expect(err).To(Succeed())

			fields := protocol.DecodeFields(reply.Text, 1, []string{"fid", "ed2k", "size", "fext"}, "|")
			Expect(fields).To(Equal(map[string]string{
				"fid":  "12345",
				"ed2k": "ed2k123",
				"size": "700000000",
				"fext": "mkv",
			}))
		})

		It("truncates to the shorter of keys and fields", func() {
			fields := protocol.DecodeFields("FILE\n1|2|3", 1, []string{"a", "b"}, "")
			Expect(fields).To(Equal(map[string]string{"a": "1", "b": "2"}))

			fields = protocol.DecodeFields("FILE\n1", 1, []string{"a", "b"}, "|")
			Expect(fields).To(Equal(map[string]string{"a": "1"}))
		})

		It("returns an empty map when the line does not exist", func() {
			Expect(protocol.DecodeFields("FILE", 1, []string{"a"}, "|")).To(BeEmpty())
		})
	})

	Describe("ParseRequest()", func() {
		It("parses a bare verb", func() {
			req, err := protocol.ParseRequest([]byte("PING"))
			Expect(err).To(Succeed())
			Expect(req.Verb).To(Equal(protocol.PING))
			Expect(req.Params).To(BeEmpty())
		})

		It("lifts the session out of the parameters", func() {
			req, err := protocol.ParseRequest([]byte("LOGOUT s=abc\n"))
			Expect(err).To(Succeed())
			Expect(req.Verb).To(Equal(protocol.LOGOUT))
			Expect(req.Session).To(Equal("abc"))
			Expect(req.Params).To(BeEmpty())
		})

		It("returns an error for an empty request", func() {
			_, err := protocol.ParseRequest([]byte("\n"))
			Expect(err).To(MatchError(protocol.ErrRequestEmpty))
		})

		It("returns an error when a parameter has no '='", func() {
			_, err := protocol.ParseRequest([]byte("AUTH user"))
			Expect(errors.Is(err, protocol.ErrRequestMalformedParam)).To(BeTrue())
		})

		It("round trips Encode for any valid parameter set", func() {
			sets := []map[string]string{
				{"user": "bob", "pass": "x", "protover": "3"},
				{"ed2k": "abc", "size": "700000000", "fmask": "00c0010000", "amask": "c020c040"},
				{"title": "a&b", "note": "first\nsecond", "eq": "k=v"},
				{},
			}

			for _, set := range sets {
				var params protocol.Params
				for k, v := range set {
					params = params.With(k, v)
				}

				req, err := protocol.ParseRequest(protocol.EncodeRequest(protocol.FILE, params, "sess"))
				Expect(err).To(Succeed())
				Expect(req.Verb).To(Equal(protocol.FILE))
				Expect(req.Session).To(Equal("sess"))
				Expect(req.Params.Map()).To(Equal(set))
			}
		})
	})

	Describe("RemoveTrailingNewline()", func() {
		It("does nothing if the data does not end in a newline", func() {
			data := []byte("I am awesome data")
			Expect(protocol.RemoveTrailingNewline(data)).To(Equal(data))
		})

		It("removes trailing CR and LF", func() {
			Expect(protocol.RemoveTrailingNewline([]byte("data\r\n"))).To(Equal([]byte("data")))
		})
	})

	Describe("Status.In()", func() {
		It("matches any of the listed codes", func() {
			Expect(protocol.StatusLoggedOut.In(protocol.StatusLoggedOut, protocol.StatusNotLoggedIn)).To(BeTrue())
			Expect(protocol.StatusPong.In(protocol.StatusLoggedOut)).To(BeFalse())
		})
	})
})
