package storage_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/anidb/storage"
)

var _ = Describe("storage / InmemoryStore", func() {
	var (
		ctx   context.Context
		store *storage.InmemoryStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = storage.NewInmemoryStore()
	})

	AfterEach(func() {
		store.Close()
	})

	Describe("Close()", func() {
		It("does not panic when closed twice", func() {
			Expect(func() { store.Close() }).NotTo(Panic())
			Expect(func() { store.Close() }).NotTo(Panic())
		})

		It("refuses writes afterwards", func() {
			store.Close()
			Expect(store.Set(ctx, "foo", "bar")).To(MatchError(storage.ErrClosed))
		})
	})

	It("an empty inmemory store equals {}", func() {
		value, err := store.Backup()
		Expect(err).To(Succeed())
		Expect(string(value)).To(Equal(`{}`))
	})

	Describe("Set() / Get()", func() {
		It("can read a key that is written", func() {
			Expect(store.Set(ctx, "foo", "bar")).To(Succeed())

			Expect(store.Get(ctx, "foo")).To(Equal([]byte(`"bar"`)))

			value, err := store.Backup()
			Expect(err).To(Succeed())
			Expect(string(value)).To(Equal(`{"foo":"bar"}`))
		})

		It("stores files under their identity", func() {
			key := storage.FileKey(734466328, "ACDD7C8D3E6B3B6CD5D9DCB2D1D3A2C1")
			Expect(key).To(Equal("files.acdd7c8d3e6b3b6cd5d9dcb2d1d3a2c1_734466328"))

			Expect(store.Set(ctx, key, map[string]interface{}{"fid": 312498})).To(Succeed())
			Expect(store.Get(ctx, key)).To(MatchJSON(`{"fid":312498}`))
		})

		It("reports missing keys", func() {
			_, err := store.Get(ctx, "nope")
			Expect(err).To(MatchError(storage.ErrNotFound))
		})

		It("forgets deleted keys", func() {
			Expect(store.Set(ctx, "foo", 1)).To(Succeed())
			Expect(store.Delete(ctx, "foo")).To(Succeed())

			_, err := store.Get(ctx, "foo")
			Expect(err).To(MatchError(storage.ErrNotFound))
		})
	})

	Describe("Restore()", func() {
		It("replaces the document", func() {
			Expect(store.Restore([]byte(`{"files":{"a_1":{"fid":1}}}`))).To(Succeed())
			Expect(store.Get(ctx, "files.a_1.fid")).To(Equal([]byte(`1`)))
		})

		It("rejects anything but a JSON object", func() {
			Expect(store.Restore([]byte(`[1,2]`))).To(MatchError(storage.ErrInvalidDocument))
			Expect(store.Restore([]byte(`{"open":`))).To(MatchError(storage.ErrInvalidDocument))
		})
	})

	Describe("LoadFile() / SaveFile()", func() {
		var dir, path string

		BeforeEach(func() {
			var err error
			dir, err = os.MkdirTemp("", "anidb-cache")
			Expect(err).To(Succeed())

			path = filepath.Join(dir, "cache.json")
		})

		AfterEach(func() {
			os.RemoveAll(dir)
		})

		It("treats a missing file as an empty cache", func() {
			Expect(storage.LoadFile(store, path)).To(Succeed())
			Expect(store.Backup()).To(Equal([]byte(`{}`)))
		})

		It("round trips through disk", func() {
			Expect(store.Set(ctx, "files.a_1", map[string]interface{}{"fid": 1})).To(Succeed())
			Expect(storage.SaveFile(store, path)).To(Succeed())

			restored := storage.NewInmemoryStore()
			defer restored.Close()

			Expect(storage.LoadFile(restored, path)).To(Succeed())
			Expect(restored.Get(ctx, "files.a_1")).To(MatchJSON(`{"fid":1}`))
		})
	})
})
