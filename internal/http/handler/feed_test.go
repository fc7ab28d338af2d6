package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"tidemark.app/feed/internal/http/handler"
	"tidemark.app/feed/internal/http/middleware"
	"tidemark.app/feed/internal/model"
	"tidemark.app/feed/internal/service"
)

var _ = Describe("FeedHandler", func() {
	var (
		router *gin.Engine
		feed   *mockFeedReader
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		feed = &mockFeedReader{}
		h := handler.NewFeedHandler(feed)
		g := router.Group("/containers", middleware.RequireViewer())
		g.GET("/:id/feed", h.GetFeed)
		g.GET("/:id/heatmap", h.GetHeatmap)
	})

	get := func(path, viewer string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if viewer != "" {
			req.Header.Set("X-Viewer-Id", viewer)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Describe("GetFeed", func() {
		It("returns 401 without a viewer identity", func() {
			Expect(get("/containers/42/feed", "").Code).To(Equal(http.StatusUnauthorized))
		})

		It("returns 401 on a malformed viewer identity", func() {
			Expect(get("/containers/42/feed", "bogus").Code).To(Equal(http.StatusUnauthorized))
		})

		It("returns 400 on a bad container id", func() {
			Expect(get("/containers/abc/feed", "9").Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 403 when access is denied", func() {
			feed.getFeedFn = func(_ context.Context, _, _ int64, _ string, _ int32) (*service.FeedPage, error) {
				return nil, service.ErrForbidden
			}
			Expect(get("/containers/42/feed", "9").Code).To(Equal(http.StatusForbidden))
		})

		It("returns 400 on an invalid cursor", func() {
			feed.getFeedFn = func(_ context.Context, _, _ int64, _ string, _ int32) (*service.FeedPage, error) {
				return nil, service.ErrCursorInvalid
			}
			Expect(get("/containers/42/feed?cursor=junk", "9").Code).To(Equal(http.StatusBadRequest))
		})

		It("returns the page with viewer and paging parameters passed through", func() {
			feed.getFeedFn = func(_ context.Context, viewerID, containerID int64, cursor string, limit int32) (*service.FeedPage, error) {
				Expect(viewerID).To(Equal(int64(9)))
				Expect(containerID).To(Equal(int64(42)))
				Expect(cursor).To(Equal("abc"))
				Expect(limit).To(Equal(int32(5)))
				return &service.FeedPage{
					Items: []model.Activity{{
						ID:          101,
						ActorID:     7,
						Verb:        model.VerbUploaded,
						ObjectType:  "file",
						ContainerID: containerID,
						EventCount:  3,
						Summary:     model.SummaryPayload{Title: "uploaded 3 files"},
					}},
					NextCursor: "def",
				}, nil
			}

			w := get("/containers/42/feed?cursor=abc&limit=5", "9")
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["next_cursor"]).To(Equal("def"))
			items := resp["items"].([]any)
			Expect(items).To(HaveLen(1))
			first := items[0].(map[string]any)
			Expect(first["title"]).To(Equal("uploaded 3 files"))
			Expect(first["event_count"]).To(BeNumerically("==", 3))
		})
	})

	Describe("GetHeatmap", func() {
		It("returns 400 on an unparseable date", func() {
			Expect(get("/containers/42/heatmap?from=tomorrow", "9").Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 400 when the range is inverted", func() {
			Expect(get("/containers/42/heatmap?from=2026-03-20&to=2026-03-10", "9").Code).To(Equal(http.StatusBadRequest))
		})

		It("returns the cells", func() {
			feed.heatmapFn = func(_ context.Context, _, _ int64, from, to time.Time) ([]model.DailyCount, error) {
				return []model.DailyCount{
					{Date: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), ActorID: 7, EventCount: 12},
				}, nil
			}

			w := get("/containers/42/heatmap?from=2026-03-10&to=2026-03-20", "9")
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			cells := resp["cells"].([]any)
			Expect(cells).To(HaveLen(1))
			cell := cells[0].(map[string]any)
			Expect(cell["date"]).To(Equal("2026-03-14"))
			Expect(cell["event_count"]).To(BeNumerically("==", 12))
		})
	})
})
