package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	. "github.com/smartystreets/goconvey/convey"

	"chatrelay/internal/model"
	"chatrelay/internal/pkg/storage/local"
	"chatrelay/internal/pkg/userkey"
)

const testSecret = "channel-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []model.InboundEvent
	failOn string
}

func (r *recordingEvents) HandleEvent(ctx context.Context, ev model.InboundEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if ev.Message.Text == r.failOn {
		return errors.New("boom")
	}
	return nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func messageEvent(userID, replyToken, text string) string {
	return `{"type":"message","mode":"active","timestamp":1700000000000,"webhookEventId":"` + replyToken +
		`","deliveryContext":{"isRedelivery":false},"source":{"type":"user","userId":"` + userID +
		`"},"replyToken":"` + replyToken + `","message":{"type":"text","id":"` + replyToken +
		`","quoteToken":"q","text":"` + text + `"}}`
}

func signedRequest(body string) *http.Request {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	return req
}

func TestWebhookHandler_Callback(t *testing.T) {
	Convey("POST /webhook", t, func() {
		events := &recordingEvents{failOn: "bad"}
		r := gin.New()
		r.POST("/webhook", NewWebhookHandler(testSecret, events, 4).Callback)

		Convey("每条事件独立处理，失败不影响其它事件", func() {
			body := `{"destination":"Ubot","events":[` +
				messageEvent("U1", "rt1", "Hello") + `,` +
				messageEvent("U2", "rt2", "bad") + `,` +
				messageEvent("U3", "rt3", "Hi") + `]}`
			w := httptest.NewRecorder()
			r.ServeHTTP(w, signedRequest(body))

			So(w.Code, ShouldEqual, http.StatusOK)
			var resp model.WebhookResponse
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Code, ShouldEqual, 0)
			So(resp.Events, ShouldEqual, 3)
			So(resp.Failed, ShouldEqual, 1)
			So(len(events.events), ShouldEqual, 3)
		})

		Convey("没有事件的验证请求返回 200", func() {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, signedRequest(`{"destination":"Ubot","events":[]}`))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(events.events, ShouldBeEmpty)
		})

		Convey("签名错误返回 400 且不处理事件", func() {
			req := signedRequest(`{"destination":"Ubot","events":[` + messageEvent("U1", "rt1", "Hello") + `]}`)
			req.Header.Set("X-Line-Signature", "invalid")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(events.events, ShouldBeEmpty)
		})
	})
}

func TestImageHandler_Get(t *testing.T) {
	Convey("GET /uploads/:hash/:file", t, func() {
		store, err := local.NewLocalStorage(t.TempDir(), "https://bot.example.com")
		So(err, ShouldBeNil)
		key := userkey.Derive("U1").String()
		url, err := store.Upload(context.Background(), "uploads/"+key+"/1700000000000.jpg", strings.NewReader("jpeg-bytes"), "image/jpeg")
		So(err, ShouldBeNil)
		So(url, ShouldEqual, "https://bot.example.com/uploads/"+key+"/1700000000000.jpg")

		r := gin.New()
		h := NewImageHandler(store)
		r.GET("/uploads/:hash/:file", h.Get)
		r.GET("/images/:hash/:file", h.Get)

		get := func(path string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			return w
		}

		Convey("存在的图片", func() {
			w := get("/uploads/" + key + "/1700000000000.jpg")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "image/jpeg")
			So(w.Body.String(), ShouldEqual, "jpeg-bytes")
		})

		Convey("兼容 /images 路径", func() {
			So(get("/images/"+key+"/1700000000000.jpg").Code, ShouldEqual, http.StatusOK)
		})

		Convey("只读取 uploads 前缀下的对象", func() {
			_, err := store.Upload(context.Background(), key+"/1700000000001.jpg", strings.NewReader("x"), "image/jpeg")
			So(err, ShouldBeNil)
			So(get("/uploads/"+key+"/1700000000001.jpg").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("不存在的图片返回 404", func() {
			So(get("/images/"+key+"/1.jpg").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("非法路径返回 400", func() {
			So(get("/images/not-a-key/1.jpg").Code, ShouldEqual, http.StatusBadRequest)
			So(get("/images/"+key+"/..jpg").Code, ShouldEqual, http.StatusBadRequest)
			So(get("/images/"+key+"/1.exe").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestHealthHandler(t *testing.T) {
	Convey("健康检查", t, func() {
		serve := func(h *HealthHandler, path string) int {
			r := gin.New()
			r.GET("/health", h.Health)
			r.GET("/ready", h.Ready)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			return w.Code
		}

		So(serve(NewHealthHandler(nil), "/health"), ShouldEqual, http.StatusOK)
		So(serve(NewHealthHandler(stubPinger{}), "/ready"), ShouldEqual, http.StatusOK)
		So(serve(NewHealthHandler(stubPinger{err: errors.New("down")}), "/ready"), ShouldEqual, http.StatusServiceUnavailable)
	})
}
