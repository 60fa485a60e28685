package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"chatrelay/internal/config"
)

func TestOpenAIImageGenerator(t *testing.T) {
	Convey("OpenAI 图片生成", t, func() {
		var got imageRequest
		var auth, path string
		status := http.StatusOK
		body := `{"created":1700000000,"data":[{"url":"https://img.example.com/1.png","revised_prompt":"a red cat"}]}`

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&got)
			path = r.URL.Path
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}))
		defer srv.Close()

		gen := NewOpenAIImageGenerator(srv.URL+"/v1/", "sk-test", "dall-e-3", time.Second)

		Convey("成功时返回 URL 与改写后的提示词", func() {
			img, err := gen.GenerateImage(context.Background(), "cat", "")
			So(err, ShouldBeNil)
			So(img.URL, ShouldEqual, "https://img.example.com/1.png")
			So(img.RevisedPrompt, ShouldEqual, "a red cat")
			So(img.Created.Unix(), ShouldEqual, 1700000000)
			So(got.Model, ShouldEqual, "dall-e-3")
			So(got.Size, ShouldEqual, DefaultImageSize)
			So(got.N, ShouldEqual, 1)
			So(auth, ShouldEqual, "Bearer sk-test")
			So(path, ShouldEqual, "/v1/images/generations")
		})

		Convey("上游错误原样返回类型与消息", func() {
			status = http.StatusBadRequest
			body = `{"error":{"type":"invalid_request_error","message":"content policy"}}`
			_, err := gen.GenerateImage(context.Background(), "cat", "1024x1024")
			var apiErr *APIError
			So(errors.As(err, &apiErr), ShouldBeTrue)
			So(apiErr.Kind, ShouldEqual, "invalid_request_error")
			So(apiErr.Message, ShouldEqual, "content policy")
			So(apiErr.Error(), ShouldEqual, "[invalid_request_error]content policy")
		})
	})
}

func TestNewImageGenerator(t *testing.T) {
	Convey("NewImageGenerator 按 provider 创建", t, func() {
		aiCfg := &config.AIConfig{APIKey: "sk"}

		g, err := NewImageGenerator(&config.ImageConfig{Provider: "openai", Model: "dall-e-3"}, aiCfg)
		So(err, ShouldBeNil)
		So(g, ShouldHaveSameTypeAs, &OpenAIImageGenerator{})

		g, err = NewImageGenerator(&config.ImageConfig{Provider: "ark", Model: "seedream"}, aiCfg)
		So(err, ShouldBeNil)
		So(g, ShouldHaveSameTypeAs, &ArkImageGenerator{})

		_, err = NewImageGenerator(&config.ImageConfig{Provider: "midjourney"}, aiCfg)
		So(err, ShouldNotBeNil)
	})
}
