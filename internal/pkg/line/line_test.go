package line

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	. "github.com/smartystreets/goconvey/convey"

	"chatrelay/internal/config"
	"chatrelay/internal/model"
)

const testSecret = "channel-secret"

const testBody = `{"destination":"Ubot","events":[
{"type":"message","mode":"active","timestamp":1700000000000,"webhookEventId":"e1","deliveryContext":{"isRedelivery":false},
 "source":{"type":"user","userId":"U1"},"replyToken":"rt1","message":{"type":"text","id":"m1","quoteToken":"q1","text":"Hello"}},
{"type":"message","mode":"active","timestamp":1700000000001,"webhookEventId":"e2","deliveryContext":{"isRedelivery":false},
 "source":{"type":"user","userId":"U2"},"replyToken":"rt2","message":{"type":"image","id":"m2","quoteToken":"q2","contentProvider":{"type":"line"}}},
{"type":"follow","mode":"active","timestamp":1700000000002,"webhookEventId":"e3","deliveryContext":{"isRedelivery":false},
 "source":{"type":"user","userId":"U3"},"replyToken":"rt3","follow":{"isUnblocked":false}}
]}`

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newWebhookRequest(body, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	req.Header.Set("X-Line-Signature", signature)
	return req
}

func TestParseEvents(t *testing.T) {
	Convey("ParseEvents 解析 webhook 请求", t, func() {
		Convey("签名正确时转换消息事件并忽略其它事件", func() {
			events, err := ParseEvents(testSecret, newWebhookRequest(testBody, sign(testSecret, []byte(testBody))))
			So(err, ShouldBeNil)
			So(len(events), ShouldEqual, 2)

			So(events[0].UserID, ShouldEqual, "U1")
			So(events[0].ReplyToken, ShouldEqual, "rt1")
			So(events[0].Message.Kind, ShouldEqual, model.MessageKindText)
			So(events[0].Message.Text, ShouldEqual, "Hello")

			So(events[1].UserID, ShouldEqual, "U2")
			So(events[1].Message.Kind, ShouldEqual, model.MessageKindImage)
			So(events[1].Message.MediaID, ShouldEqual, "m2")
		})

		Convey("签名错误时返回 ErrInvalidSignature", func() {
			_, err := ParseEvents(testSecret, newWebhookRequest(testBody, sign("other", []byte(testBody))))
			So(errors.Is(err, ErrInvalidSignature), ShouldBeTrue)
		})
	})
}

func TestToLineMessage(t *testing.T) {
	Convey("ToLineMessage 转换出站消息", t, func() {
		qr := BuildQuickReply("https://example.com/icon.png", []config.QuickReplyEntry{
			{Label: "新話題", Text: "!新話題"},
			{Label: "help", Text: "!help"},
		})
		So(len(qr.Items), ShouldEqual, 2)
		So(qr.Items[0].ImageUrl, ShouldEqual, "https://example.com/icon.png")
		action, ok := qr.Items[0].Action.(*messaging_api.MessageAction)
		So(ok, ShouldBeTrue)
		So(action.Text, ShouldEqual, "!新話題")

		text, ok := ToLineMessage(model.Text("Hi there"), qr).(messaging_api.TextMessage)
		So(ok, ShouldBeTrue)
		So(text.Text, ShouldEqual, "Hi there")
		So(text.QuickReply, ShouldEqual, qr)

		img, ok := ToLineMessage(model.Image("https://img.example.com/1.png"), nil).(messaging_api.ImageMessage)
		So(ok, ShouldBeTrue)
		So(img.OriginalContentUrl, ShouldEqual, "https://img.example.com/1.png")
		So(img.PreviewImageUrl, ShouldEqual, "https://img.example.com/1.png")
		So(img.QuickReply, ShouldBeNil)

		So(BuildQuickReply("icon", nil), ShouldBeNil)
	})
}
