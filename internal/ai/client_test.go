package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeChatModel struct {
	reply     string
	err       error
	delay     time.Duration
	lastModel string
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	if o := einomodel.GetCommonOptions(nil, opts...); o.Model != nil {
		f.lastModel = *o.Model
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestCompleter_Complete(t *testing.T) {
	ctx := context.Background()
	msgs := []*schema.Message{schema.UserMessage("Hello")}

	Convey("Complete 调用上游", t, func() {
		Convey("使用指定模型并去除首尾空白", func() {
			fake := &fakeChatModel{reply: "  Hi there\n"}
			got, err := NewCompleter(fake, time.Second).Complete(ctx, "gpt-4o", msgs)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, "Hi there")
			So(fake.lastModel, ShouldEqual, "gpt-4o")
		})

		Convey("超时返回 ErrCompletionTimeout", func() {
			fake := &fakeChatModel{reply: "late", delay: time.Second}
			_, err := NewCompleter(fake, 20*time.Millisecond).Complete(ctx, "gpt-4o", msgs)
			So(errors.Is(err, ErrCompletionTimeout), ShouldBeTrue)
		})

		Convey("上游错误归类为 APIError", func() {
			fake := &fakeChatModel{err: errors.New("error, status code: 429, status: 429 Too Many Requests, message: slow down")}
			_, err := NewCompleter(fake, time.Second).Complete(ctx, "gpt-4o", msgs)
			var apiErr *APIError
			So(errors.As(err, &apiErr), ShouldBeTrue)
			So(apiErr.Kind, ShouldEqual, "rate_limit_error")
			So(apiErr.Message, ShouldContainSubstring, "slow down")
		})

		Convey("空回复视为上游错误", func() {
			fake := &fakeChatModel{reply: "   "}
			_, err := NewCompleter(fake, time.Second).Complete(ctx, "gpt-4o", msgs)
			var apiErr *APIError
			So(errors.As(err, &apiErr), ShouldBeTrue)
			So(apiErr.Kind, ShouldEqual, "empty_response")
		})
	})
}
