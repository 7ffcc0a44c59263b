// Package publish 通过 NATS 广播回测摘要
//
// 消息体是 protobuf 编码的 google.protobuf.Struct，字段与 backtest.Summary 的 JSON 一致，
// 主题为 <subject>.<run name>。
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yourusername/pairs-backtest/pkg/backtest"
)

// DefaultSubject 默认主题前缀
const DefaultSubject = "pairsbt.results"

// MsgPublisher 发布原始消息（*nats.Conn 满足该接口）
type MsgPublisher interface {
	Publish(subject string, data []byte) error
}

// Publisher 实现 backtest.Publisher
type Publisher struct {
	conn    MsgPublisher
	subject string
}

// NewPublisher 创建发布器，subject 为空时使用默认前缀
func NewPublisher(conn MsgPublisher, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: conn, subject: subject}
}

// Connect 连接 NATS
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("pairsbt"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// Subject 返回某次运行的发布主题
func (p *Publisher) Subject(name string) string {
	return p.subject + "." + subjectToken(name)
}

// PublishRun 发布一次运行的摘要
func (p *Publisher) PublishRun(ctx context.Context, out *backtest.RunOutput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(out.Summary())
	if err != nil {
		return err
	}
	subject := p.Subject(out.Name)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// SummaryStruct 把摘要转换成 structpb.Struct（NaN/Inf 置 0）
func SummaryStruct(s backtest.Summary) (*structpb.Struct, error) {
	raw, err := json.Marshal(s.Sanitized())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

// StructSummary 把 structpb.Struct 还原成摘要
func StructSummary(st *structpb.Struct) (backtest.Summary, error) {
	var s backtest.Summary
	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("failed to decode summary: %w", err)
	}
	return s, nil
}

// Encode 编码摘要为 protobuf
func Encode(s backtest.Summary) ([]byte, error) {
	st, err := SummaryStruct(s)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

// Decode 解码 protobuf 消息体
func Decode(data []byte) (backtest.Summary, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return backtest.Summary{}, fmt.Errorf("failed to unmarshal: %w", err)
	}
	return StructSummary(&st)
}

// Subscribe 订阅主题（支持通配符），解码失败的消息交给 onError
func Subscribe(conn *nats.Conn, pattern string, handler func(subject string, s backtest.Summary), onError func(error)) (*nats.Subscription, error) {
	sub, err := conn.Subscribe(pattern, func(msg *nats.Msg) {
		s, err := Decode(msg.Data)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("%s: %w", msg.Subject, err))
			}
			return
		}
		handler(msg.Subject, s)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return sub, nil
}

// subjectToken 替换 NATS 主题中的保留字符
func subjectToken(name string) string {
	if name == "" {
		return "unnamed"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, name)
}
