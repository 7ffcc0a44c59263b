package server

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yourusername/pairs-backtest/pkg/backtest"
	"github.com/yourusername/pairs-backtest/pkg/publish"
)

// Client gRPC 客户端
type Client struct {
	conn *grpc.ClientConn
}

// Dial 连接服务端（明文）
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// NewClient 包装已有连接
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.conn.Close()
}

// RunRaw 发送原始 Struct 请求
func (c *Client) RunRaw(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, RunMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Run 提交配置，返回摘要
func (c *Client) Run(ctx context.Context, cfg *backtest.Config) (backtest.Summary, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return backtest.Summary{}, fmt.Errorf("failed to marshal config: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return backtest.Summary{}, err
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return backtest.Summary{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.RunRaw(ctx, req)
	if err != nil {
		return backtest.Summary{}, err
	}
	return publish.StructSummary(resp)
}
