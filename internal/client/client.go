// Package client talks to a patchguard gRPC server.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/patchguard/internal/model"
	"github.com/ppiankov/patchguard/internal/report"
	"github.com/ppiankov/patchguard/internal/risk"
	"github.com/ppiankov/patchguard/internal/server"
)

// DefaultTimeout bounds each RPC.
const DefaultTimeout = 5 * time.Second

// Client connects to a patchguard validation server.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// New creates a gRPC client connected to the given address.
// Fail-closed: if the server cannot be reached, Validate returns a rejection.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to validation server: %w", err)
	}
	return &Client{conn: conn, timeout: DefaultTimeout}, nil
}

// Validate sends a patch to the remote server.
// Fail-closed: any RPC or decoding error yields a rejected result.
func (c *Client) Validate(ctx context.Context, plan model.PatchPlan, vctx model.ValidationContext) *model.SandboxExecutionResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	in, err := server.EncodeStruct(server.ValidateRequest{Patch: plan, Context: vctx})
	if err != nil {
		return failClosed(plan, fmt.Sprintf("encode request: %v", err))
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, server.ValidateMethod, in, out); err != nil {
		return failClosed(plan, fmt.Sprintf("validation server unreachable: %v", err))
	}

	res := &model.SandboxExecutionResult{}
	if err := server.DecodeStruct(out, res); err != nil {
		return failClosed(plan, fmt.Sprintf("decode result: %v", err))
	}
	return res
}

// Explain fetches the educational content for a violation type.
func (c *Client) Explain(ctx context.Context, t model.ViolationType) (model.EducationalContent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var content model.EducationalContent
	in, err := server.EncodeStruct(server.ExplainRequest{Type: string(t)})
	if err != nil {
		return content, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, server.ExplainMethod, in, out); err != nil {
		return content, fmt.Errorf("explain %s: %w", t, err)
	}
	if err := server.DecodeStruct(out, &content); err != nil {
		return content, err
	}
	return content, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func failClosed(plan model.PatchPlan, msg string) *model.SandboxExecutionResult {
	sec := model.ValidationResult{
		RiskScore:         1,
		Violations:        []model.SecurityViolation{},
		Educational:       []model.EducationalContent{},
		AllowedOperations: []string{},
		BlockedOperations: []string{},
		Errors:            []string{msg},
	}
	return &model.SandboxExecutionResult{
		Warnings:         []string{},
		Errors:           []string{msg},
		Security:         sec,
		RejectionMessage: report.RejectionMessage(sec, risk.DefaultRejectThreshold, plan.Alternatives),
	}
}
