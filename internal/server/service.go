package server

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/patchguard/internal/model"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "patchguard.v1.Validator"

// Full method names, usable with grpc.ClientConn.Invoke.
const (
	ValidateMethod = "/" + ServiceName + "/Validate"
	ExplainMethod  = "/" + ServiceName + "/Explain"
)

// ValidateRequest is the payload of the Validate RPC.
type ValidateRequest struct {
	Patch   model.PatchPlan         `json:"patch"`
	Context model.ValidationContext `json:"context"`
}

// ExplainRequest is the payload of the Explain RPC.
type ExplainRequest struct {
	Type string `json:"type"`
}

// ValidatorServer is the server side of patchguard.v1.Validator. Messages are
// google.protobuf.Struct values holding the JSON form of the request and
// result types.
type ValidatorServer interface {
	Validate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Explain(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterValidatorServer registers srv on s.
func RegisterValidatorServer(s grpc.ServiceRegistrar, srv ValidatorServer) {
	s.RegisterService(&validatorServiceDesc, srv)
}

var validatorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ValidatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Validate", Handler: validateHandler},
		{MethodName: "Explain", Handler: explainHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "patchguard/v1/validator.proto",
}

func validateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ValidatorServer).Validate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ValidateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ValidatorServer).Validate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func explainHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ValidatorServer).Explain(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ExplainMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ValidatorServer).Explain(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// EncodeStruct converts v to a Struct through its JSON form.
func EncodeStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("build struct: %w", err)
	}
	return s, nil
}

// DecodeStruct fills v from the JSON form of s.
func DecodeStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal struct: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}
	return nil
}
