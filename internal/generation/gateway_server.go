package generation

import (
	"context"
	"encoding/base64"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// gatewayService is the server-side handler set of the gateway.
type gatewayService interface {
	generateText(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	analyzeImage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	synthesize(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type gatewayServer struct {
	transport Transport
}

// RegisterGatewayServer serves transport as a generation gateway on s.
func RegisterGatewayServer(s *grpc.Server, transport Transport) {
	s.RegisterService(&gatewayServiceDesc, &gatewayServer{transport: transport})
}

var gatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: gatewayServiceName,
	HandlerType: (*gatewayService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GenerateText", Handler: unaryHandler(methodGenerateText, gatewayService.generateText)},
		{MethodName: "AnalyzeImage", Handler: unaryHandler(methodAnalyzeImage, gatewayService.analyzeImage)},
		{MethodName: "Synthesize", Handler: unaryHandler(methodSynthesize, gatewayService.synthesize)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "quarrel/generation/v1/gateway.proto",
}

type gatewayMethod func(gatewayService, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, method gatewayMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		svc := srv.(gatewayService)
		if interceptor == nil {
			return method(svc, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(svc, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func (g *gatewayServer) generateText(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	req := TextRequest{
		Persona:     fields["personaInstructions"].GetStringValue(),
		Prompt:      fields["prompt"].GetStringValue(),
		Temperature: float32(fields["temperature"].GetNumberValue()),
	}
	if fields["responseFormat"].GetStringValue() == "json-array" {
		req.Format = FormatJSONArray
	}
	if req.Prompt == "" {
		return nil, status.Error(codes.InvalidArgument, "prompt is required")
	}

	resp, err := g.transport.GenerateText(ctx, req)
	if err != nil {
		return nil, grpcStatus(err)
	}
	items := make([]any, 0, len(resp.Items))
	for _, item := range resp.Items {
		items = append(items, item)
	}
	return structpb.NewStruct(map[string]any{
		"text":  resp.Text,
		"items": items,
	})
}

func (g *gatewayServer) analyzeImage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	img, err := base64.StdEncoding.DecodeString(fields["imageBytes"].GetStringValue())
	if err != nil || len(img) == 0 {
		return nil, status.Error(codes.InvalidArgument, "imageBytes must be non-empty base64")
	}

	resp, err := g.transport.AnalyzeImage(ctx, VisionRequest{
		Persona:     fields["personaInstructions"].GetStringValue(),
		Image:       img,
		MIMEType:    fields["mimeType"].GetStringValue(),
		Instruction: fields["instructionText"].GetStringValue(),
	})
	if err != nil {
		return nil, grpcStatus(err)
	}
	out := map[string]any{
		"descriptionText": resp.Description,
	}
	if len(resp.Image) > 0 {
		out["transformedImageBytes"] = base64.StdEncoding.EncodeToString(resp.Image)
		out["transformedMimeType"] = resp.ImageMIMEType
	}
	return structpb.NewStruct(out)
}

func (g *gatewayServer) synthesize(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	text := fields["text"].GetStringValue()
	if text == "" {
		return nil, status.Error(codes.InvalidArgument, "text is required")
	}

	resp, err := g.transport.Synthesize(ctx, SpeechRequest{
		Text:  text,
		Voice: fields["voiceProfile"].GetStringValue(),
	})
	if err != nil {
		return nil, grpcStatus(err)
	}
	rate := resp.SampleRate
	if rate == 0 {
		rate = SpeechSampleRate
	}
	return structpb.NewStruct(map[string]any{
		"audioBytes": base64.StdEncoding.EncodeToString(resp.Audio),
		"sampleRate": float64(rate),
	})
}
