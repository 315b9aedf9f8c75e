package generation

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func startGateway(t *testing.T, backend Transport) *GatewayTransport {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterGatewayServer(srv, backend)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	gw := NewGatewayTransport(conn, 5*time.Second, nil)
	t.Cleanup(gw.Close)
	return gw
}

func TestGatewayGenerateTextRoundTrip(t *testing.T) {
	t.Parallel()

	backend := &fakeTransport{textResp: TextResponse{Text: "绝杀", Items: []string{"DINGZUI", "FALI"}}}
	gw := startGateway(t, backend)

	resp, err := gw.GenerateText(context.Background(), TextRequest{
		Persona:     "顶嘴侠",
		Prompt:      "情景",
		Temperature: 0.5,
		Format:      FormatJSONArray,
	})
	if err != nil {
		t.Fatalf("GenerateText failed: %v", err)
	}
	if resp.Text != "绝杀" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if len(resp.Items) != 2 || resp.Items[0] != "DINGZUI" || resp.Items[1] != "FALI" {
		t.Fatalf("unexpected items %v", resp.Items)
	}
	if backend.lastText.Format != FormatJSONArray || backend.lastText.Persona != "顶嘴侠" {
		t.Fatalf("request not forwarded intact: %+v", backend.lastText)
	}
}

func TestGatewayClassifiesStatusCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "rate limited", err: RateLimited(errors.New("quota")), want: KindRateLimited},
		{name: "invalid", err: InvalidRequest(errors.New("bad")), want: KindInvalidRequest},
		{name: "unknown", err: errors.New("boom"), want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			backend := &fakeTransport{textErrs: []error{tt.err}}
			gw := startGateway(t, backend)

			_, err := gw.GenerateText(context.Background(), TextRequest{Prompt: "p"})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := Classify(err); got != tt.want {
				t.Fatalf("Classify = %v, want %v (err=%v)", got, tt.want, err)
			}
		})
	}
}

func TestGatewayVisionAndSpeech(t *testing.T) {
	t.Parallel()

	backend := &fakeTransport{
		visionResp: VisionResponse{Description: "聊天截图", Image: []byte{0x89, 0x50}, ImageMIMEType: "image/png"},
		speechResp: SpeechResponse{Audio: []byte{1, 2, 3, 4}},
	}
	gw := startGateway(t, backend)

	vr, err := gw.AnalyzeImage(context.Background(), VisionRequest{Image: []byte{1, 2, 3}, MIMEType: "image/jpeg", Instruction: "看图"})
	if err != nil {
		t.Fatalf("AnalyzeImage failed: %v", err)
	}
	if vr.Description != "聊天截图" || string(vr.Image) != string([]byte{0x89, 0x50}) || vr.ImageMIMEType != "image/png" {
		t.Fatalf("unexpected vision response %+v", vr)
	}
	if string(backend.lastVision.Image) != string([]byte{1, 2, 3}) {
		t.Fatalf("image bytes not forwarded: %v", backend.lastVision.Image)
	}

	sr, err := gw.Synthesize(context.Background(), SpeechRequest{Text: "住口", Voice: "Puck"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(sr.Audio) != 4 || sr.SampleRate != SpeechSampleRate {
		t.Fatalf("unexpected speech response %+v", sr)
	}
}

func TestGatewayRejectsEmptyPrompt(t *testing.T) {
	t.Parallel()

	backend := &fakeTransport{}
	gw := startGateway(t, backend)

	_, err := gw.GenerateText(context.Background(), TextRequest{})
	if Classify(err) != KindInvalidRequest {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if backend.textCalls != 0 {
		t.Fatal("backend should not be called for empty prompts")
	}
}
