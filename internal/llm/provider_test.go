package llm

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestNewClient_TalksToStub(t *testing.T) {
	stub := NewStubHandler("stub-model")
	srv := httptest.NewServer(stub)
	defer srv.Close()

	client := NewClient("k", srv.URL+"/v1/", nil)
	resp, err := client.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model: "stub-model",
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a " + EvaluationMarker + "."},
			{Role: openai.ChatMessageRoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(resp.Choices) != 1 || !strings.Contains(resp.Choices[0].Message.Content, `"eeat"`) {
		t.Fatalf("unexpected response %+v", resp)
	}
	if stub.Calls.Load() != 1 {
		t.Fatalf("calls = %d", stub.Calls.Load())
	}

	models, err := client.ListModels(context.Background())
	if err != nil || len(models.Models) != 1 || models.Models[0].ID != "stub-model" {
		t.Fatalf("models=%+v err=%v", models, err)
	}
}

func TestStub_RejectsUnknownPrompt(t *testing.T) {
	srv := httptest.NewServer(NewStubHandler(""))
	defer srv.Close()
	f := NewFactory(srv.URL+"/v1", nil)
	_, err := f("k").CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model:    "m",
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: "something else"}},
	})
	if err == nil {
		t.Fatal("expected error for unknown prompt")
	}
}
