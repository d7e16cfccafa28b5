package gemini

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func TestClientWithoutKeyRefusesCalls(t *testing.T) {
	c := NewClient(func(ctx context.Context) (string, error) { return "", nil })
	defer c.Close()
	ctx := context.Background()

	if _, err := c.Send(ctx, "gemini-2.0-flash", "", nil, "hi"); err == nil {
		t.Fatal("expected error from Send without api key")
	}
	if err := c.SendStream(ctx, "gemini-2.0-flash", "", nil, "hi", func(string) error { return nil }); err == nil {
		t.Fatal("expected error from SendStream without api key")
	}
	if _, err := c.GenerateJSON(ctx, "gemini-2.0-flash", "hi"); err == nil {
		t.Fatal("expected error from GenerateJSON without api key")
	}
}

func TestClientKeySourceErrorPropagates(t *testing.T) {
	c := NewClient(func(ctx context.Context) (string, error) {
		return "", fmt.Errorf("store closed")
	})
	defer c.Close()

	_, err := c.Send(context.Background(), "gemini-2.0-flash", "", nil, "hi")
	if err == nil || !strings.Contains(err.Error(), "store closed") {
		t.Fatalf("expected wrapped key source error, got %v", err)
	}
}
