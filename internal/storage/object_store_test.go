package storage

import (
	"testing"

	"github.com/capitalize-ai/chat-console/internal/config"
)

func TestObjectKey(t *testing.T) {
	got := ObjectKey("ana@x.com", "conv-1", "msg-1")
	if want := "images/ana@x.com/conv-1/msg-1.png"; got != want {
		t.Fatalf("ObjectKey = %q, want %q", got, want)
	}

	if got := ObjectKey("a/b", "c", "d"); got != "images/a%2Fb/c/d.png" {
		t.Fatalf("slashes in user ids must be escaped, got %q", got)
	}
}

func TestNewObjectStoreParsesEndpointScheme(t *testing.T) {
	store, err := NewObjectStore(config.StorageConfig{
		Endpoint:  "https://minio.internal:9000",
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "images",
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("NewObjectStore failed: %v", err)
	}
	if got := store.client.EndpointURL(); got.Host != "minio.internal:9000" || got.Scheme != "https" {
		t.Fatalf("unexpected endpoint %v", got)
	}
}
