package observability

import (
	"context"
	"testing"
	"time"
)

// recordingHooks counts pipeline events for assertions.
type recordingHooks struct {
	NoopPipelineHooks
	starts    int
	completes int
}

func (r *recordingHooks) OnStageStart(ctx context.Context, stage string, count int) {
	r.starts++
}

func (r *recordingHooks) OnStageComplete(ctx context.Context, stage string, d time.Duration, err error) {
	r.completes++
}

func TestDefaultHooksAreNoop(t *testing.T) {
	// Must not panic
	ctx := context.Background()
	Pipeline().OnStageStart(ctx, StageIndex, 100)
	Pipeline().OnStageComplete(ctx, StageIndex, time.Second, nil)
	Pipeline().OnResolutionDone(ctx, StageIndex, 64, 42)
	Cache().OnCacheHit(ctx, "img")
	Cache().OnCacheMiss(ctx, "img")
	Cache().OnCacheSet(ctx, "img", 1024)
	HTTP().OnRequest(ctx, "GET", "example.com", "/a.jpg")
	HTTP().OnResponse(ctx, "GET", "example.com", "/a.jpg", 200, time.Millisecond)
	HTTP().OnError(ctx, "GET", "example.com", "/a.jpg", context.DeadlineExceeded)
}

func TestSetPipelineHooks(t *testing.T) {
	rec := &recordingHooks{}
	SetPipelineHooks(rec)
	defer SetPipelineHooks(nil)

	ctx := context.Background()
	Pipeline().OnStageStart(ctx, StageLayout, 10)
	Pipeline().OnStageComplete(ctx, StageLayout, time.Millisecond, nil)

	if rec.starts != 1 {
		t.Errorf("starts = %d, want 1", rec.starts)
	}
	if rec.completes != 1 {
		t.Errorf("completes = %d, want 1", rec.completes)
	}
}

func TestSetNilResetsToNoop(t *testing.T) {
	SetPipelineHooks(&recordingHooks{})
	SetPipelineHooks(nil)

	if _, ok := Pipeline().(NoopPipelineHooks); !ok {
		t.Error("SetPipelineHooks(nil) should reset to NoopPipelineHooks")
	}

	SetCacheHooks(nil)
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("SetCacheHooks(nil) should reset to NoopCacheHooks")
	}

	SetHTTPHooks(nil)
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("SetHTTPHooks(nil) should reset to NoopHTTPHooks")
	}
}
