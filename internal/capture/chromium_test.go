package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptionsNormalize(t *testing.T) {
	o := Options{URL: "http://127.0.0.1:8080/", OutputPath: "/tmp/p.png"}
	assert.NoError(t, o.normalize())
	assert.Equal(t, DefaultWidth, o.Width)
	assert.Equal(t, DefaultHeight, o.Height)
	assert.Equal(t, 30*time.Second, o.Timeout)
}

func TestCapturePagePNG_RequiresURLAndOutput(t *testing.T) {
	err := CapturePagePNG(context.Background(), Options{OutputPath: "/tmp/p.png"})
	assert.ErrorContains(t, err, "URL is required")

	err = CapturePagePNG(context.Background(), Options{URL: "http://x"})
	assert.ErrorContains(t, err, "OutputPath is required")
}
