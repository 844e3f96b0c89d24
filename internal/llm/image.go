package llm

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
)

// MediaType maps an image extension to its MIME type, defaulting to JPEG.
func MediaType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// ImageBlock reads path and returns it as an inline base64 image block.
func ImageBlock(path string) (anthropic.ContentBlockParamUnion, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return anthropic.ContentBlockParamUnion{}, fmt.Errorf("read image: %w", err)
	}
	return anthropic.NewImageBlockBase64(MediaType(path), base64.StdEncoding.EncodeToString(blob)), nil
}
