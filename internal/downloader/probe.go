package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Verifier inspects a fetched file before it is committed.
type Verifier interface {
	Verify(ctx context.Context, path string) (*MediaInfo, error)
}

// FFProbe verifies fetched files with ffprobe.
type FFProbe struct {
	path string
}

// NewFFProbe locates binary (a name on PATH or a path) and returns a
// verifier running it.
func NewFFProbe(binary string) (*FFProbe, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}
	return &FFProbe{path: path}, nil
}

// Verify reads container and stream metadata of the file at path.
func (p *FFProbe) Verify(ctx context.Context, path string) (*MediaInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat media: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.path,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	info, err := ParseProbe(output)
	if err != nil {
		return nil, err
	}
	info.Size = stat.Size()
	return info, nil
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

type probeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
}

type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

// ParseProbe converts ffprobe JSON into MediaInfo. Files without a video
// stream report VCodec "none"; still-image containers report an image
// content type.
func ParseProbe(data []byte) (*MediaInfo, error) {
	var parsed probeOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &MediaInfo{
		VCodec:          "none",
		DurationSeconds: UnknownDuration,
	}

	format := parsed.Format.FormatName
	info.Ext = strings.SplitN(format, ",", 2)[0]
	if format == "image2" || strings.HasSuffix(format, "_pipe") {
		info.ContentType = "image/" + strings.TrimSuffix(info.Ext, "_pipe")
	}

	if parsed.Format.Duration != "" {
		if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			info.DurationSeconds = d
		}
	}

	for _, s := range parsed.Streams {
		if s.CodecType == "video" {
			info.VCodec = s.CodecName
			break
		}
	}
	return info, nil
}
