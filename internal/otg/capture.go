package otg

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StartCapture begins packet capture on the named ports. The ports must
// already be covered by a capture entry in the applied configuration.
func (c *Client) StartCapture(ctx context.Context, portNames []string) error {
	c.log.Info("starting capture", zap.Strings("ports", portNames))
	return c.setCaptureState(ctx, "start", portNames)
}

// StopCapture stops packet capture on the named ports. Captured packets
// stay buffered on the target until fetched with GetCapture.
func (c *Client) StopCapture(ctx context.Context, portNames []string) error {
	c.log.Info("stopping capture", zap.Strings("ports", portNames))
	return c.setCaptureState(ctx, "stop", portNames)
}

func (c *Client) setCaptureState(ctx context.Context, state string, portNames []string) error {
	req := controlState{
		Choice: "port",
		Port: &portControl{
			Choice: "capture",
			Capture: &captureControl{
				State:     state,
				PortNames: portNames,
			},
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return classify(c.target, "set_control_state", err)
	}
	_, err = c.do(ctx, http.MethodPost, "/control/state", body)
	return err
}

// GetCapture downloads the capture buffer for one port and writes it to
// a pcap file under dir. Returns the file path and the byte count.
func (c *Client) GetCapture(ctx context.Context, portName, dir string) (string, int, error) {
	const op = "get_capture"

	body, err := json.Marshal(captureRequest{PortName: portName})
	if err != nil {
		return "", 0, classify(c.target, op, err)
	}
	data, err := c.do(ctx, http.MethodPost, "/monitor/capture", body)
	if err != nil {
		return "", 0, err
	}

	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("creating capture dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s.pcap", sanitizeFileName(portName), uuid.NewString())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", 0, fmt.Errorf("writing capture file: %w", err)
	}

	c.log.Info("capture written",
		zap.String("port", portName),
		zap.String("path", path),
		zap.Int("bytes", len(data)))
	return path, len(data), nil
}

// sanitizeFileName keeps port names from escaping the capture directory
// or producing awkward file names.
func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}
