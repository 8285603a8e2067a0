package detector

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"net/url"
	"time"

	"yolodesk/internal/models"
	"yolodesk/processing/provider"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultTimeout = 30 * time.Second

// RemoteDetector runs inference on a detection server: one JPEG frame goes
// out as a binary message, a JSON list of detections comes back.
type RemoteDetector struct {
	serverURL string
	dialer    *websocket.Dialer
	timeout   time.Duration
}

func NewRemoteDetector(host string) *RemoteDetector {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}

	return &RemoteDetector{
		serverURL: u.String(),
		dialer:    websocket.DefaultDialer,
		timeout:   defaultTimeout,
	}
}

func (d *RemoteDetector) URL() string {
	return d.serverURL
}

// Predict ignores the model handle: the server owns its model. Results below
// conf are dropped.
func (d *RemoteDetector) Predict(ctx context.Context, _ provider.Model, img image.Image, conf float64) ([]models.DetectionResult, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return nil, errors.Wrap(err, "JPEG encode")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	conn, _, err := d.dialer.DialContext(ctx, d.serverURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to detector server %s", d.serverURL)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
		conn.SetReadDeadline(deadline)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		return nil, errors.Wrap(err, "send frame")
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		return nil, errors.Wrap(err, "read detections")
	}

	var results []models.DetectionResult
	if err := json.Unmarshal(message, &results); err != nil {
		return nil, errors.Wrap(err, "JSON decode")
	}

	kept := results[:0]
	for _, r := range results {
		if float64(r.Confidence) >= conf {
			kept = append(kept, r)
		}
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	return kept, nil
}
