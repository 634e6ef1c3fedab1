// Package telemetry records mount status snapshots to InfluxDB.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api/write"
	log "github.com/sirupsen/logrus"
)

const Measurement = "astroid.status"

// TagKeys are the status fields written as tags instead of fields.
var TagKeys = []string{"Link", "Mode", "PierSide", "CoordSetMode", "ManualRA", "ManualDE"}

// Flatten stores every leaf of a decoded JSON value in fields, keyed by its
// dotted path.
func Flatten(fields map[string]interface{}, status interface{}, prefix string) {
	switch status := status.(type) {
	case map[string]interface{}:
		for k, v := range status {
			Flatten(fields, v, prefix+"."+k)
		}
	case []interface{}:
		for k, v := range status {
			Flatten(fields, v, fmt.Sprintf("%s.%d", prefix, k))
		}
	case nil:
	default:
		if prefix == "" {
			return
		}
		fields[prefix[1:]] = status
	}
}

// Split moves the TagKeys entries of a flattened status into tags.
func Split(flat map[string]interface{}) (map[string]string, map[string]interface{}) {
	tags := make(map[string]string)
	for _, k := range TagKeys {
		if v, ok := flat[k]; ok {
			tags[k] = fmt.Sprint(v)
			delete(flat, k)
		}
	}
	return tags, flat
}

// Writer is the part of api.WriteApi the recorder uses.
type Writer interface {
	WritePoint(p *write.Point)
}

type Recorder struct {
	w Writer
}

func NewRecorder(w Writer) *Recorder {
	return &Recorder{w: w}
}

// Record writes one JSON status message as a point.
func (r *Recorder) Record(data []byte, ts time.Time) error {
	var status interface{}
	if err := json.Unmarshal(data, &status); err != nil {
		return err
	}
	if _, ok := status.(map[string]interface{}); !ok {
		return fmt.Errorf("status is %T, not an object", status)
	}
	flat := make(map[string]interface{})
	Flatten(flat, status, "")
	tags, fields := Split(flat)
	r.w.WritePoint(influxdb2.NewPoint(Measurement, tags, fields, ts))
	return nil
}

// Follow records every status received from the websocket at url until the
// connection fails or ctx is canceled.
func (r *Recorder) Follow(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := r.Record(data, time.Now()); err != nil {
			log.WithError(err).Warn("dropping status")
		}
	}
}

// Log opens an InfluxDB write client and follows url, reconnecting every
// second, until ctx is canceled.
func Log(ctx context.Context, url, server, token, org, bucket string) error {
	client := influxdb2.NewClient(server, token)
	defer client.Close()
	writeApi := client.WriteApi(org, bucket)
	defer writeApi.Close()
	go func() {
		for err := range writeApi.Errors() {
			log.Printf("write error: %v", err)
		}
	}()
	r := NewRecorder(writeApi)
	for {
		err := r.Follow(ctx, url)
		writeApi.Flush()
		if ctx.Err() != nil {
			return nil
		}
		log.Print(err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}
