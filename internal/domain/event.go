package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// Message is one delivery from a message source. Commit acknowledges it;
// an uncommitted message is delivered again after a restart.
type Message struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ObjectEvent announces that an object was created in a bucket.
type ObjectEvent struct {
	Bucket string
	Key    string
}

func (e ObjectEvent) String() string {
	return e.Bucket + "/" + e.Key
}

// notification mirrors the S3 event notification envelope.
type notification struct {
	Records []notificationRecord `json:"Records"`
}

type notificationRecord struct {
	EventName string `json:"eventName,omitempty"`
	EventTime string `json:"eventTime,omitempty"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// ParseNotification decodes an object-created notification. Object keys are
// form-encoded in the envelope ("+" is a space) and are returned decoded.
func ParseNotification(data []byte) ([]ObjectEvent, error) {
	var n notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("parse notification: %w", err)
	}
	if len(n.Records) == 0 {
		return nil, fmt.Errorf("parse notification: no records")
	}

	events := make([]ObjectEvent, 0, len(n.Records))
	for _, rec := range n.Records {
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("parse notification key %q: %w", rec.S3.Object.Key, err)
		}
		if rec.S3.Bucket.Name == "" || key == "" {
			return nil, fmt.Errorf("parse notification: record without bucket or key")
		}
		events = append(events, ObjectEvent{Bucket: rec.S3.Bucket.Name, Key: key})
	}
	return events, nil
}

// EncodeNotification builds the single-record envelope for ev.
func EncodeNotification(ev ObjectEvent, at time.Time) ([]byte, error) {
	var rec notificationRecord
	rec.EventName = "ObjectCreated:Put"
	rec.EventTime = at.UTC().Format(time.RFC3339Nano)
	rec.S3.Bucket.Name = ev.Bucket
	rec.S3.Object.Key = url.QueryEscape(ev.Key)

	data, err := json.Marshal(notification{Records: []notificationRecord{rec}})
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return data, nil
}

// JobRun requests one run of a named batch job.
type JobRun struct {
	JobName     string    `json:"job_name"`
	RunID       string    `json:"run_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// ParseJobRun decodes a job-run message.
func ParseJobRun(data []byte) (JobRun, error) {
	var run JobRun
	if err := json.Unmarshal(data, &run); err != nil {
		return JobRun{}, fmt.Errorf("parse job run: %w", err)
	}
	if run.JobName == "" {
		return JobRun{}, fmt.Errorf("parse job run: missing job_name")
	}
	return run, nil
}
