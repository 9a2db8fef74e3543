package logs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/delta10/wfs-proxy/internal/config"
)

func NewLogBackend(backend config.LogBackend) *LogBackend {
	return &LogBackend{
		Config: backend,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// LogBackend pushes audit lines to a Loki compatible push API.
type LogBackend struct {
	Config config.LogBackend
	client *http.Client
}

type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]any           `json:"values"`
}

type Body struct {
	Streams []Stream `json:"streams"`
}

// WriteLog pushes one line, marshalled as JSON, into the stream identified by
// labels.
func (l *LogBackend) WriteLog(ctx context.Context, labels map[string]string, line any) error {
	parsedUrl, err := url.Parse(l.Config.BaseURL)
	if err != nil {
		return errors.Wrap(err, "parse log backend url")
	}

	parsedUrl = parsedUrl.JoinPath("/api/v1/push")

	marshalledLine, err := json.Marshal(line)
	if err != nil {
		return err
	}

	body := Body{
		Streams: []Stream{
			{
				Stream: labels,
				Values: [][]any{
					{
						fmt.Sprint(time.Now().UnixNano()),
						string(marshalledLine),
					},
				},
			},
		},
	}

	marshalled, err := json.Marshal(body)
	if err != nil {
		return err
	}

	logRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, parsedUrl.String(), bytes.NewReader(marshalled))
	if err != nil {
		return err
	}

	logRequest.Header.Set("Content-Type", "application/json")
	for key, value := range l.Config.Headers {
		logRequest.Header.Set(key, value)
	}

	logResponse, err := l.client.Do(logRequest)
	if err != nil {
		return errors.Wrap(err, "push log entry")
	}

	defer logResponse.Body.Close()

	if logResponse.StatusCode != http.StatusNoContent {
		return errors.Errorf("could not create log entry: %s", logResponse.Status)
	}

	return nil
}
