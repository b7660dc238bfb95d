package coordinator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// parseJob extracts a job from a miner_request reply. Any JSON object holding
// both job_id and model_id is a job; everything else, including null or
// empty ids, means no work. Ids may be strings or numbers. model_input may be
// an object, a bare prompt string, or any other JSON value, which is passed on
// under "input". Ids of any other type are a decode error.
func parseJob(body []byte) (*Job, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, nil
	}
	rawJob, rawModel := nonNull(fields["job_id"]), nonNull(fields["model_id"])
	if rawJob == nil || rawModel == nil {
		return nil, nil
	}

	job := &Job{
		TempCredentials: nonNull(fields["temp_credentials"]),
		Deadline:        nonNull(fields["deadline"]),
	}
	var err error
	if job.JobID, err = idString(rawJob); err != nil {
		return nil, decodeError{op: "miner_request", err: fmt.Errorf("job_id: %w", err)}
	}
	if job.ModelID, err = idString(rawModel); err != nil {
		return nil, decodeError{op: "miner_request", err: fmt.Errorf("model_id: %w", err)}
	}
	if job.JobID == "" || job.ModelID == "" {
		return nil, nil
	}
	if job.ModelInput, err = modelInput(fields["model_input"]); err != nil {
		return nil, decodeError{op: "miner_request", err: fmt.Errorf("model_input: %w", err)}
	}
	return job, nil
}

// idString accepts a JSON string or a JSON number.
func idString(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id), nil
	case json.Number:
		return id.String(), nil
	}
	return "", fmt.Errorf("want string or number, got %s", raw)
}

func modelInput(raw json.RawMessage) (map[string]any, error) {
	if len(nonNull(raw)) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	switch in := v.(type) {
	case map[string]any:
		return in, nil
	case string:
		return map[string]any{"prompt": in}, nil
	}
	return map[string]any{"input": v}, nil
}

func nonNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	return raw
}
