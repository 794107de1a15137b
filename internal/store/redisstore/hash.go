package redisstore

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/asyncengine/engine/internal/job"
)

// Hash field names, matching spec.md §6.3: "Status stored as integer code;
// booleans/ids as strings; timestamps as ISO 8601; StartedAtUnix as decimal
// integer." RetryDelayUntil is the exception: it is stored only as decimal
// Unix seconds, in RetryDelayUntilUnix.
const (
	fieldID                   = "Id"
	fieldName                 = "Name"
	fieldStatus               = "Status"
	fieldHeaders              = "Headers"
	fieldRouteParams          = "RouteParams"
	fieldQueryParams          = "QueryParams"
	fieldPayload              = "Payload"
	fieldResult               = "Result"
	fieldError                = "Error"
	fieldRetryCount           = "RetryCount"
	fieldMaxRetries           = "MaxRetries"
	fieldRetryDelayUntilUnix  = "RetryDelayUntilUnix"
	fieldWorkerID             = "WorkerId"
	fieldCreatedAt            = "CreatedAt"
	fieldStartedAt            = "StartedAt"
	fieldStartedAtUnix        = "StartedAtUnix"
	fieldCompletedAt          = "CompletedAt"
	fieldLastUpdatedAt        = "LastUpdatedAt"
)

// toHashArgs flattens a Job into the alternating field/value pairs HSET
// (or HMSET-via-redis.Args) expects.
func toHashArgs(j *job.Job) ([]any, error) {
	headers, err := json.Marshal(j.Headers)
	if err != nil {
		return nil, err
	}
	routeParams, err := json.Marshal(j.RouteParams)
	if err != nil {
		return nil, err
	}
	queryParams, err := json.Marshal(j.QueryParams)
	if err != nil {
		return nil, err
	}

	args := []any{
		fieldID, j.ID.String(),
		fieldName, j.Name,
		fieldStatus, strconv.Itoa(int(j.Status)),
		fieldHeaders, string(headers),
		fieldRouteParams, string(routeParams),
		fieldQueryParams, string(queryParams),
		fieldPayload, j.Payload,
		fieldRetryCount, strconv.Itoa(j.RetryCount),
		fieldMaxRetries, strconv.Itoa(j.MaxRetries),
		fieldCreatedAt, j.CreatedAt.Format(time.RFC3339Nano),
		fieldLastUpdatedAt, j.LastUpdatedAt.Format(time.RFC3339Nano),
	}

	if j.Result != nil {
		args = append(args, fieldResult, *j.Result)
	}
	if j.Err != nil {
		errJSON, err := json.Marshal(j.Err)
		if err != nil {
			return nil, err
		}
		args = append(args, fieldError, string(errJSON))
	}
	if j.RetryDelayUntil != nil {
		args = append(args, fieldRetryDelayUntilUnix, strconv.FormatInt(j.RetryDelayUntil.Unix(), 10))
	}
	if j.WorkerID != nil {
		args = append(args, fieldWorkerID, j.WorkerID.String())
	}
	if j.StartedAt != nil {
		args = append(args,
			fieldStartedAt, j.StartedAt.Format(time.RFC3339Nano),
			fieldStartedAtUnix, strconv.FormatInt(j.StartedAt.Unix(), 10))
	}
	if j.CompletedAt != nil {
		args = append(args, fieldCompletedAt, j.CompletedAt.Format(time.RFC3339Nano))
	}

	return args, nil
}

// clearedFieldsOnRequeue lists the hash fields deleted when UpdateJob moves
// a job out of InProgress (eg a manual retry through the Manager, mirroring
// what the claim/recover scripts do server-side).
var clearedFieldsOnRequeue = []string{fieldWorkerID, fieldStartedAt, fieldStartedAtUnix}

// fromHash parses a job hash, already turned into a string map by
// flatToMap, into a Job.
func fromHash(fields map[string]string) (*job.Job, error) {
	if fields[fieldID] == "" {
		return nil, errNotFoundHash
	}

	id, err := uuid.Parse(fields[fieldID])
	if err != nil {
		return nil, err
	}
	statusCode, err := strconv.Atoi(fields[fieldStatus])
	if err != nil {
		return nil, err
	}
	retryCount, _ := strconv.Atoi(fields[fieldRetryCount])
	maxRetries, _ := strconv.Atoi(fields[fieldMaxRetries])

	createdAt, err := time.Parse(time.RFC3339Nano, fields[fieldCreatedAt])
	if err != nil {
		return nil, err
	}
	lastUpdatedAt, err := time.Parse(time.RFC3339Nano, fields[fieldLastUpdatedAt])
	if err != nil {
		return nil, err
	}

	j := &job.Job{
		ID:            id,
		Name:          fields[fieldName],
		Status:        job.Status(statusCode),
		Payload:       fields[fieldPayload],
		RetryCount:    retryCount,
		MaxRetries:    maxRetries,
		CreatedAt:     createdAt,
		LastUpdatedAt: lastUpdatedAt,
	}

	if v := fields[fieldHeaders]; v != "" {
		if err := json.Unmarshal([]byte(v), &j.Headers); err != nil {
			return nil, err
		}
	}
	if v := fields[fieldRouteParams]; v != "" {
		if err := json.Unmarshal([]byte(v), &j.RouteParams); err != nil {
			return nil, err
		}
	}
	if v := fields[fieldQueryParams]; v != "" {
		if err := json.Unmarshal([]byte(v), &j.QueryParams); err != nil {
			return nil, err
		}
	}
	if v := fields[fieldResult]; v != "" {
		r := v
		j.Result = &r
	}
	if v := fields[fieldError]; v != "" {
		var e job.Error
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, err
		}
		j.Err = &e
	}
	if v := fields[fieldRetryDelayUntilUnix]; v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, err
		}
		t := time.Unix(sec, 0).UTC()
		j.RetryDelayUntil = &t
	}
	if v := fields[fieldWorkerID]; v != "" {
		wid, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		j.WorkerID = &wid
	}
	if v := fields[fieldStartedAt]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, err
		}
		j.StartedAt = &t
	}
	if v := fields[fieldCompletedAt]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, err
		}
		j.CompletedAt = &t
	}

	return j, nil
}

// flatToMap turns the []interface{} HGETALL reply into a string map.
func flatToMap(flat []any) (map[string]string, error) {
	out := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		k, err := toStr(flat[i])
		if err != nil {
			return nil, err
		}
		v, err := toStr(flat[i+1])
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func toStr(v any) (string, error) {
	switch t := v.(type) {
	case []byte:
		return string(t), nil
	case string:
		return t, nil
	case nil:
		return "", nil
	default:
		return "", errUnexpectedReplyType
	}
}
