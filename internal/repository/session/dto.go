package session

import (
	"encoding/json"
	"fmt"

	domprov "github.com/kailas-cloud/traffmeter/internal/domain/provision"
)

// sessionRow is the JSON-serializable representation of a wizard session.
type sessionRow struct {
	State        string  `json:"state"`
	Username     string  `json:"username,omitempty"`
	DataLimitGiB float64 `json:"data_limit_gib,omitempty"`
	ValidityDays int     `json:"validity_days,omitempty"`
}

func sessionToJSON(sess domprov.Session) ([]byte, error) {
	row := sessionRow{
		State:        string(sess.State()),
		Username:     sess.Username(),
		DataLimitGiB: sess.DataLimitGiB(),
		ValidityDays: sess.ValidityDays(),
	}
	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	return data, nil
}

func sessionFromJSON(data []byte) (domprov.Session, error) {
	var row sessionRow
	if err := json.Unmarshal(data, &row); err != nil {
		return domprov.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return domprov.Reconstruct(
		domprov.State(row.State), row.Username, row.DataLimitGiB, row.ValidityDays,
	), nil
}
